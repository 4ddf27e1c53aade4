package nsig

import (
	"context"
	"net/http"
	"reflect"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nvelope"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Graph is what the parser needs to know about dependency
// registration.  *ngraph.Graph implements it.
type Graph interface {
	IsRegistered(t reflect.Type) bool
	Node(t reflect.Type) (*ngraph.Node, bool)
}

// Resolver builds dependencies at request time.  Both *ngraph.Graph
// and *ngraph.Scope implement it.
type Resolver interface {
	Resolve(ctx context.Context, t reflect.Type, known map[string]interface{}) (interface{}, error)
}

// PluginFunc supplies the value of a plugin parameter for one
// request.  Errors abort the request; they are not gathered as
// validation problems.
type PluginFunc func(ctx context.Context, conn Connection, resolver Resolver) (interface{}, error)

// PluginMarker is metadata that turns a parameter into a plugin
// parameter.  Plugin is called once when the endpoint is parsed.
type PluginMarker interface {
	Plugin(name string, t reflect.Type) (PluginFunc, error)
}

// PluginParam is a parameter supplied directly by the framework
type PluginParam struct {
	Name    string
	Type    reflect.Type
	Provide PluginFunc
}

func (p *PluginParam) String() string {
	return "plugin " + p.Name + " " + p.Type.String()
}

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	requestType   = reflect.TypeOf((*http.Request)(nil))
	writerType    = reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()
	resolverType  = reflect.TypeOf((*Resolver)(nil)).Elem()
	websocketType = reflect.TypeOf((*websocket.Conn)(nil))
	loggerType    = reflect.TypeOf((*nvelope.BasicLogger)(nil)).Elem()
	connType      = reflect.TypeOf((*Connection)(nil)).Elem()
	busType       = reflect.TypeOf((*nbus.Bus)(nil))
)

func builtinPlugins(log nvelope.BasicLogger) map[reflect.Type]PluginFunc {
	return map[reflect.Type]PluginFunc{
		contextType: func(ctx context.Context, _ Connection, _ Resolver) (interface{}, error) {
			return ctx, nil
		},
		requestType: func(_ context.Context, conn Connection, _ Resolver) (interface{}, error) {
			return conn.Request(), nil
		},
		writerType: func(_ context.Context, conn Connection, _ Resolver) (interface{}, error) {
			return conn.ResponseWriter(), nil
		},
		resolverType: func(_ context.Context, _ Connection, resolver Resolver) (interface{}, error) {
			return resolver, nil
		},
		websocketType: func(_ context.Context, conn Connection, _ Resolver) (interface{}, error) {
			return conn.WebSocket(), nil
		},
		loggerType: func(context.Context, Connection, Resolver) (interface{}, error) {
			return log, nil
		},
		connType: func(_ context.Context, conn Connection, _ Resolver) (interface{}, error) {
			return conn, nil
		},
		busType: func(context.Context, Connection, Resolver) (interface{}, error) {
			return nil, errors.New("no event bus configured, see nsig.WithBus")
		},
	}
}

func busPlugin(reg *nbus.Registry) PluginFunc {
	return func(_ context.Context, _ Connection, resolver Resolver) (interface{}, error) {
		return reg.Bus(resolver), nil
	}
}
