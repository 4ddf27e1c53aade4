package npoint

import (
	"reflect"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ncodec"
	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nsig"
	"github.com/muir/nhttp/ntype"
	"github.com/muir/nhttp/nvelope"

	"github.com/gorilla/websocket"
)

type config struct {
	graph       *ngraph.Graph
	log         nvelope.BasicLogger
	registry    *ncodec.Registry
	middleware  []nvelope.Middleware
	plugins     []Plugin
	pluginTypes map[reflect.Type]nsig.PluginFunc
	encoderArgs []nvelope.ResponseEncoderFuncArg
	metrics     *Metrics
	pool        *Pool
	maxBody     int64
	upgrader    *websocket.Upgrader
	bus         *nbus.Registry

	// endpoint only
	returns   ntype.Expr
	toThread  bool
	websocket bool
	scoped    bool
}

func defaultConfig() *config {
	return &config{
		log:         nvelope.NoLogger(),
		registry:    ncodec.Default(),
		pluginTypes: make(map[reflect.Type]nsig.PluginFunc),
		maxBody:     10 << 20,
	}
}

func (c *config) copy() *config {
	n := *c
	n.middleware = append([]nvelope.Middleware(nil), c.middleware...)
	n.plugins = append([]Plugin(nil), c.plugins...)
	n.encoderArgs = append([]nvelope.ResponseEncoderFuncArg(nil), c.encoderArgs...)
	n.pluginTypes = make(map[reflect.Type]nsig.PluginFunc, len(c.pluginTypes))
	for t, fn := range c.pluginTypes {
		n.pluginTypes[t] = fn
	}
	return &n
}

// Opt configures a service or a single endpoint.  Options given to
// an endpoint apply after the options of its service.
type Opt func(*config)

// WithGraph sets the dependency graph.  Without one, endpoints get
// an empty graph of their own.
func WithGraph(g *ngraph.Graph) Opt {
	return func(c *config) { c.graph = g }
}

// WithLogger sets the logger used for errors and injected into
// nvelope.BasicLogger parameters
func WithLogger(log nvelope.BasicLogger) Opt {
	return func(c *config) { c.log = log }
}

// WithRegistry sets the codec registry
func WithRegistry(reg *ncodec.Registry) Opt {
	return func(c *config) { c.registry = reg }
}

// WithMiddleware adds http middleware.  The first listed is outermost.
func WithMiddleware(m ...nvelope.Middleware) Opt {
	return func(c *config) { c.middleware = append(c.middleware, m...) }
}

// WithPlugins adds endpoint plugins.  Each one wraps the handler
// once, when the endpoint is set up.  The same plugin is applied
// only once.
func WithPlugins(p ...Plugin) Opt {
	return func(c *config) { c.plugins = append(c.plugins, p...) }
}

// WithPluginType makes every parameter of type t a plugin parameter
// supplied by fn
func WithPluginType(t reflect.Type, fn nsig.PluginFunc) Opt {
	return func(c *config) { c.pluginTypes[t] = fn }
}

// WithEncoderArgs passes options to the response encoder
func WithEncoderArgs(args ...nvelope.ResponseEncoderFuncArg) Opt {
	return func(c *config) { c.encoderArgs = append(c.encoderArgs, args...) }
}

// WithMetrics records request counts and latencies
func WithMetrics(m *Metrics) Opt {
	return func(c *config) { c.metrics = m }
}

// WithPool sets the worker pool used by ToThread endpoints
func WithPool(p *Pool) Opt {
	return func(c *config) { c.pool = p }
}

// WithMaxBody limits request bodies.  The default is 10 MiB.
func WithMaxBody(n int64) Opt {
	return func(c *config) { c.maxBody = n }
}

// WithUpgrader sets the websocket upgrader for WebSocket endpoints
func WithUpgrader(u *websocket.Upgrader) Opt {
	return func(c *config) { c.upgrader = u }
}

// WithBus supplies *nbus.Bus handler parameters from reg
func WithBus(reg *nbus.Registry) Opt {
	return func(c *config) { c.bus = reg }
}

// Returns declares the responses of an endpoint instead of deriving
// them from the handler's result type:
//
//	npoint.Returns(ntype.Or(
//		ntype.Annotate(ntype.Of[User](), nsig.Status(200)),
//		ntype.Annotate(ntype.Nil, nsig.Status(404)),
//	))
func Returns(expr ntype.Expr) Opt {
	return func(c *config) { c.returns = expr }
}

// ToThread runs the handler on the worker pool instead of the
// request goroutine.  Use it for handlers that block or burn CPU.
func ToThread() Opt {
	return func(c *config) { c.toThread = true }
}

// WebSocket upgrades the connection before the handler runs.  The
// body is not read and the handler's result is not encoded.
func WebSocket() Opt {
	return func(c *config) { c.websocket = true }
}

// Scoped forces a dependency scope per request even when no
// dependency needs one
func Scoped() Opt {
	return func(c *config) { c.scoped = true }
}
