package npoint

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/nsig"
	"github.com/muir/nhttp/nvelope"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID can be a handler parameter.  It is taken from the
// X-Request-ID request header, or generated when that is absent.
type RequestID string

type requestIDKey struct{}

// GetRequestID returns the id of the request being handled
func GetRequestID(ctx context.Context) RequestID {
	id, _ := ctx.Value(requestIDKey{}).(RequestID)
	return id
}

var requestIDType = reflect.TypeOf(RequestID(""))

// Call runs an endpoint handler with its extracted parameters
type Call func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// EndpointInfo describes an endpoint to a Plugin
type EndpointInfo struct {
	Path      string
	Graph     *ngraph.Graph
	Signature *nsig.EndpointSignature
	Call      Call
}

// Plugin decorates an endpoint.  It is called once, when the
// endpoint is set up, and returns the Call that replaces info.Call.
// Plugins can inspect or change parameters and results, or refuse
// the request by returning an error.
type Plugin func(info EndpointInfo) Call

// Endpoint is a handler function bound to its signature.  It is an
// http.Handler.
type Endpoint struct {
	path    string
	fn      reflect.Value
	cfg     *config
	graph   *ngraph.Graph
	sig     *nsig.EndpointSignature
	inj     *nsig.Injector
	call    Call
	encoder *nvelope.ResponseEncoder
	handler http.HandlerFunc
}

var _ http.Handler = &Endpoint{}

// NewEndpoint parses handler for the route path.  Items are
// nsig.ArgSpec values (one per handler parameter, in order), slices
// of them, Opts, or nvelope.Middleware.  Every configuration error
// is returned here rather than at request time.
func NewEndpoint(path string, handler interface{}, items ...interface{}) (*Endpoint, error) {
	return newEndpoint(defaultConfig(), path, handler, items)
}

func newEndpoint(base *config, path string, handler interface{}, items []interface{}) (*Endpoint, error) {
	cfg := base.copy()
	var args []nsig.ArgSpec
	for _, item := range items {
		switch x := item.(type) {
		case nsig.ArgSpec:
			args = append(args, x)
		case []nsig.ArgSpec:
			args = append(args, x...)
		case Opt:
			x(cfg)
		case []Opt:
			for _, opt := range x {
				opt(cfg)
			}
		case nvelope.Middleware:
			cfg.middleware = append(cfg.middleware, x)
		default:
			return nil, errors.Errorf("endpoint %s: %T is neither a parameter nor an option", path, item)
		}
	}
	if cfg.log == nil {
		cfg.log = nvelope.NoLogger()
	}
	if cfg.graph == nil {
		cfg.graph = ngraph.New()
	}

	popts := []nsig.ParserOpt{
		nsig.WithRegistry(cfg.registry),
		nsig.WithLogger(cfg.log),
		nsig.WithPlugin(requestIDType, func(ctx context.Context, _ nsig.Connection, _ nsig.Resolver) (interface{}, error) {
			return GetRequestID(ctx), nil
		}),
	}
	if cfg.bus != nil {
		popts = append(popts, nsig.WithBus(cfg.bus))
	}
	for t, fn := range cfg.pluginTypes {
		popts = append(popts, nsig.WithPlugin(t, fn))
	}
	sig, err := nsig.NewParser(cfg.graph, path, popts...).ParseWithReturns(handler, cfg.returns, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint %s", path)
	}
	if cfg.websocket && (sig.Body != nil || sig.Form != nil) {
		return nil, errors.Wrapf(nparam.NotSupported("body parameter %s on a websocket", sig.BodyName()), "endpoint %s", path)
	}

	e := &Endpoint{
		path:    path,
		fn:      reflect.ValueOf(handler),
		cfg:     cfg,
		graph:   cfg.graph,
		sig:     sig,
		inj:     nsig.NewInjector(sig),
		encoder: nvelope.NewResponseEncoder(cfg.log, cfg.encoderArgs...),
	}
	e.call = e.invoke
	for _, p := range cfg.plugins {
		e.call = p(EndpointInfo{
			Path:      path,
			Graph:     e.graph,
			Signature: sig,
			Call:      e.call,
		})
	}
	e.handler = nvelope.Combine(cfg.middleware...)(e.serve)
	return e, nil
}

// Signature is the parsed signature of the handler
func (e *Endpoint) Signature() *nsig.EndpointSignature { return e.sig }

// Path is the route template the endpoint was parsed with
func (e *Endpoint) Path() string { return e.path }

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.handler(w, r)
}

func (e *Endpoint) serve(w http.ResponseWriter, r *http.Request) {
	done := e.cfg.metrics.begin(e.path)
	id := RequestID(r.Header.Get(RequestIDHeader))
	if id == "" {
		id = RequestID(uuid.NewString())
	}
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

	if e.cfg.websocket {
		done(r.Method, e.serveWebSocket(w, r))
		return
	}

	dw, ok := w.(*nvelope.DeferredWriter)
	if !ok {
		dw = nvelope.NewDeferredWriter(w)
	}
	dw.Header().Set(RequestIDHeader, string(id))
	dw.PreserveHeader()
	e.handle(dw, r)
	status := dw.Status()
	if status == 0 {
		status = http.StatusOK
	}
	done(r.Method, status)
}

func (e *Endpoint) resolver(ctx context.Context) (nsig.Resolver, func(), error) {
	if !e.sig.Scoped && !e.cfg.scoped {
		return e.graph, func() {}, nil
	}
	scope, err := e.graph.EnterScope(ctx)
	if err != nil {
		return nil, nil, err
	}
	return scope, func() {
		if err := scope.Close(); err != nil {
			e.cfg.log.Warn("Cannot close scope", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}, nil
}

func (e *Endpoint) handle(dw *nvelope.DeferredWriter, r *http.Request) {
	ctx := r.Context()
	resolver, exit, err := e.resolver(ctx)
	if err != nil {
		e.encoder.WriteError(dw, r, err)
		return
	}
	defer exit()

	var params map[string]interface{}
	if !e.sig.Static() {
		conn := nsig.NewConnection(dw, r,
			nsig.WithPathValues(pathValues(r)),
			nsig.WithMaxBody(e.cfg.maxBody))
		res, err := e.inj.ValidateRequest(ctx, conn, resolver)
		defer res.Cleanup()
		if err != nil {
			e.encoder.WriteError(dw, r, err)
			return
		}
		params = res.Params
	}
	result, err := e.call(ctx, params)
	if err != nil {
		e.encoder.WriteError(dw, r, err)
		return
	}
	e.respond(dw, r, result)
}

func (e *Endpoint) respond(dw *nvelope.DeferredWriter, r *http.Request, result interface{}) {
	if e.sig.Result == nil && dw.Written() {
		// the handler wrote its own response
		if err := dw.Flush(); err != nil {
			e.cfg.log.Warn("Cannot write response", map[string]interface{}{
				"error": err.Error(),
				"uri":   r.URL.String(),
			})
		}
		return
	}
	ret := e.sig.Returns.Select(result)
	if ret == nil {
		e.encoder.Write(dw, r, http.StatusOK, "", nil, nil)
		return
	}
	switch ret.Mark {
	case nsig.Stream:
		items := func(yield func(interface{}) bool) {
			for v := range nsig.StreamValues(reflect.ValueOf(result)) {
				if !yield(v.Interface()) {
					return
				}
			}
		}
		e.encoder.Stream(dw, r, ret.Status, ret.ContentType, nvelope.Marshaller(ret.Encode), items)
	case nsig.Empty:
		e.encoder.Write(dw, r, ret.Status, "", nil, nil)
	default:
		e.encoder.Write(dw, r, ret.Status, ret.ContentType, nvelope.Marshaller(ret.Encode), result)
	}
}

// invoke is the innermost Call
func (e *Endpoint) invoke(ctx context.Context, params map[string]interface{}) (result interface{}, err error) {
	args := e.inj.Args(&nsig.ParseResult{Params: params})
	run := func() {
		defer nvelope.SetErrorOnPanic(&err, e.cfg.log)
		result, err = e.results(e.fn.Call(args))
	}
	if !e.cfg.toThread {
		run()
		return result, err
	}
	pool := e.cfg.pool
	if pool == nil {
		pool = sharedPool()
	}
	if perr := pool.Run(ctx, run); perr != nil {
		return nil, errors.Wrap(perr, "wait for worker")
	}
	return result, err
}

func (e *Endpoint) results(out []reflect.Value) (interface{}, error) {
	var err error
	if e.sig.HasError {
		if ev := out[len(out)-1]; !ev.IsNil() {
			err = ev.Interface().(error)
		}
	}
	if e.sig.Result == nil {
		return nil, err
	}
	rv := out[0]
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			return nil, err
		}
	}
	return rv.Interface(), err
}

// pathValues finds the path variables set by chi or gorilla mux.  A
// nil result leaves the lookup to http.Request.PathValue.
func pathValues(r *http.Request) map[string]string {
	if rc := chi.RouteContext(r.Context()); rc != nil && len(rc.URLParams.Keys) > 0 {
		values := make(map[string]string, len(rc.URLParams.Keys))
		for i, k := range rc.URLParams.Keys {
			values[k] = rc.URLParams.Values[i]
		}
		return values
	}
	if vars := mux.Vars(r); vars != nil {
		return vars
	}
	return nil
}

type unwrapper interface {
	Unwrap() http.ResponseWriter
}

func (e *Endpoint) serveWebSocket(w http.ResponseWriter, r *http.Request) int {
	for {
		if _, ok := w.(http.Hijacker); ok {
			break
		}
		u, ok := w.(unwrapper)
		if !ok {
			break
		}
		w = u.Unwrap()
	}
	upgrader := e.cfg.upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	ws, err := upgrader.Upgrade(w, r, http.Header{RequestIDHeader: []string{string(GetRequestID(r.Context()))}})
	if err != nil {
		// the upgrader has already responded
		e.cfg.log.Warn("websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
			"uri":   r.URL.String(),
		})
		return http.StatusBadRequest
	}
	defer ws.Close()

	ctx := r.Context()
	err = func() error {
		resolver, exit, err := e.resolver(ctx)
		if err != nil {
			return err
		}
		defer exit()
		conn := nsig.NewConnection(w, r,
			nsig.WithPathValues(pathValues(r)),
			nsig.WithWebSocket(ws))
		res, err := e.inj.ValidateWebSocket(ctx, conn, resolver)
		defer res.Cleanup()
		if err != nil {
			return err
		}
		_, err = e.call(ctx, res.Params)
		return err
	}()
	_ = ws.WriteControl(websocket.CloseMessage, closeMessage(err), time.Now().Add(time.Second))
	return http.StatusSwitchingProtocols
}

// closeMessage describes err in a websocket close frame.  Reasons
// are limited to 123 bytes.
func closeMessage(err error) []byte {
	if err == nil {
		return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}
	if nvelope.GetReturnCode(err) >= 500 {
		return websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error")
	}
	reason := err.Error()
	if len(reason) > 123 {
		reason = reason[:123]
	}
	return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
}
