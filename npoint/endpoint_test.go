package npoint_test

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nsig"
	"github.com/muir/nhttp/ntype"
	"github.com/muir/nhttp/nvelope"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getUser(id int, verbose bool, s *store) (*user, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nvelope.NotFound(errors.Errorf("no user %d", id))
	}
	if verbose {
		u.Name = strings.ToUpper(u.Name)
	}
	return &u, nil
}

func userService(t *testing.T, opts ...npoint.Opt) *mux.Router {
	g := ngraph.New()
	require.NoError(t, g.Value(newStore()))
	router := mux.NewRouter()
	svc := npoint.RegisterServiceWithMux("users", router, append([]npoint.Opt{npoint.WithGraph(g)}, opts...)...)
	svc.RegisterEndpoint("/users/{id}", getUser,
		nsig.Arg("id"),
		nsig.Arg("verbose").Default(false),
		nsig.Arg("s"),
	).Methods("GET")
	return router
}

func TestEndpointSuccess(t *testing.T) {
	router := userService(t)
	res := do(t, router, "GET", "/users/7?verbose=true", "")
	assert.Equal(t, 200, res.code, res.body)
	assert.JSONEq(t, `{"id":7,"name":"ADA"}`, res.body)
	assert.Equal(t, "application/json", res.header.Get("Content-Type"))
	assert.NotEmpty(t, res.header.Get(npoint.RequestIDHeader))

	res = do(t, router, "GET", "/users/7", "", npoint.RequestIDHeader, "req-1")
	assert.JSONEq(t, `{"id":7,"name":"ada"}`, res.body)
	assert.Equal(t, "req-1", res.header.Get(npoint.RequestIDHeader))
}

func TestEndpointErrors(t *testing.T) {
	router := userService(t)

	res := do(t, router, "GET", "/users/8", "")
	assert.Equal(t, 404, res.code)
	m := res.json(t)
	assert.Equal(t, "no user 8", m["detail"])
	assert.Equal(t, "/users/8", m["instance"])

	res = do(t, router, "GET", "/users/abc?verbose=maybe", "")
	assert.Equal(t, 422, res.code)
	m = res.json(t)
	assert.Equal(t, "invalid-request-errors", m["type"])
	problems, ok := m["detail"].([]interface{})
	require.True(t, ok, res.body)
	assert.Len(t, problems, 2, "path and query problems are reported together")
	assert.Equal(t, "invalid-data-type", problems[0].(map[string]interface{})["type"])
	assert.Equal(t, "path", problems[0].(map[string]interface{})["location"])
	assert.Equal(t, "query", problems[1].(map[string]interface{})["location"])
}

func TestBodyAndStatus(t *testing.T) {
	var saved []user
	h := npoint.CreateEndpoint("/users", func(u user) user {
		saved = append(saved, u)
		return u
	},
		nsig.Arg("u"),
		npoint.Returns(ntype.Annotate(ntype.Of[user](), nsig.Status(201))),
	)
	res := do(t, h, "POST", "/users", `{"id":3,"name":"grace"}`)
	assert.Equal(t, 201, res.code, res.body)
	assert.JSONEq(t, `{"id":3,"name":"grace"}`, res.body)
	assert.Equal(t, []user{{ID: 3, Name: "grace"}}, saved)

	res = do(t, h, "POST", "/users", `{"id":3}`)
	assert.Equal(t, 422, res.code, "validate tags are enforced")

	res = do(t, h, "POST", "/users", `{"id":`)
	assert.Equal(t, 422, res.code)
	assert.Contains(t, res.body, "invalid-json-received")
	assert.Len(t, saved, 1)
}

type notFound struct {
	Missing string `json:"missing"`
}

func TestUnionReturns(t *testing.T) {
	sm := http.NewServeMux()
	svc := npoint.RegisterService("things", sm.HandleFunc)
	svc.RegisterEndpoint("GET /things/{name}", func(name string) interface{} {
		if name == "widget" {
			return user{ID: 1, Name: name}
		}
		return notFound{Missing: name}
	},
		nsig.Arg("name"),
		npoint.Returns(ntype.Or(
			ntype.Annotate(ntype.Of[user](), nsig.Status(200)),
			ntype.Annotate(ntype.Of[notFound](), nsig.Status(404)),
		)),
	)
	res := do(t, sm, "GET", "/things/widget", "")
	assert.Equal(t, 200, res.code, res.body)
	assert.JSONEq(t, `{"id":1,"name":"widget"}`, res.body)

	res = do(t, sm, "GET", "/things/gadget", "")
	assert.Equal(t, 404, res.code)
	assert.JSONEq(t, `{"missing":"gadget"}`, res.body)
}

func TestStaticAndEmpty(t *testing.T) {
	h := npoint.CreateEndpoint("/hello", func() string { return "hi" })
	res := do(t, h, "GET", "/hello", "")
	assert.Equal(t, 200, res.code)
	assert.Equal(t, `"hi"`, res.body)

	var calls int
	h = npoint.CreateEndpoint("/ping", func() error {
		calls++
		return nil
	})
	res = do(t, h, "GET", "/ping", "")
	assert.Equal(t, 200, res.code)
	assert.Empty(t, res.body)
	assert.Empty(t, res.header.Get("Content-Type"))
	assert.Equal(t, 1, calls)

	h = npoint.CreateEndpoint("/gone", func() {},
		npoint.Returns(ntype.Annotate(ntype.Nil, nsig.Status(204))))
	res = do(t, h, "DELETE", "/gone", "")
	assert.Equal(t, 204, res.code)
}

func TestTextAndCustomEncoder(t *testing.T) {
	h := npoint.CreateEndpoint("/text", func(name string) string { return "hello " + name },
		nsig.Arg("name", nparam.Query()),
		npoint.Returns(ntype.Annotate(ntype.Of[string](), nsig.Text)))
	res := do(t, h, "GET", "/text?name=bob", "")
	assert.Equal(t, "hello bob", res.body)
	assert.Equal(t, "text/plain; charset=utf-8", res.header.Get("Content-Type"))

	csv := nsig.Encoder(func(v interface{}) ([]byte, error) {
		return []byte(strings.Join(v.([]string), ",")), nil
	}, "text/csv")
	h = npoint.CreateEndpoint("/csv", func() []string { return []string{"a", "b"} },
		npoint.Returns(ntype.Annotate(ntype.Of[[]string](), csv)))
	res = do(t, h, "GET", "/csv", "")
	assert.Equal(t, "a,b", res.body)
	assert.Equal(t, "text/csv", res.header.Get("Content-Type"))
}

func TestHandlerWritesItsOwnResponse(t *testing.T) {
	h := npoint.CreateEndpoint("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(202)
		_, _ = w.Write([]byte("accepted"))
	}, nsig.Names("w", "r"))
	res := do(t, h, "PUT", "/raw", "")
	assert.Equal(t, 202, res.code)
	assert.Equal(t, "accepted", res.body)
	assert.Equal(t, "PUT", res.header.Get("X-Method"))
}

func TestPanicBecomesProblem(t *testing.T) {
	h := npoint.CreateEndpoint("/boom", func(w http.ResponseWriter) (string, error) {
		w.Header().Set("X-Partial", "1")
		panic("kaboom")
	}, nsig.Arg("w"))
	res := do(t, h, "GET", "/boom", "")
	assert.Equal(t, 500, res.code)
	assert.Equal(t, nvelope.ProblemContentType, res.header.Get("Content-Type"))
	assert.NotContains(t, res.body, "kaboom")
	assert.Empty(t, res.header.Get("X-Partial"))
	assert.NotEmpty(t, res.header.Get(npoint.RequestIDHeader), "request id survives the reset")
}

func TestRequestIDParameter(t *testing.T) {
	h := npoint.CreateEndpoint("/id", func(ctx context.Context, id npoint.RequestID) string {
		assert.Equal(t, id, npoint.GetRequestID(ctx))
		return string(id)
	}, nsig.Names("ctx", "id"))
	res := do(t, h, "GET", "/id", "", npoint.RequestIDHeader, "abc")
	assert.Equal(t, `"abc"`, res.body)
}

type tx struct {
	id     int
	closed *int32
}

func TestScopedDependency(t *testing.T) {
	var opened, closed int32
	g := ngraph.New()
	g.MustProvide(func(tenant string) (*tx, func()) {
		n := atomic.AddInt32(&opened, 1)
		return &tx{id: int(n), closed: &closed}, func() { atomic.AddInt32(&closed, 1) }
	}, ngraph.Named("tenant"), ngraph.WithLifetime(ngraph.Scoped))

	h := npoint.CreateEndpoint("/tx", func(a *tx, b *tx) (int, error) {
		if a != b {
			return 0, errors.New("one transaction per request")
		}
		assert.Equal(t, int32(0), atomic.LoadInt32(a.closed), "open during the handler")
		return a.id, nil
	}, nsig.Names("a", "b"), npoint.WithGraph(g))

	res := do(t, h, "GET", "/tx?tenant=acme", "")
	assert.Equal(t, 200, res.code, res.body)
	assert.Equal(t, "1", res.body)
	res = do(t, h, "GET", "/tx?tenant=acme", "")
	assert.Equal(t, "2", res.body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&closed))

	res = do(t, h, "GET", "/tx", "")
	assert.Equal(t, 422, res.code, "the dependency's own parameter is required")
	assert.Contains(t, res.body, "tenant")
	assert.Equal(t, int32(2), atomic.LoadInt32(&opened), "no dependency is built for an invalid request")
}

type account struct{ id int }

func TestSingletonWithQueryInput(t *testing.T) {
	g := ngraph.New()
	g.MustProvide(func(id int) *account { return &account{id: id} }, ngraph.Named("id"))
	h := npoint.CreateEndpoint("/account", func(a *account) int { return a.id },
		nsig.Names("a"), npoint.WithGraph(g))

	res := do(t, h, "GET", "/account?id=1", "")
	assert.Equal(t, 200, res.code, res.body)
	assert.Equal(t, "1", res.body)
	res = do(t, h, "GET", "/account?id=2", "")
	assert.Equal(t, "2", res.body)
}

type accountOpened struct{ id int }

func TestEventBus(t *testing.T) {
	reg := nbus.New()
	var opened []int
	nbus.Listen(reg, func(_ context.Context, e accountOpened) error {
		opened = append(opened, e.id)
		return nil
	})
	h := npoint.CreateEndpoint("/open", func(ctx context.Context, id int, bus *nbus.Bus) (int, error) {
		return id, bus.Publish(ctx, accountOpened{id: id})
	}, nsig.Names("ctx", "id", "bus"), npoint.WithBus(reg))

	res := do(t, h, "GET", "/open?id=5", "")
	assert.Equal(t, 200, res.code, res.body)
	assert.Equal(t, []int{5}, opened)

	h = npoint.CreateEndpoint("/open", func(ctx context.Context, bus *nbus.Bus) error {
		return bus.Publish(ctx, "unheard")
	}, nsig.Names("ctx", "bus"), npoint.WithBus(reg))
	res = do(t, h, "GET", "/open", "")
	assert.Equal(t, 500, res.code, "no listener")
}

func TestToThread(t *testing.T) {
	pool := npoint.NewPool(1)
	var running, peak int32
	h := npoint.CreateEndpoint("/slow", func(n int) int {
		cur := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return n * 2
	}, nsig.Arg("n", nparam.Query()), npoint.ToThread(), npoint.WithPool(pool))

	done := make(chan response, 3)
	for i := 0; i < 3; i++ {
		go func() { done <- do(t, h, "GET", "/slow?n=21", "") }()
	}
	for i := 0; i < 3; i++ {
		res := <-done
		assert.Equal(t, "42", res.body)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak), "pool of one runs handlers one at a time")
}

func TestPoolRunCancelled(t *testing.T) {
	pool := npoint.NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Run(ctx, func() { t.Error("should not run") })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestPlugins(t *testing.T) {
	var seen []string
	audit := func(label string) npoint.Plugin {
		return func(info npoint.EndpointInfo) npoint.Call {
			assert.Equal(t, []string{"name"}, info.Signature.Names)
			return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				seen = append(seen, label)
				if params["name"] == "mallory" {
					return nil, nvelope.Forbidden(errors.New("not you"))
				}
				return info.Call(ctx, params)
			}
		}
	}
	h := npoint.CreateEndpoint("/greet", func(name string) string { return "hi " + name },
		nsig.Arg("name", nparam.Query()),
		npoint.WithPlugins(audit("inner"), audit("outer")))

	res := do(t, h, "GET", "/greet?name=bob", "")
	assert.Equal(t, `"hi bob"`, res.body)
	assert.Equal(t, []string{"outer", "inner"}, seen)

	res = do(t, h, "GET", "/greet?name=mallory", "")
	assert.Equal(t, 403, res.code)
}

func TestMiddleware(t *testing.T) {
	var order []string
	mw := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "before")
			h(w, r)
			order = append(order, "after")
		}
	}
	h := npoint.CreateEndpoint("/mw", func() string {
		order = append(order, "handler")
		return "ok"
	}, nvelope.Middleware(mw), nvelope.Middleware(nvelope.Recover(nil)))
	res := do(t, h, "GET", "/mw", "")
	assert.Equal(t, `"ok"`, res.body)
	assert.Equal(t, []string{"before", "handler", "after"}, order)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := npoint.MustNewMetrics(reg, "test")
	router := userService(t, npoint.WithMetrics(m))
	do(t, router, "GET", "/users/7", "")
	do(t, router, "GET", "/users/9", "")

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "test_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			var status string
			for _, l := range metric.GetLabel() {
				if l.GetName() == "status" {
					status = l.GetValue()
				}
			}
			counts[status] += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"200": 1, "404": 1}, counts)

	_, err = npoint.NewMetrics(reg, "test")
	assert.Error(t, err, "duplicate registration")
}

func TestConfigurationErrors(t *testing.T) {
	_, err := npoint.NewEndpoint("/x/{id}", func(id int) int { return id },
		nsig.Arg("id").Default(3))
	assert.Error(t, err, "path parameter with a default")

	_, err = npoint.NewEndpoint("/x", func(a, b user) int { return 0 }, nsig.Names("a", "b"))
	var ns *nparam.NotSupportedError
	assert.ErrorAs(t, err, &ns, "two bodies")

	_, err = npoint.NewEndpoint("/x", func(a int) int { return a }, "a")
	assert.Error(t, err, "a bare string is not an argument")

	_, err = npoint.NewEndpoint("/ws", func(u user) {}, nsig.Arg("u"), npoint.WebSocket())
	assert.ErrorAs(t, err, &ns, "websockets have no body")

	assert.Panics(t, func() {
		npoint.CreateEndpoint("/x", func(a int) int { return a })
	}, "parameter count mismatch")
}
