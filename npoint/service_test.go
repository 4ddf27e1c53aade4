package npoint_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nsig"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, page int) map[string]interface{} {
	return map[string]interface{}{"id": id, "page": page}
}

func itemArgs() []interface{} {
	return []interface{}{nsig.Arg("id"), nsig.Arg("page", nparam.Query()).Default(1)}
}

func TestBinders(t *testing.T) {
	cases := []struct {
		name    string
		handler func() http.Handler
	}{
		{"servemux", func() http.Handler {
			sm := http.NewServeMux()
			npoint.RegisterService("items", sm.HandleFunc).RegisterEndpoint("GET /items/{id}", item, itemArgs()...)
			return sm
		}},
		{"chi", func() http.Handler {
			r := chi.NewRouter()
			npoint.RegisterService("items", npoint.ChiBinder(r)).RegisterEndpoint("GET /items/{id}", item, itemArgs()...)
			return r
		}},
		{"gorilla", func() http.Handler {
			r := mux.NewRouter()
			npoint.RegisterServiceWithMux("items", r).RegisterEndpoint("/items/{id}", item, itemArgs()...).Methods("GET")
			return r
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := tc.handler()
			res := do(t, h, "GET", "/items/x9?page=4", "")
			assert.Equal(t, 200, res.code, res.body)
			assert.JSONEq(t, `{"id":"x9","page":4}`, res.body)

			res = do(t, h, "GET", "/items/x9", "")
			assert.JSONEq(t, `{"id":"x9","page":1}`, res.body)

			res = do(t, h, "POST", "/items/x9", "")
			assert.NotEqual(t, 200, res.code, "method restricted")
		})
	}
}

func TestPreregisteredServiceWaitsForStart(t *testing.T) {
	svc := npoint.PreregisterServiceWithMux("late")
	reg := svc.RegisterEndpoint("/late/{n}", func(n int) int { return n + 1 }, nsig.Arg("n")).Methods("GET")
	_, err := reg.Route()
	assert.Error(t, err, "not bound before Start")

	// a bad endpoint is not noticed until Start
	svc.RegisterEndpoint("/bad", func(n int) int { return n })

	assert.Panics(t, func() { svc.Start(mux.NewRouter()) })

	svc = npoint.PreregisterServiceWithMux("late")
	svc.RegisterEndpoint("/late/{n}", func(n int) int { return n + 1 }, nsig.Arg("n")).Methods("GET")
	router := mux.NewRouter()
	started := svc.Start(router)
	assert.Panics(t, func() { svc.Start(router) }, "duplicate start")

	res := do(t, router, "GET", "/late/4", "")
	assert.Equal(t, "5", res.body)

	// registered after start: bound at once
	svc.RegisterEndpoint("/after", func() string { return "after" }).Methods("GET")
	started.RegisterEndpoint("/direct", func() string { return "direct" }).Methods("GET")
	assert.Equal(t, `"after"`, do(t, router, "GET", "/after", "").body)
	assert.Equal(t, `"direct"`, do(t, router, "GET", "/direct", "").body)
}

func TestPreregisteredPlainService(t *testing.T) {
	svc := npoint.PreregisterService("plain")
	reg := svc.RegisterEndpoint("GET /one", func() int { return 1 })
	_, ok := reg.Endpoint()
	assert.False(t, ok)
	assert.Panics(t, func() { svc.RegisterEndpoint("GET /one", func() int { return 2 }) }, "duplicate path")

	sm := http.NewServeMux()
	svc.Start(sm.HandleFunc)
	e, ok := reg.Endpoint()
	require.True(t, ok)
	assert.Equal(t, "GET /one", e.Path())
	assert.True(t, e.Signature().Static())
	assert.Equal(t, "1", do(t, sm, "GET", "/one", "").body)
}

func TestWebSocket(t *testing.T) {
	router := mux.NewRouter()
	svc := npoint.RegisterServiceWithMux("ws", router)
	svc.RegisterEndpoint("/echo/{room}", func(ws *websocket.Conn, room string, id npoint.RequestID) error {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return nil
			}
			if string(msg) == "fail" {
				return errors.New("bad message")
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(room+": "+string(msg))); err != nil {
				return err
			}
		}
	}, nsig.Names("ws", "room", "id"), npoint.WebSocket())
	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/echo/lobby"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{npoint.RequestIDHeader: []string{"ws-1"}})
	require.NoError(t, err)
	assert.Equal(t, "ws-1", resp.Header.Get(npoint.RequestIDHeader))
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "lobby: hello", string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseInternalServerErr, ce.Code, "handler errors are internal unless annotated")
}
