package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/nserve"
	"github.com/muir/nhttp/nvelope"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func testServer(t *testing.T) *server {
	cfg, err := nserve.LoadConfig("")
	require.NoError(t, err)
	s, err := newServer(cfg, "test-secret", nvelope.LoggerFromZap(zaptest.NewLogger(t)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.app.Do(context.Background(), nserve.Shutdown) })
	return s
}

func send(t *testing.T, h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTodoLifecycle(t *testing.T) {
	s := testServer(t)
	h := s.handler

	w := send(t, h, "POST", "/todos", `{"title":"write tests"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "writes need a token")

	w = send(t, h, "POST", "/token?user=ann", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	token := w.Body.String()

	w = send(t, h, "POST", "/todos", `{"title":"write tests"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created Todo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, Todo{ID: 1, Title: "write tests", Owner: "ann"}, created)

	w = send(t, h, "POST", "/todos", `{"title":""}`, token)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = send(t, h, "GET", "/todos/1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"title":"write tests","done":false,"owner":"ann"}`, w.Body.String())

	w = send(t, h, "POST", "/todos/1/done", "", token)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = send(t, h, "GET", "/todos?done=true", "", "")
	assert.JSONEq(t, `[{"id":1,"title":"write tests","done":true,"owner":"ann"}]`, w.Body.String())
	w = send(t, h, "GET", "/todos?done=false", "", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestTodoErrors(t *testing.T) {
	s := testServer(t)
	h := s.handler

	w := send(t, h, "GET", "/todos/9", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no todo 9")

	w = send(t, h, "GET", "/todos/0", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = send(t, h, "GET", "/todos?limit=many", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = send(t, h, "POST", "/token", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "user is required")

	owner := send(t, h, "POST", "/token?user=ann", "", "").Body.String()
	other := send(t, h, "POST", "/token?user=ben", "", "").Body.String()
	require.Equal(t, http.StatusCreated, send(t, h, "POST", "/todos", `{"title":"mine"}`, owner).Code)
	w = send(t, h, "POST", "/todos/1/done", "", other)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTodoCompletedEvent(t *testing.T) {
	s := testServer(t)
	var completed []Todo
	nbus.Listen(s.bus, func(_ context.Context, e TodoCompleted) error {
		completed = append(completed, e.Todo)
		return nil
	})
	token := send(t, s.handler, "POST", "/token?user=ann", "", "").Body.String()
	require.Equal(t, http.StatusCreated, send(t, s.handler, "POST", "/todos", `{"title":"ship"}`, token).Code)
	assert.Empty(t, completed)

	w := send(t, s.handler, "POST", "/todos/1/done", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, completed, 1)
	assert.Equal(t, Todo{ID: 1, Title: "ship", Done: true, Owner: "ann"}, completed[0])

	send(t, s.handler, "POST", "/todos/9/done", "", token)
	assert.Len(t, completed, 1, "nothing published for a failed completion")
}

func TestMetricsRoute(t *testing.T) {
	s := testServer(t)
	send(t, s.handler, "GET", "/todos", "", "")
	w := send(t, s.handler, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `nhttp_http_requests_total{endpoint="GET /todos"`)
}

func TestRoutes(t *testing.T) {
	s := testServer(t)
	routes, err := s.routes()
	require.NoError(t, err)
	byPath := make(map[string]routeInfo)
	for _, r := range routes {
		byPath[r.Path] = r
	}
	require.Len(t, byPath, 5)
	assert.Equal(t, []int{201}, byPath["POST /todos"].Statuses)
	assert.Contains(t, byPath["POST /todos"].Parameters, "body todo")
	assert.Contains(t, byPath["POST /todos"].Parameters, "plugin claims")
	assert.Contains(t, byPath["GET /todos/{id}"].Parameters, "path id")
	assert.Contains(t, byPath["GET /todos"].Parameters, "dependency store")
}

func TestRoutesCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes"})
	require.NoError(t, cmd.Execute())
	var routes []routeInfo
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &routes))
	assert.Len(t, routes, 5)

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "nhttpd dev\n", out.String())
}
