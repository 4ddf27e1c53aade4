package nvelope_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authProblem struct{}

func (authProblem) Error() string { return "token expired" }
func (authProblem) ProblemDetail() nvelope.ProblemDetail {
	return nvelope.ProblemDetail{Status: 401, Detail: "token expired"}
}
func (authProblem) ProblemHeaders() http.Header {
	return http.Header{"Www-Authenticate": []string{`Bearer error="invalid_token"`}}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	assert.Equal(t, nvelope.ProblemContentType, rec.Header().Get("Content-Type"))
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestWriteProblem(t *testing.T) {
	r := httptest.NewRequest("GET", "/users/7", nil)

	rec := httptest.NewRecorder()
	nvelope.WriteProblem(rec, r, nvelope.NotFound(fmt.Errorf("no user 7")))
	assert.Equal(t, 404, rec.Code)
	m := decodeProblem(t, rec)
	assert.Equal(t, "not-found", m["type"])
	assert.Equal(t, "Not Found", m["title"])
	assert.Equal(t, "no user 7", m["detail"])
	assert.Equal(t, "/users/7", m["instance"])

	rec = httptest.NewRecorder()
	nvelope.WriteProblem(rec, r, errors.New("database password is hunter2"))
	assert.Equal(t, 500, rec.Code)
	m = decodeProblem(t, rec)
	assert.NotContains(t, rec.Body.String(), "hunter2", "internal errors are hidden")

	rec = httptest.NewRecorder()
	nvelope.WriteProblem(rec, r, errors.Wrap(authProblem{}, "check"))
	assert.Equal(t, 401, rec.Code)
	assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
	m = decodeProblem(t, rec)
	assert.Equal(t, "unauthorized", m["type"])
}

func TestResponseEncoderWrite(t *testing.T) {
	enc := nvelope.NewResponseEncoder(nil)
	r := httptest.NewRequest("GET", "/", nil)

	rec := httptest.NewRecorder()
	w := nvelope.NewDeferredWriter(rec)
	enc.Write(w, r, 201, "application/json", json.Marshal, map[string]int{"id": 3})
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":3}`, rec.Body.String())
	assert.True(t, w.Done())

	rec = httptest.NewRecorder()
	w = nvelope.NewDeferredWriter(rec)
	enc.Write(w, r, 200, "", nil, nil)
	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	w = nvelope.NewDeferredWriter(rec)
	w.Header().Set("X-Partial", "yes")
	enc.Write(w, r, 200, "application/json", json.Marshal, make(chan int))
	assert.Equal(t, 500, rec.Code, "marshal failure")
	assert.Empty(t, rec.Header().Get("X-Partial"), "reset discards headers")
	decodeProblem(t, rec)
}

func TestResponseEncoderAPIEnforcer(t *testing.T) {
	enc := nvelope.NewResponseEncoder(nvelope.NoLogger(),
		nvelope.WithAPIEnforcer(func(b []byte, _ *http.Request) error {
			if strings.Contains(string(b), "secret") {
				return errors.New("response leaks a secret")
			}
			return nil
		}))
	rec := httptest.NewRecorder()
	enc.Write(nvelope.NewDeferredWriter(rec), httptest.NewRequest("GET", "/", nil), 200, "text/plain", func(v interface{}) ([]byte, error) {
		return []byte(v.(string)), nil
	}, "secret")
	assert.Equal(t, 500, rec.Code)
}

func TestResponseEncoderStream(t *testing.T) {
	enc := nvelope.NewResponseEncoder(nil)
	r := httptest.NewRequest("GET", "/events", nil)
	items := func(yield func(interface{}) bool) {
		for _, s := range []string{"one", "two\nlines"} {
			if !yield(s) {
				return
			}
		}
	}
	text := func(v interface{}) ([]byte, error) { return []byte(v.(string)), nil }

	rec := httptest.NewRecorder()
	enc.Stream(nvelope.NewDeferredWriter(rec), r, 200, "text/event-stream", text, items)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: one\n\ndata: two\ndata: lines\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	rec = httptest.NewRecorder()
	enc.Stream(nvelope.NewDeferredWriter(rec), r, 200, "application/x-ndjson", json.Marshal,
		func(yield func(interface{}) bool) {
			for n := range slices.Values([]int{1, 2}) {
				if !yield(n) {
					return
				}
			}
		})
	assert.Equal(t, "1\n2\n", rec.Body.String())
}

func TestRecoverMiddleware(t *testing.T) {
	var logged []string
	log := recordingLogger{msgs: &logged}
	h := nvelope.Combine(nvelope.Recover(log))(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Half", "done")
		_, _ = w.Write([]byte("partial"))
		panic("boom")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "partial")
	assert.Empty(t, rec.Header().Get("X-Half"))
	assert.Equal(t, []string{"panic!"}, logged)
}

func TestCombineOrder(t *testing.T) {
	var order []string
	mw := func(name string) nvelope.Middleware {
		return func(h http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				h(w, r)
			}
		}
	}
	h := nvelope.Combine(mw("a"), mw("b"), mw("c"))(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	})
	h(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

type recordingLogger struct {
	msgs *[]string
}

func (l recordingLogger) Error(msg string, _ ...map[string]interface{}) {
	*l.msgs = append(*l.msgs, msg)
}

func (l recordingLogger) Warn(msg string, _ ...map[string]interface{}) {
	*l.msgs = append(*l.msgs, msg)
}

func (l recordingLogger) Debug(msg string, _ ...map[string]interface{}) {}
