package nvelope

import (
	"net/http"
)

// Middleware is the usual net/http wrapping pattern
type Middleware func(http.HandlerFunc) http.HandlerFunc

// Combine nests middleware so that the first one listed is the
// outermost.
func Combine(m ...Middleware) Middleware {
	switch len(m) {
	case 0:
		return func(h http.HandlerFunc) http.HandlerFunc {
			return h
		}
	case 1:
		return m[0]
	default:
		combined := m[len(m)-1]
		for i := len(m) - 2; i >= 0; i-- {
			f := m[i]
			c := combined
			combined = func(h http.HandlerFunc) http.HandlerFunc {
				return f(c(h))
			}
		}
		return combined
	}
}

// Recover is middleware that turns a panic in the wrapped handler
// into a 500 problem response, provided nothing has been sent yet.
func Recover(log BasicLogger) Middleware {
	if log == nil {
		log = NoLogger()
	}
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			dw, ok := w.(*DeferredWriter)
			if !ok {
				dw = NewDeferredWriter(w)
			}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				err := panicToError(p, log)
				if dw.Done() {
					return
				}
				_ = dw.Reset()
				WriteProblem(dw, r, err)
				_ = dw.Flush()
			}()
			h(dw, r)
			if !ok {
				_ = dw.Flush()
			}
		}
	}
}
