package npoint

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ChiBinder binds endpoints to a chi router.  A path may begin with a
// method, as in "GET /users/{id}".
func ChiBinder(router chi.Router) EndpointBinder {
	return func(path string, fn func(http.ResponseWriter, *http.Request)) {
		if method, pattern, ok := strings.Cut(path, " "); ok {
			router.MethodFunc(method, pattern, fn)
			return
		}
		router.HandleFunc(path, fn)
	}
}
