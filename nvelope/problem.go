package nvelope

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ProblemContentType is the media type of ProblemDetail responses
const ProblemContentType = "application/problem+json"

// ProblemDetail is an RFC 9457 problem description
type ProblemDetail struct {
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	Status   int         `json:"status"`
	Detail   interface{} `json:"detail,omitempty"`
	Instance string      `json:"instance,omitempty"`
}

// Problem is implemented by errors that describe themselves as a
// ProblemDetail.  Errors that are not Problems are described by
// their message and their ReturnCode.
type Problem interface {
	error
	ProblemDetail() ProblemDetail
}

// HeaderProblem is a Problem that also adds response headers, like
// WWW-Authenticate
type HeaderProblem interface {
	Problem
	ProblemHeaders() http.Header
}

// DetailOf builds the ProblemDetail for any error.  Instance is set to
// the request path when the problem does not provide one.
func DetailOf(err error, r *http.Request) ProblemDetail {
	var p Problem
	var pd ProblemDetail
	if errors.As(err, &p) {
		pd = p.ProblemDetail()
		var rc returnCode
		if errors.As(err, &rc) {
			pd.Status = rc.code
		}
	} else {
		status := GetReturnCode(err)
		pd = ProblemDetail{
			Type:   kebab(http.StatusText(status)),
			Title:  http.StatusText(status),
			Status: status,
			Detail: err.Error(),
		}
		if status >= 500 {
			// internal errors are not shown to clients
			pd.Detail = nil
		}
	}
	if pd.Status == 0 {
		pd.Status = 500
	}
	if pd.Title == "" {
		pd.Title = http.StatusText(pd.Status)
	}
	if pd.Type == "" {
		pd.Type = kebab(pd.Title)
	}
	if pd.Instance == "" && r != nil && r.URL != nil {
		pd.Instance = r.URL.Path
	}
	return pd
}

// WriteProblem writes err as an application/problem+json response
func WriteProblem(w http.ResponseWriter, r *http.Request, err error) {
	pd := DetailOf(err, r)
	var hp HeaderProblem
	if errors.As(err, &hp) {
		for k, vs := range hp.ProblemHeaders() {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
	}
	enc, mErr := json.Marshal(pd)
	if mErr != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(pd.Status)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(pd.Status)
	_, _ = w.Write(enc)
}

var notWord = regexp.MustCompile(`[^a-z0-9]+`)

func kebab(s string) string {
	return strings.Trim(notWord.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
