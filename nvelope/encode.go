package nvelope

import (
	"bytes"
	"iter"
	"net/http"
	"strings"
)

// Marshaller turns a response model into bytes
type Marshaller func(interface{}) ([]byte, error)

type encoderOptions struct {
	apiEnforcer func(enc []byte, r *http.Request) error
}

// ResponseEncoderFuncArg is an option for NewResponseEncoder
type ResponseEncoderFuncArg func(*encoderOptions)

// WithAPIEnforcer specifies
// a function that can check if the encoded API response is valid
// for the endpoint that is generating the response.  This is where
// swagger enforcement could be added.  The default is not not verify
// API conformance.
func WithAPIEnforcer(apiEnforcer func(enc []byte, r *http.Request) error) ResponseEncoderFuncArg {
	return func(o *encoderOptions) {
		o.apiEnforcer = apiEnforcer
	}
}

// ResponseEncoder writes handler results and handler errors
type ResponseEncoder struct {
	log BasicLogger
	o   encoderOptions
}

// NewResponseEncoder builds a ResponseEncoder.  A nil logger discards.
func NewResponseEncoder(log BasicLogger, args ...ResponseEncoderFuncArg) *ResponseEncoder {
	if log == nil {
		log = NoLogger()
	}
	o := encoderOptions{
		apiEnforcer: func(_ []byte, _ *http.Request) error { return nil },
	}
	for _, fa := range args {
		fa(&o)
	}
	return &ResponseEncoder{log: log, o: o}
}

func (e *ResponseEncoder) fields(r *http.Request, err error) map[string]interface{} {
	f := map[string]interface{}{
		"error": err.Error(),
	}
	if r != nil {
		f["method"] = r.Method
		f["uri"] = r.URL.String()
	}
	return f
}

// Write encodes model and sends it with status.  An empty
// contentType sends no body.  Encoding failures become a 500 problem.
func (e *ResponseEncoder) Write(w *DeferredWriter, r *http.Request, status int, contentType string, marshal Marshaller, model interface{}) {
	if w.Done() {
		return
	}
	var enc []byte
	if contentType != "" && marshal != nil {
		var err error
		enc, err = marshal(model)
		if err != nil {
			e.log.Error("Cannot marshal response", e.fields(r, err))
			e.WriteError(w, r, err)
			return
		}
		err = e.o.apiEnforcer(enc, r)
		if err != nil {
			e.log.Error("Invalid API response", e.fields(r, err))
			e.WriteError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(enc)
	e.flush(w, r)
}

// WriteError discards anything buffered and sends err as a problem
func (e *ResponseEncoder) WriteError(w *DeferredWriter, r *http.Request, err error) {
	if w.Done() {
		e.log.Warn("Error after response was sent", e.fields(r, err))
		return
	}
	_ = w.Reset()
	if GetReturnCode(err) >= 500 {
		e.log.Error("Request failed", e.fields(r, err))
	}
	WriteProblem(w, r, err)
	e.flush(w, r)
}

// Stream sends each item as it is produced.  Server-sent events are
// framed as "data:" lines; anything else is newline delimited.  A
// failure after the first item can only be logged.
func (e *ResponseEncoder) Stream(w *DeferredWriter, r *http.Request, status int, contentType string, marshal Marshaller, items iter.Seq[interface{}]) {
	if w.Done() {
		return
	}
	sse := strings.HasPrefix(contentType, "text/event-stream")
	w.Header().Set("Content-Type", contentType)
	if sse {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(status)
	if err := w.Passthrough(); err != nil {
		e.log.Warn("Cannot write response", e.fields(r, err))
		return
	}
	rc := http.NewResponseController(w)
	var buf bytes.Buffer
	for item := range items {
		enc, err := marshal(item)
		if err != nil {
			e.log.Error("Cannot marshal stream item", e.fields(r, err))
			return
		}
		buf.Reset()
		if sse {
			for _, line := range bytes.Split(enc, []byte("\n")) {
				buf.WriteString("data: ")
				buf.Write(line)
				buf.WriteByte('\n')
			}
		} else {
			buf.Write(enc)
		}
		buf.WriteByte('\n')
		if _, err := w.Write(buf.Bytes()); err != nil {
			e.log.Warn("Cannot write response", e.fields(r, err))
			return
		}
		_ = rc.Flush()
		if r != nil && r.Context().Err() != nil {
			return
		}
	}
}

func (e *ResponseEncoder) flush(w *DeferredWriter, r *http.Request) {
	if err := w.Flush(); err != nil {
		e.log.Warn("Cannot write response", e.fields(r, err))
	}
}
