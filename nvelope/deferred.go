package nvelope

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// DeferredWriter buffers a response so that it can be abandoned
// and replaced, for example when encoding fails half way through or
// when a panic is caught.  Nothing reaches the underlying writer until
// Flush.  After Flush, or after Passthrough, writes go straight
// through.
type DeferredWriter struct {
	base        http.ResponseWriter
	header      http.Header
	resetHeader http.Header
	buffer      []byte
	status      int
	passthrough bool
	done        bool
	written     bool
}

var _ http.ResponseWriter = &DeferredWriter{}

// NewDeferredWriter wraps w.  The current headers of w are the
// starting point of the buffered headers.
func NewDeferredWriter(w http.ResponseWriter) *DeferredWriter {
	return &DeferredWriter{
		base:        w,
		header:      w.Header().Clone(),
		resetHeader: w.Header().Clone(),
		buffer:      make([]byte, 0, 4*1024),
	}
}

// Header returns the buffered header
func (w *DeferredWriter) Header() http.Header {
	if w.passthrough {
		return w.base.Header()
	}
	return w.header
}

func (w *DeferredWriter) Write(b []byte) (int, error) {
	w.written = true
	if w.passthrough {
		return w.base.Write(b)
	}
	w.buffer = append(w.buffer, b...)
	return len(b), nil
}

// WriteHeader records the status code for Flush
func (w *DeferredWriter) WriteHeader(statusCode int) {
	w.written = true
	w.status = statusCode
	if w.passthrough {
		w.base.WriteHeader(statusCode)
		return
	}
}

// Reset discards everything written so far, including headers set
// since the last PreserveHeader.  It returns an error if the response
// has already been flushed.
func (w *DeferredWriter) Reset() error {
	if w.passthrough {
		return errors.New("deferred writer already flushed")
	}
	w.buffer = w.buffer[:0]
	w.status = 0
	w.written = false
	w.header = w.resetHeader.Clone()
	return nil
}

// PreserveHeader makes the current headers survive Reset
func (w *DeferredWriter) PreserveHeader() {
	w.resetHeader = w.header.Clone()
}

// UnderlyingWriter returns the wrapped writer
func (w *DeferredWriter) UnderlyingWriter() http.ResponseWriter {
	return w.base
}

// Unwrap lets http.ResponseController reach the wrapped writer
func (w *DeferredWriter) Unwrap() http.ResponseWriter {
	return w.base
}

// Status is the status code written so far, 0 if none
func (w *DeferredWriter) Status() int {
	return w.status
}

// Written is true when anything has been written since the last Reset
func (w *DeferredWriter) Written() bool {
	return w.written
}

// Done is true once the response has been flushed
func (w *DeferredWriter) Done() bool {
	return w.done
}

// Passthrough flushes and then stops buffering.  Streaming responses
// use it.
func (w *DeferredWriter) Passthrough() error {
	err := w.Flush()
	w.passthrough = true
	return err
}

// Flush sends the headers, status, and buffered body to the
// underlying writer.  Flushing twice is a no-op.
func (w *DeferredWriter) Flush() error {
	if w.done {
		return nil
	}
	w.done = true
	w.passthrough = true
	base := w.base.Header()
	for k := range base {
		if _, ok := w.header[k]; !ok {
			delete(base, k)
		}
	}
	for k, v := range w.header {
		base[k] = v
	}
	if w.status != 0 {
		w.base.WriteHeader(w.status)
	}
	for len(w.buffer) > 0 {
		n, err := w.base.Write(w.buffer)
		w.buffer = w.buffer[n:]
		if err != nil && !errors.Is(err, io.ErrShortWrite) {
			return errors.Wrap(err, "flush deferred response")
		}
		if n == 0 && err == nil {
			return errors.Wrap(io.ErrNoProgress, "flush deferred response")
		}
	}
	return nil
}

// FlushIfNotFlushed is Flush for use in a defer
func (w *DeferredWriter) FlushIfNotFlushed() {
	_ = w.Flush()
}
