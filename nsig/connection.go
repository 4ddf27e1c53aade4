package nsig

import (
	"io"
	"net/http"
	"net/url"

	"github.com/muir/nhttp/nparam"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Connection is the per-request view the Injector reads from
type Connection interface {
	Header() http.Header
	PathValue(name string) (string, bool)
	Query() url.Values
	// Cookie returns every value of the named cookie
	Cookie(name string) []string
	Body() ([]byte, error)
	Form(meta *nparam.FormMeta) (*nparam.FormData, error)
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	// WebSocket is nil for plain HTTP requests
	WebSocket() *websocket.Conn
}

// HTTPConnection is a Connection over net/http
type HTTPConnection struct {
	w          http.ResponseWriter
	r          *http.Request
	pathValues map[string]string
	ws         *websocket.Conn
	maxBody    int64

	query   url.Values
	cookies map[string][]string
	body    []byte
	read    bool
}

// ConnectionOpt configures an HTTPConnection
type ConnectionOpt func(*HTTPConnection)

// WithPathValues supplies the router's path variables, for example
// mux.Vars(r).  Without it, r.PathValue is used.
func WithPathValues(values map[string]string) ConnectionOpt {
	return func(c *HTTPConnection) { c.pathValues = values }
}

// WithWebSocket attaches an upgraded websocket
func WithWebSocket(ws *websocket.Conn) ConnectionOpt {
	return func(c *HTTPConnection) { c.ws = ws }
}

// WithMaxBody limits how much of the body is read.  The default is
// 10 MiB.
func WithMaxBody(n int64) ConnectionOpt {
	return func(c *HTTPConnection) { c.maxBody = n }
}

// NewConnection wraps a request
func NewConnection(w http.ResponseWriter, r *http.Request, opts ...ConnectionOpt) *HTTPConnection {
	c := &HTTPConnection{
		w:       w,
		r:       r,
		maxBody: 10 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPConnection) Header() http.Header                 { return c.r.Header }
func (c *HTTPConnection) Request() *http.Request              { return c.r }
func (c *HTTPConnection) ResponseWriter() http.ResponseWriter { return c.w }
func (c *HTTPConnection) WebSocket() *websocket.Conn          { return c.ws }

func (c *HTTPConnection) PathValue(name string) (string, bool) {
	if c.pathValues != nil {
		v, ok := c.pathValues[name]
		return v, ok
	}
	v := c.r.PathValue(name)
	return v, v != ""
}

func (c *HTTPConnection) Query() url.Values {
	if c.query == nil {
		c.query = c.r.URL.Query()
	}
	return c.query
}

// Cookie parses the Cookie headers on first use
func (c *HTTPConnection) Cookie(name string) []string {
	if c.cookies == nil {
		c.cookies = make(map[string][]string)
		for _, line := range c.r.Header.Values("Cookie") {
			parsed, err := http.ParseCookie(line)
			if err != nil {
				continue
			}
			for _, cookie := range parsed {
				c.cookies[cookie.Name] = append(c.cookies[cookie.Name], cookie.Value)
			}
		}
	}
	return c.cookies[name]
}

// Body reads the whole body once
func (c *HTTPConnection) Body() ([]byte, error) {
	if c.read {
		return c.body, nil
	}
	c.read = true
	if c.r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.r.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if int64(len(body)) > c.maxBody {
		return nil, errors.New("body too large")
	}
	c.body = body
	return body, nil
}

func (c *HTTPConnection) Form(meta *nparam.FormMeta) (*nparam.FormData, error) {
	contentType := c.r.Header.Get("Content-Type")
	if c.r.Body == nil || contentType == "" {
		return &nparam.FormData{Values: url.Values{}}, nil
	}
	return nparam.ParseForm(c.r.Body, contentType, meta)
}
