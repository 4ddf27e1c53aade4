package nsig

import (
	"fmt"
	"iter"
	"net/http"
	"reflect"
	"sort"

	"github.com/muir/nhttp/ncodec"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/ntype"

	"github.com/pkg/errors"
)

// StatusMarker sets the status code of a return type
type StatusMarker int

// Status marks a return type with its status code:
//
//	ntype.Annotate(ntype.Of[User](), nsig.Status(201))
func Status(code int) StatusMarker { return StatusMarker(code) }

// ResponseKind says how a return value is written
type ResponseKind string

const (
	JSON   ResponseKind = "json"
	Text   ResponseKind = "text"
	HTML   ResponseKind = "html"
	Stream ResponseKind = "stream"
	Empty  ResponseKind = "empty"
)

// ContentType is the default content type for the kind
func (k ResponseKind) ContentType() string {
	switch k {
	case JSON:
		return "application/json"
	case Text:
		return "text/plain; charset=utf-8"
	case HTML:
		return "text/html; charset=utf-8"
	case Stream:
		return "text/event-stream"
	}
	return ""
}

// EncoderMarker overrides the encoder of a return type
type EncoderMarker struct {
	Encode      ncodec.Encoder
	ContentType string
}

// Encoder builds an EncoderMarker.  The content type may be empty to
// keep the one implied by the response kind.
func Encoder(fn ncodec.Encoder, contentType string) EncoderMarker {
	return EncoderMarker{Encode: fn, ContentType: contentType}
}

// StatusConflictError is returned when a status code that cannot
// have a body is paired with a type
type StatusConflictError struct {
	Status int
	Type   ntype.Expr
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("status %d cannot return %s", e.Status, e.Type)
}

// EndpointReturn says how one status code of an endpoint is written
type EndpointReturn struct {
	Status int
	// Type is nil for the default, untyped return
	Type        ntype.Expr
	GoType      reflect.Type
	Mark        ResponseKind
	ContentType string
	Encode      ncodec.Encoder
}

func (r *EndpointReturn) String() string {
	return fmt.Sprintf("%d %s %s", r.Status, r.Mark, r.Type)
}

// Validate rejects bodies on statuses that must not have one
func (r *EndpointReturn) Validate() error {
	if r.Type == nil || ntype.Equal(r.Type, ntype.Nil) || r.Mark == Empty {
		return nil
	}
	if r.Status < 200 || r.Status == http.StatusNoContent ||
		r.Status == http.StatusResetContent || r.Status == http.StatusNotModified {
		return &StatusConflictError{Status: r.Status, Type: r.Type}
	}
	return nil
}

// Returns maps status codes to how they are written
type Returns map[int]*EndpointReturn

// Statuses lists the status codes in order
func (r Returns) Statuses() []int {
	codes := make([]int, 0, len(r))
	for code := range r {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Select picks the return that describes a handler result: the one
// whose type matches the value, else the lowest 2xx status, else the
// lowest status.
func (r Returns) Select(v interface{}) *EndpointReturn {
	codes := r.Statuses()
	if len(codes) == 1 {
		return r[codes[0]]
	}
	var fallback *EndpointReturn
	for _, code := range codes {
		ret := r[code]
		if v == nil {
			if ret.GoType == nil || ret.Mark == Empty {
				return ret
			}
		} else if ret.GoType != nil && ret.GoType.Kind() != reflect.Interface && reflect.TypeOf(v) == ret.GoType {
			return ret
		}
		if fallback == nil && code >= 200 && code < 300 {
			fallback = ret
		}
	}
	if v != nil {
		vt := reflect.TypeOf(v)
		for _, code := range codes {
			if gt := r[code].GoType; gt != nil && vt.AssignableTo(gt) {
				return r[code]
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	if len(codes) == 0 {
		return nil
	}
	return r[codes[0]]
}

// ParseReturns describes the responses of an endpoint.  A nil
// expression is a 200 JSON response of any value.  Unions whose
// members carry Status markers produce one entry per status.
func ParseReturns(reg *ncodec.Registry, expr ntype.Expr) (Returns, error) {
	if reg == nil {
		reg = ncodec.Default()
	}
	if expr == nil {
		enc, err := reg.Encoder(anyType, JSON.ContentType())
		if err != nil {
			return nil, err
		}
		return Returns{http.StatusOK: {
			Status:      http.StatusOK,
			Mark:        JSON,
			ContentType: JSON.ContentType(),
			Encode:      enc,
		}}, nil
	}
	if members, ok := unionMembers(expr); ok {
		var marked int
		seen := make(map[int]bool)
		for _, m := range members {
			_, mm, err := ntype.Resolve(m)
			if err != nil {
				return nil, err
			}
			if code, ok := statusOf(mm); ok {
				marked++
				seen[code] = true
			}
		}
		if marked > 0 {
			if marked != len(members) || len(seen) != len(members) {
				return nil, nparam.NotSupported("union size and status mismatched in %s", expr)
			}
			returns := make(Returns, len(members))
			for _, m := range members {
				ret, err := parseReturn(reg, m)
				if err != nil {
					return nil, err
				}
				returns[ret.Status] = ret
			}
			return returns, nil
		}
	}
	ret, err := parseReturn(reg, expr)
	if err != nil {
		return nil, err
	}
	return Returns{ret.Status: ret}, nil
}

// unionMembers finds the members of a union return before their
// metadata is hoisted
func unionMembers(expr ntype.Expr) ([]ntype.Expr, bool) {
	switch x := expr.(type) {
	case ntype.Union:
		return x.Members, true
	case *ntype.Alias:
		if len(x.Params) == 0 {
			return unionMembers(x.Value)
		}
	}
	return nil, false
}

func statusOf(meta []interface{}) (int, bool) {
	code, found := 0, false
	for _, m := range meta {
		if s, ok := m.(StatusMarker); ok {
			code, found = int(s), true
		}
	}
	return code, found
}

func parseReturn(reg *ncodec.Registry, expr ntype.Expr) (*EndpointReturn, error) {
	base, meta, err := ntype.Resolve(expr)
	if err != nil {
		return nil, err
	}
	ret := &EndpointReturn{
		Status: http.StatusOK,
		Type:   base,
	}
	var custom *EncoderMarker
	for _, m := range meta {
		switch x := m.(type) {
		case StatusMarker:
			ret.Status = int(x)
		case ResponseKind:
			ret.Mark = x
		case EncoderMarker:
			custom = &x
		}
	}
	isNil := ntype.Equal(base, ntype.Nil)
	if ret.Mark == "" {
		if isNil {
			ret.Mark = Empty
		} else {
			ret.Mark = JSON
		}
	}
	if !isNil {
		ret.GoType, err = ntype.Concrete(base)
		if err != nil {
			return nil, err
		}
	}
	if ret.Mark == Stream {
		if ret.GoType == nil {
			return nil, nparam.NotSupported("stream of nothing")
		}
		item, ok := streamItem(ret.GoType)
		if !ok {
			return nil, nparam.NotSupported("stream return %s must be a channel or iter.Seq", ret.GoType)
		}
		ret.GoType = item
		ret.Type = ntype.TypeOf(item)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	ret.ContentType = ret.Mark.ContentType()
	if custom != nil {
		ret.Encode = custom.Encode
		if custom.ContentType != "" {
			ret.ContentType = custom.ContentType
		}
		return ret, nil
	}
	t := ret.GoType
	if t == nil {
		t = anyType
	}
	ret.Encode, err = reg.Encoder(t, ret.ContentType)
	if err != nil {
		return nil, errors.Wrapf(err, "status %d", ret.Status)
	}
	return ret, nil
}

// streamItem finds the element type of <-chan T, chan T, or
// iter.Seq[T]
func streamItem(t reflect.Type) (reflect.Type, bool) {
	switch t.Kind() {
	case reflect.Chan:
		if t.ChanDir()&reflect.RecvDir == 0 {
			return nil, false
		}
		return t.Elem(), true
	case reflect.Func:
		// func(yield func(T) bool)
		if t.NumIn() != 1 || t.NumOut() != 0 {
			return nil, false
		}
		yield := t.In(0)
		if yield.Kind() != reflect.Func || yield.NumIn() != 1 || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
			return nil, false
		}
		return yield.In(0), true
	}
	return nil, false
}

// StreamValues adapts a channel or iter.Seq value into a sequence of
// items
func StreamValues(v reflect.Value) iter.Seq[reflect.Value] {
	return func(yield func(reflect.Value) bool) {
		if !v.IsValid() || v.IsNil() {
			return
		}
		if v.Kind() == reflect.Chan {
			for {
				item, ok := v.Recv()
				if !ok || !yield(item) {
					return
				}
			}
		}
		stopped := false
		fn := reflect.MakeFunc(v.Type().In(0), func(args []reflect.Value) []reflect.Value {
			if stopped {
				return []reflect.Value{reflect.ValueOf(false)}
			}
			stopped = !yield(args[0])
			return []reflect.Value{reflect.ValueOf(!stopped)}
		})
		v.Call([]reflect.Value{fn})
	}
}

var anyType = reflect.TypeOf((*interface{})(nil)).Elem()
