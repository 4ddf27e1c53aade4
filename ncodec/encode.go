package ncodec

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// Encoder turns a handler result into response bytes
type Encoder func(v interface{}) ([]byte, error)

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

// EncodeText writes strings, byte slices, errors, and fmt.Stringers
// as themselves and anything else with fmt.Sprint.
func EncodeText(v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case error:
		return []byte(x.Error()), nil
	case fmt.Stringer:
		return []byte(x.String()), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return []byte(rv.String()), nil
	}
	return []byte(fmt.Sprint(v)), nil
}

// EncodeEmpty ignores the value
func EncodeEmpty(interface{}) ([]byte, error) { return nil, nil }

// Encoder returns the encoder for values of type t sent as
// contentType.  A nil t means the type is unknown and the value will
// be encoded with whatever the content type's marshaler does with it.
func (r *Registry) Encoder(t reflect.Type, contentType string) (Encoder, error) {
	if t != nil {
		if e, ok := r.lookupEncoder(t, contentType); ok {
			return e, nil
		}
	}
	switch mediaType(contentType) {
	case "":
		return EncodeEmpty, nil
	case "text/plain", "text/html":
		return EncodeText, nil
	case "text/event-stream":
		// each item of the stream is encoded on its own
		if t != nil && textual(t) {
			return EncodeText, nil
		}
		m, _ := r.marshaler("application/json")
		return Encoder(m), nil
	}
	m, ok := r.marshaler(contentType)
	if !ok {
		return nil, errors.Errorf("no encoder for content type '%s'", contentType)
	}
	return Encoder(m), nil
}

func textual(t reflect.Type) bool {
	if t == bytesType || t.Kind() == reflect.String || t.Kind() == reflect.Interface {
		return true
	}
	return t.Implements(stringerType)
}
