package ncodec

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Unmarshaler decodes a body into a pointer
type Unmarshaler func(data []byte, v interface{}) error

// Marshaler encodes a value
type Marshaler func(v interface{}) ([]byte, error)

// Registry finds decoders and encoders by type and content type.
// Registration is expected to happen before handlers are bound.  A
// Registry is safe for concurrent use.
type Registry struct {
	lock         sync.RWMutex
	text         map[reflect.Type]Unpacker
	unmarshalers map[string]Unmarshaler
	marshalers   map[string]Marshaler
	encoders     map[reflect.Type]map[string]Encoder
	validate     *validator.Validate
}

// RegistryOpt are options for NewRegistry
type RegistryOpt func(*Registry)

// WithUnmarshaler adds or replaces the body decoder for a content type
func WithUnmarshaler(contentType string, u Unmarshaler) RegistryOpt {
	return func(r *Registry) {
		r.unmarshalers[contentType] = u
	}
}

// WithMarshaler adds or replaces the body encoder for a content type
func WithMarshaler(contentType string, m Marshaler) RegistryOpt {
	return func(r *Registry) {
		r.marshalers[contentType] = m
	}
}

// WithValidator replaces the payload validator
func WithValidator(v *validator.Validate) RegistryOpt {
	return func(r *Registry) {
		r.validate = v
	}
}

// NewRegistry creates a registry that knows JSON and YAML
func NewRegistry(opts ...RegistryOpt) *Registry {
	r := &Registry{
		text: make(map[reflect.Type]Unpacker),
		unmarshalers: map[string]Unmarshaler{
			"application/json": json.Unmarshal,
			"application/yaml": yaml.Unmarshal,
		},
		marshalers: map[string]Marshaler{
			"application/json": json.Marshal,
			"application/yaml": yaml.Marshal,
		},
		encoders: make(map[reflect.Type]map[string]Encoder),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default is the registry used when no other is provided
func Default() *Registry { return defaultRegistry }

// RegisterText overrides text decoding for a type
func (r *Registry) RegisterText(t reflect.Type, u Unpacker) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.text[t] = u
}

// RegisterEncoder overrides response encoding for a type and
// content type
func (r *Registry) RegisterEncoder(t reflect.Type, contentType string, e Encoder) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.encoders[t] == nil {
		r.encoders[t] = make(map[string]Encoder)
	}
	r.encoders[t][contentType] = e
}

// Validator exposes the go-playground validator so that callers can
// register custom validations.
func (r *Registry) Validator() *validator.Validate { return r.validate }

func (r *Registry) lookupText(t reflect.Type) (Unpacker, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.text[t]
	return u, ok
}

func (r *Registry) unmarshaler(contentType string) (Unmarshaler, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.unmarshalers[mediaType(contentType)]
	return u, ok
}

func (r *Registry) marshaler(contentType string) (Marshaler, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m, ok := r.marshalers[mediaType(contentType)]
	return m, ok
}

func (r *Registry) lookupEncoder(t reflect.Type, contentType string) (Encoder, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	e, ok := r.encoders[t][mediaType(contentType)]
	return e, ok
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// MalformedError marks input that could not be parsed at all, as
// opposed to input that parsed but did not fit the target type.
type MalformedError struct {
	err error
}

// Malformed wraps err as a MalformedError
func Malformed(err error) error {
	if err == nil {
		return nil
	}
	return &MalformedError{err: err}
}

func (e *MalformedError) Error() string { return e.err.Error() }
func (e *MalformedError) Unwrap() error { return e.err }

// IsMalformed reports if err, or something it wraps, is a
// MalformedError
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
