package nparam

// Source is where in the request a parameter is read from
type Source string

const (
	// SourceNone means the source is inferred from the type
	SourceNone   Source = ""
	SourcePath   Source = "path"
	SourceQuery  Source = "query"
	SourceHeader Source = "header"
	SourceCookie Source = "cookie"
	SourceBody   Source = "body"
)

var sourceNames = []string{"path", "query", "header", "cookie", "body"}

// ParseSource validates a source name.  The empty string is
// SourceNone.
func ParseSource(s string) (Source, error) {
	if s == "" {
		return SourceNone, nil
	}
	for _, n := range sourceNames {
		if s == n {
			return Source(s), nil
		}
	}
	return SourceNone, &InvalidParamSourceError{Source: s}
}

// ParamMeta is metadata attached to a parameter's type that says
// where to find it and how to decode and check it.  Build them with
// Param or one of its shortcuts.
type ParamMeta struct {
	Source     Source
	Alias      string
	Decoder    interface{}
	Constraint Constraint
	ExtraMeta  map[string]interface{}
	SkipUnpack bool
	// Content decodes text values with a body decoder, for
	// example "application/json".
	Content string
	// Delimiter splits single values of sequences, "1,2,3"
	Delimiter string
	err       error
}

// Option configures a ParamMeta
type Option func(*ParamMeta)

// Param builds parameter metadata.  An unknown source is remembered
// and reported by Err.
//
// The decoder, when given, must be a function taking string,
// []string, or []byte and returning the parameter type, optionally
// with an error.
func Param(source string, opts ...Option) *ParamMeta {
	s, err := ParseSource(source)
	m := &ParamMeta{
		Source: s,
		err:    err,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Err reports a problem found while building the metadata
func (m *ParamMeta) Err() error { return m.err }

// Query is Param("query", ...)
func Query(opts ...Option) *ParamMeta { return Param("query", opts...) }

// Header is Param("header", ...)
func Header(opts ...Option) *ParamMeta { return Param("header", opts...) }

// Cookie is Param("cookie", ...)
func Cookie(opts ...Option) *ParamMeta { return Param("cookie", opts...) }

// Path is Param("path", ...)
func Path(opts ...Option) *ParamMeta { return Param("path", opts...) }

// Body is Param("body", ...)
func Body(opts ...Option) *ParamMeta { return Param("body", opts...) }

// Constrain is Param("", ...): only checks, no source
func Constrain(opts ...Option) *ParamMeta { return Param("", opts...) }

// Alias sets the wire name
func Alias(alias string) Option { return func(m *ParamMeta) { m.Alias = alias } }

// Decoder overrides decoding
func Decoder(fn interface{}) Option { return func(m *ParamMeta) { m.Decoder = fn } }

// Content decodes a text parameter with a body decoder
func Content(contentType string) Option { return func(m *ParamMeta) { m.Content = contentType } }

// Delimiter splits the values of sequence parameters
func Delimiter(d string) Option { return func(m *ParamMeta) { m.Delimiter = d } }

// SkipUnpack keeps a struct parameter whole instead of fanning its
// fields out into separate parameters.
func SkipUnpack() Option {
	return func(m *ParamMeta) {
		m.SkipUnpack = true
		m.extra("skip_unpack", true)
	}
}

// ExtraMeta attaches opaque values for plugins
func ExtraMeta(key string, value interface{}) Option {
	return func(m *ParamMeta) {
		m.extra(key, value)
		if key == "skip_unpack" {
			b, _ := value.(bool)
			m.SkipUnpack = b
		}
	}
}

func (m *ParamMeta) extra(key string, value interface{}) {
	if m.ExtraMeta == nil {
		m.ExtraMeta = make(map[string]interface{})
	}
	m.ExtraMeta[key] = value
}

func (m *ParamMeta) String() string {
	s := "Param(" + string(m.Source)
	if m.Alias != "" {
		s += ", alias=" + m.Alias
	}
	return s + ")"
}

// FormMeta marks a body parameter as multipart/form-data (or
// url-encoded) and limits what is accepted.
type FormMeta struct {
	ParamMeta
	MaxFiles    int
	MaxFields   int
	MaxPartSize int64
	// MaxMemory is how much of each file is held in memory before
	// it spills to a temporary file
	MaxMemory int64
}

// FormOption configures a FormMeta
type FormOption func(*FormMeta)

// MaxFiles limits the number of uploaded files
func MaxFiles(n int) FormOption { return func(f *FormMeta) { f.MaxFiles = n } }

// MaxFields limits the number of non-file fields
func MaxFields(n int) FormOption { return func(f *FormMeta) { f.MaxFields = n } }

// MaxPartSize limits the size of each non-file field
func MaxPartSize(n int64) FormOption { return func(f *FormMeta) { f.MaxPartSize = n } }

// MaxMemory sets the in-memory threshold for uploaded files
func MaxMemory(n int64) FormOption { return func(f *FormMeta) { f.MaxMemory = n } }

// FormDecoder overrides decoding of the form
func FormDecoder(fn func(*FormData) (interface{}, error)) FormOption {
	return func(f *FormMeta) { f.Decoder = fn }
}

// Form builds form body metadata.  The defaults accept 1000 files
// and 1000 fields with fields of up to 1 MiB.
func Form(opts ...FormOption) *FormMeta {
	f := &FormMeta{
		ParamMeta:   ParamMeta{Source: SourceBody},
		MaxFiles:    1000,
		MaxFields:   1000,
		MaxPartSize: 1 << 20,
		MaxMemory:   1 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Merged is the combination of all the ParamMetas attached to one
// parameter.
type Merged struct {
	ParamMeta
	// Sources is every distinct source marker seen, in order
	Sources []Source
	// Form is the last FormMeta seen
	Form *FormMeta
	// Explicit is true when any marker named a source
	Explicit bool
}

// Merge combines metadata in order.  Later aliases, decoders and
// constraints override earlier ones, so the outermost decoder wins.
// Metadata that is not a ParamMeta or FormMeta is ignored.
func Merge(meta []interface{}) (Merged, error) {
	var merged Merged
	addSource := func(s Source) {
		if s == SourceNone {
			return
		}
		merged.Explicit = true
		for _, existing := range merged.Sources {
			if existing == s {
				return
			}
		}
		merged.Sources = append(merged.Sources, s)
	}
	apply := func(m *ParamMeta) error {
		if m.err != nil {
			return m.err
		}
		addSource(m.Source)
		if m.Source != SourceNone {
			merged.Source = m.Source
		}
		if m.Alias != "" {
			merged.Alias = m.Alias
		}
		if m.Decoder != nil {
			merged.Decoder = m.Decoder
		}
		if m.Content != "" {
			merged.Content = m.Content
		}
		if m.Delimiter != "" {
			merged.Delimiter = m.Delimiter
		}
		merged.Constraint = merged.Constraint.merge(m.Constraint)
		for k, v := range m.ExtraMeta {
			merged.extra(k, v)
		}
		merged.SkipUnpack = merged.SkipUnpack || m.SkipUnpack
		return nil
	}
	for _, item := range meta {
		switch m := item.(type) {
		case *ParamMeta:
			if err := apply(m); err != nil {
				return Merged{}, err
			}
		case ParamMeta:
			if err := apply(&m); err != nil {
				return Merged{}, err
			}
		case *FormMeta:
			if err := apply(&m.ParamMeta); err != nil {
				return Merged{}, err
			}
			merged.Form = m
		}
	}
	return merged, nil
}
