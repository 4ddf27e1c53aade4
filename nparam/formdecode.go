package nparam

import (
	"reflect"
	"sort"
	"strings"

	"github.com/muir/nhttp/ncodec"

	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

var (
	uploadType      = reflect.TypeOf((*UploadFile)(nil))
	uploadSliceType = reflect.TypeOf([]*UploadFile(nil))
)

func newSchemaDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("form")
	d.IgnoreUnknownKeys(true)
	d.ZeroEmpty(true)
	// files are filled in separately
	d.RegisterConverter(&UploadFile{}, func(string) reflect.Value { return reflect.Value{} })
	return d
}

type fileField struct {
	index []int
	name  string
	many  bool
}

// FormDecoderFor builds the decoder for a form body of type t.  The
// type may be *FormData itself, or a struct (or pointer to struct)
// whose fields are named with `form` tags.  Fields of type
// *UploadFile or []*UploadFile receive uploaded files.  []byte fields
// are rejected.  When the parameter has a default, decoding starts
// from a copy of it so that absent fields keep their default.
func FormDecoderFor(reg *ncodec.Registry, t reflect.Type, meta Merged, def interface{}, hasDefault bool) (func(*FormData) (reflect.Value, error), error) {
	if meta.Decoder != nil {
		return adaptFormDecoder(meta.Decoder, t)
	}
	if t == formDataType {
		return func(form *FormData) (reflect.Value, error) {
			return reflect.ValueOf(form), nil
		}, nil
	}
	if t == bytesType {
		return nil, errors.New("[]byte is not a valid form type")
	}
	ptr := t.Kind() == reflect.Ptr
	st := t
	if ptr {
		st = t.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, errors.Errorf("form body must be a struct, not %s", t)
	}
	var files []fileField
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		name := formName(f)
		if name == "-" {
			continue
		}
		switch f.Type {
		case bytesType:
			return nil, errors.Errorf("form field %s cannot be []byte", f.Name)
		case uploadType:
			files = append(files, fileField{index: f.Index, name: name})
		case uploadSliceType:
			files = append(files, fileField{index: f.Index, name: name, many: true})
		}
	}
	decoder := newSchemaDecoder()
	var start reflect.Value
	if hasDefault && def != nil {
		start = reflect.ValueOf(def)
		if start.Kind() == reflect.Ptr {
			start = start.Elem()
		}
	}
	return func(form *FormData) (reflect.Value, error) {
		p := reflect.New(st)
		if start.IsValid() {
			p.Elem().Set(start)
		}
		if err := decoder.Decode(p.Interface(), form.Values); err != nil {
			return reflect.Value{}, explainSchema(err)
		}
		for _, ff := range files {
			uploads := form.Files[ff.name]
			if len(uploads) == 0 {
				continue
			}
			field := p.Elem().FieldByIndex(ff.index)
			if ff.many {
				field.Set(reflect.ValueOf(uploads))
			} else {
				field.Set(reflect.ValueOf(uploads[0]))
			}
		}
		if err := reg.ValidateStruct(p.Interface()); err != nil {
			return reflect.Value{}, err
		}
		if ptr {
			return p, nil
		}
		return p.Elem(), nil
	}, nil
}

func formName(f reflect.StructField) string {
	tag := f.Tag.Get("form")
	if tag == "" {
		return f.Name
	}
	return strings.Split(tag, ",")[0]
}

func explainSchema(err error) error {
	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return err
	}
	keys := make([]string, 0, len(multi))
	for key := range multi {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(multi))
	for _, key := range keys {
		e := multi[key]
		var empty schema.EmptyFieldError
		if errors.As(e, &empty) {
			msgs = append(msgs, key+" is required")
			continue
		}
		msgs = append(msgs, key+": "+e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
