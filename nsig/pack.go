package nsig

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/muir/nhttp/ncodec"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/ntype"

	"github.com/muir/reflectutils"
)

// packTag is a parsed `param` struct tag:
//
//	`param:"header,name=user,alias=X-User,default=anon"`
//
// Every part is optional.  A tag of "-" skips the field.
type packTag struct {
	skip       bool
	source     string
	name       string
	alias      string
	def        string
	hasDefault bool
}

func parsePackTag(f reflect.StructField) packTag {
	tag, ok := f.Tag.Lookup("param")
	if !ok {
		return packTag{}
	}
	if tag == "-" {
		return packTag{skip: true}
	}
	var pt packTag
	for i, part := range strings.Split(tag, ",") {
		key, value, hasValue := strings.Cut(part, "=")
		switch {
		case !hasValue && i == 0:
			pt.source = key
		case key == "name":
			pt.name = value
		case key == "alias":
			pt.alias = value
		case key == "default":
			pt.def = value
			pt.hasDefault = true
		}
	}
	return pt
}

func fieldName(f reflect.StructField, pt packTag) string {
	if pt.name != "" {
		return pt.name
	}
	if j := strings.Split(f.Tag.Get("json"), ",")[0]; j != "" && j != "-" {
		return j
	}
	r := []rune(f.Name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// pack fans a struct out into one request parameter per field.  The
// fields take the pack's source unless their tag names another.
func (p *Parser) pack(name string, source nparam.Source, t reflect.Type, outer nparam.Merged) ([]Parsed, error) {
	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, nparam.PackError(name, "%s is not a struct", t)
	}
	pack := &nparam.PackParam{Name: name, Type: t}
	var out []Parsed
	var walkErr error
	seen := make(map[string]bool)
	reflectutils.WalkStructElements(st, func(f reflect.StructField) bool {
		if walkErr != nil {
			return false
		}
		pt := parsePackTag(f)
		if pt.skip {
			return false
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && pt.source == "" {
			// embedded struct fields belong to the pack
			return true
		}
		if !f.IsExported() {
			return false
		}
		var rp *nparam.RequestParam
		rp, walkErr = p.packField(name, source, f, pt, outer, seen)
		if walkErr != nil {
			return false
		}
		pack.Fields = append(pack.Fields, rp)
		out = append(out, Parsed{Name: rp.Name, Request: rp})
		return false
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if len(pack.Fields) == 0 {
		return nil, nparam.PackError(name, "%s has no exported fields", t)
	}
	return append(out, Parsed{Name: name, Pack: pack}), nil
}

func (p *Parser) packField(name string, source nparam.Source, f reflect.StructField, pt packTag, outer nparam.Merged, seen map[string]bool) (*nparam.RequestParam, error) {
	fsource := source
	if pt.source != "" {
		s, err := nparam.ParseSource(pt.source)
		if err != nil {
			return nil, err
		}
		if s == nparam.SourceBody {
			return nil, nparam.PackError(name, "field %s cannot be the body", f.Name)
		}
		fsource = s
	}
	if ntype.IsStructured(f.Type) {
		return nil, nparam.PackError(name, "field %s is a %s; packs cannot be nested", f.Name, f.Type)
	}
	fname := fieldName(f, pt)
	if seen[fname] {
		return nil, nparam.PackError(name, "two fields are named %s", fname)
	}
	seen[fname] = true
	alias := pt.alias
	if alias == "" {
		alias = fname
	}
	if fsource == nparam.SourcePath && !p.pathKeys[alias] {
		return nil, nparam.PackError(name, "field %s is not in route %s", fname, p.route)
	}

	var def interface{}
	hasDefault := false
	switch {
	case pt.hasDefault:
		if fsource == nparam.SourcePath {
			return nil, nparam.NotSupported("path param %s with a default value", fname)
		}
		v, err := literalDefault(p.reg, f.Type, pt.def)
		if err != nil {
			return nil, nparam.PackError(name, "default for %s: %s", fname, err)
		}
		def, hasDefault = v, true
	case f.Type.Kind() == reflect.Ptr && fsource != nparam.SourcePath:
		// pointer fields are optional
		hasDefault = true
	}

	fm := nparam.Merged{ParamMeta: nparam.ParamMeta{
		Source:    fsource,
		Alias:     alias,
		Delimiter: outer.Delimiter,
	}}
	rp, err := p.requestParam(fname, fsource, f.Type, fm, def, hasDefault)
	if err != nil {
		return nil, err
	}
	rp.Pack = name
	rp.Field = f.Index
	return rp, nil
}

func literalDefault(reg *ncodec.Registry, t reflect.Type, text string) (interface{}, error) {
	u, err := reg.TextDecoder(t, ncodec.TextOptions{})
	if err != nil {
		return nil, err
	}
	v := reflect.New(t).Elem()
	if err := u(v, text); err != nil {
		return nil, err
	}
	return v.Interface(), nil
}
