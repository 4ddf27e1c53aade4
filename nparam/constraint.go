package nparam

import (
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muir/nhttp/ncodec"

	"github.com/pkg/errors"
)

// Constraint bounds a decoded value.  Numeric bounds apply to
// numbers, length bounds to strings, slices, and maps.  Title,
// Description, and Examples are documentation only.
type Constraint struct {
	Gt, Ge, Lt, Le       *float64
	MultipleOf           *float64
	Pattern              string
	MinLength, MaxLength *int
	// TZ, when set, requires time values to carry a zone offset
	// (true) or to have none (false)
	TZ          *bool
	Title       string
	Description string
	Examples    []interface{}
}

// Check validates a decoded value
type Check func(v reflect.Value) error

func floatOption(set func(*Constraint, *float64), v float64) Option {
	return func(m *ParamMeta) { set(&m.Constraint, &v) }
}

// Gt requires value > v
func Gt(v float64) Option { return floatOption(func(c *Constraint, f *float64) { c.Gt = f }, v) }

// Ge requires value >= v
func Ge(v float64) Option { return floatOption(func(c *Constraint, f *float64) { c.Ge = f }, v) }

// Lt requires value < v
func Lt(v float64) Option { return floatOption(func(c *Constraint, f *float64) { c.Lt = f }, v) }

// Le requires value <= v
func Le(v float64) Option { return floatOption(func(c *Constraint, f *float64) { c.Le = f }, v) }

// MultipleOf requires value to be a multiple of v
func MultipleOf(v float64) Option {
	return floatOption(func(c *Constraint, f *float64) { c.MultipleOf = f }, v)
}

// Pattern requires a string value to match a regular expression
func Pattern(re string) Option { return func(m *ParamMeta) { m.Constraint.Pattern = re } }

// MinLength bounds the length of strings and sequences
func MinLength(n int) Option { return func(m *ParamMeta) { m.Constraint.MinLength = &n } }

// MaxLength bounds the length of strings and sequences
func MaxLength(n int) Option { return func(m *ParamMeta) { m.Constraint.MaxLength = &n } }

// TZ requires (true) or forbids (false) a zone offset on time values
func TZ(required bool) Option { return func(m *ParamMeta) { m.Constraint.TZ = &required } }

// Title documents the parameter
func Title(s string) Option { return func(m *ParamMeta) { m.Constraint.Title = s } }

// Description documents the parameter
func Description(s string) Option { return func(m *ParamMeta) { m.Constraint.Description = s } }

// Examples documents the parameter
func Examples(ex ...interface{}) Option {
	return func(m *ParamMeta) { m.Constraint.Examples = ex }
}

func (c Constraint) merge(o Constraint) Constraint {
	pick := func(a, b *float64) *float64 {
		if b != nil {
			return b
		}
		return a
	}
	pickInt := func(a, b *int) *int {
		if b != nil {
			return b
		}
		return a
	}
	c.Gt = pick(c.Gt, o.Gt)
	c.Ge = pick(c.Ge, o.Ge)
	c.Lt = pick(c.Lt, o.Lt)
	c.Le = pick(c.Le, o.Le)
	c.MultipleOf = pick(c.MultipleOf, o.MultipleOf)
	c.MinLength = pickInt(c.MinLength, o.MinLength)
	c.MaxLength = pickInt(c.MaxLength, o.MaxLength)
	if o.Pattern != "" {
		c.Pattern = o.Pattern
	}
	if o.TZ != nil {
		c.TZ = o.TZ
	}
	if o.Title != "" {
		c.Title = o.Title
	}
	if o.Description != "" {
		c.Description = o.Description
	}
	if o.Examples != nil {
		c.Examples = o.Examples
	}
	return c
}

// Empty is true when there is nothing to check
func (c Constraint) Empty() bool {
	return c.Gt == nil && c.Ge == nil && c.Lt == nil && c.Le == nil &&
		c.MultipleOf == nil && c.Pattern == "" &&
		c.MinLength == nil && c.MaxLength == nil
}

// TimeLayouts returns the layouts used to decode time values, or nil
// for the default.
func (c Constraint) TimeLayouts() []string {
	switch {
	case c.TZ == nil:
		return nil
	case *c.TZ:
		return []string{time.RFC3339Nano}
	default:
		return []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"}
	}
}

// Tag renders the numeric and length bounds as a go-playground
// validator tag.
func (c Constraint) Tag() string {
	var parts []string
	add := func(name string, v *float64) {
		if v != nil {
			parts = append(parts, name+"="+strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	add("gt", c.Gt)
	add("gte", c.Ge)
	add("lt", c.Lt)
	add("lte", c.Le)
	if c.MinLength != nil {
		parts = append(parts, "min="+strconv.Itoa(*c.MinLength))
	}
	if c.MaxLength != nil {
		parts = append(parts, "max="+strconv.Itoa(*c.MaxLength))
	}
	return strings.Join(parts, ",")
}

// Compile builds the check for values of type t.  It returns nil
// when there is nothing to check.
func (c Constraint) Compile(reg *ncodec.Registry, t reflect.Type) (Check, error) {
	if c.Empty() {
		return nil, nil
	}
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	numeric := isNumeric(base)
	lengthy := base.Kind() == reflect.String || base.Kind() == reflect.Slice ||
		base.Kind() == reflect.Array || base.Kind() == reflect.Map
	hasBounds := c.Gt != nil || c.Ge != nil || c.Lt != nil || c.Le != nil || c.MultipleOf != nil
	if hasBounds && !numeric {
		return nil, errors.Errorf("numeric bounds do not apply to %s", t)
	}
	if (c.MinLength != nil || c.MaxLength != nil) && !lengthy {
		return nil, errors.Errorf("length bounds do not apply to %s", t)
	}
	var re *regexp.Regexp
	if c.Pattern != "" {
		if base.Kind() != reflect.String {
			return nil, errors.Errorf("pattern does not apply to %s", t)
		}
		var err error
		re, err = regexp.Compile(c.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compile pattern %q", c.Pattern)
		}
	}
	tag := c.Tag()
	multiple := c.MultipleOf
	if multiple != nil && *multiple == 0 {
		return nil, errors.New("multiple_of must not be zero")
	}
	return func(v reflect.Value) error {
		for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		if tag != "" {
			if err := reg.ValidateVar(v.Interface(), tag); err != nil {
				return err
			}
		}
		if re != nil && !re.MatchString(v.String()) {
			return errors.Errorf("value must match pattern %s", re)
		}
		if multiple != nil {
			if r := math.Mod(asFloat(v), *multiple); r != 0 && math.Abs(r) > 1e-9 {
				return errors.Errorf("value must be a multiple of %s", strconv.FormatFloat(*multiple, 'f', -1, 64))
			}
		}
		return nil
	}, nil
}

// CompileElements builds a check that applies the constraint to each
// element of a slice, array, or set.
func (c Constraint) CompileElements(reg *ncodec.Registry, t reflect.Type) (Check, error) {
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	var elem reflect.Type
	// nolint:exhaustive
	switch base.Kind() {
	case reflect.Slice, reflect.Array:
		elem = base.Elem()
	case reflect.Map:
		elem = base.Key()
	default:
		return nil, errors.Errorf("%s has no elements to check", t)
	}
	check, err := c.Compile(reg, elem)
	if err != nil || check == nil {
		return check, err
	}
	return func(v reflect.Value) error {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil
			}
			v = v.Elem()
		}
		if v.Kind() == reflect.Map {
			for _, k := range v.MapKeys() {
				if err := check(k); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := check(v.Index(i)); err != nil {
				return errors.Wrapf(err, "item %d", i)
			}
		}
		return nil
	}, nil
}

func isNumeric(t reflect.Type) bool {
	// nolint:exhaustive
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func asFloat(v reflect.Value) float64 {
	// nolint:exhaustive
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint())
	}
	return v.Float()
}
