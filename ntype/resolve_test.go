package ntype_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/muir/nhttp/ntype"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mark string

func TestResolveBare(t *testing.T) {
	base, meta, err := ntype.Resolve(ntype.Of[int]())
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[int](), base)
	assert.Nil(t, meta)
}

func TestResolveNestedAnnotatedIsIdempotent(t *testing.T) {
	nested := ntype.Annotate(ntype.Annotate(ntype.Of[string](), mark("m1")), mark("m2"))
	flat := ntype.Annotate(ntype.Of[string](), mark("m1"), mark("m2"))

	b1, m1, err := ntype.Resolve(nested)
	require.NoError(t, err)
	b2, m2, err := ntype.Resolve(flat)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, m1, m2)
	assert.Equal(t, []any{mark("m1"), mark("m2")}, m1)
}

func TestResolveMetaInsideMeta(t *testing.T) {
	e := ntype.Annotate(ntype.Of[string](), 1,
		ntype.Annotate(ntype.Of[string](), 2, ntype.Annotate(ntype.Of[string](), 3)))
	base, meta, err := ntype.Resolve(e)
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[string](), base)
	assert.Equal(t, []any{1, 2, 3}, meta)
}

func TestResolveAliasChain(t *testing.T) {
	one := ntype.NewAlias("MarkOne", ntype.Annotate(ntype.Of[string](), mark("ONE")))
	two := ntype.NewAlias("MarkTwo", ntype.Annotate(one, mark("TWO")))
	three := ntype.NewAlias("MarkThree", ntype.Annotate(two, mark("THREE")))

	base, meta, err := ntype.Resolve(three)
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[string](), base)
	assert.Equal(t, []any{mark("ONE"), mark("TWO"), mark("THREE")}, meta)

	// outer metadata survives an alias that has none of its own
	plain := ntype.NewAlias("Plain", ntype.Of[int]())
	base, meta, err = ntype.Resolve(ntype.Annotate(plain, mark("outer")))
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[int](), base)
	assert.Equal(t, []any{mark("outer")}, meta)
}

func TestResolveUnion(t *testing.T) {
	cases := []struct {
		name string
		in   ntype.Expr
		base ntype.Expr
		meta []any
	}{
		{
			name: "plain union",
			in:   ntype.Or(ntype.Of[int](), ntype.Of[string]()),
			base: ntype.Union{Members: []ntype.Expr{ntype.Of[int](), ntype.Of[string]()}},
		},
		{
			name: "member metadata hoisted",
			in:   ntype.Or(ntype.Annotate(ntype.Of[int](), mark("a")), ntype.Of[string]()),
			base: ntype.Union{Members: []ntype.Expr{ntype.Of[int](), ntype.Of[string]()}},
			meta: []any{mark("a")},
		},
		{
			name: "outer first then members",
			in: ntype.Annotate(
				ntype.Or(ntype.Annotate(ntype.Of[int](), mark("inner")), ntype.Nil),
				mark("outer")),
			base: ntype.Union{Members: []ntype.Expr{ntype.Of[int](), ntype.Nil}},
			meta: []any{mark("outer"), mark("inner")},
		},
		{
			name: "duplicates collapse",
			in:   ntype.Union{Members: []ntype.Expr{ntype.Annotate(ntype.Of[int](), mark("x")), ntype.Of[int]()}},
			base: ntype.Of[int](),
			meta: []any{mark("x")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, meta, err := ntype.Resolve(tc.in)
			require.NoError(t, err)
			assert.True(t, ntype.Equal(tc.base, base), "%s vs %s", tc.base, base)
			assert.Equal(t, tc.meta, meta)
		})
	}
}

func TestResolveGenericAlias(t *testing.T) {
	v := ntype.Var("V")
	strDict := ntype.NewAlias("StrDict", ntype.MapOf(ntype.Of[string](), v))

	base, meta, err := ntype.Resolve(strDict.Of(ntype.Of[int]()))
	require.NoError(t, err)
	assert.Nil(t, meta)
	typ, err := ntype.Concrete(base)
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(map[string]int{}), typ)

	// a type variable used twice is bound once
	k := ntype.Var("K")
	same := ntype.NewAlias("Same", ntype.MapOf(k, ntype.SliceOf(k)))
	typ, err = ntype.Concrete(same.Of(ntype.Of[string]()))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(map[string][]string{}), typ)

	_, _, err = ntype.Resolve(strDict.Of(ntype.Of[int](), ntype.Of[int]()))
	assert.Error(t, err)
}

func TestResolveGenericAliasWithMeta(t *testing.T) {
	tv := ntype.Var("T")
	query := ntype.NewAlias("Query", ntype.Annotate(tv, mark("query")))

	base, meta, err := ntype.Resolve(query.Of(ntype.Of[int]()))
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[int](), base)
	assert.Equal(t, []any{mark("query")}, meta)

	// type variables inside the metadata are replaced too
	d := ntype.Var("D")
	withDecoder := ntype.NewAlias("WithDecoder", ntype.Annotate(tv, d), tv, d)
	base, meta, err = ntype.Resolve(withDecoder.Of(ntype.Of[int](), ntype.Of[time.Duration]()))
	require.NoError(t, err)
	assert.Equal(t, ntype.Of[int](), base)
	assert.Equal(t, []any{ntype.Of[time.Duration]()}, meta)
}

func TestResolveForwardRef(t *testing.T) {
	_, _, err := ntype.Resolve(ntype.Annotate(ntype.ForwardRef{Name: "User"}, mark("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ntype.ErrForwardRef))
}

func TestConcrete(t *testing.T) {
	cases := []struct {
		in   ntype.Expr
		want reflect.Type
	}{
		{ntype.Of[int](), reflect.TypeOf(0)},
		{ntype.Optional(ntype.Of[int]()), reflect.TypeOf((*int)(nil))},
		{ntype.Optional(ntype.SliceOf(ntype.Of[int]())), reflect.TypeOf([]int{})},
		{ntype.ArrayOf(2, ntype.Of[int]()), reflect.TypeOf([2]int{})},
		{ntype.SetOf(ntype.Of[string]()), reflect.TypeOf(map[string]struct{}{})},
		{ntype.SliceOf(ntype.Annotate(ntype.Of[int](), mark("elem"))), reflect.TypeOf([]int{})},
		{ntype.Or(ntype.Of[int](), ntype.Of[string]()), reflect.TypeOf((*any)(nil)).Elem()},
	}
	for _, tc := range cases {
		got, err := ntype.Concrete(tc.in)
		if assert.NoError(t, err, tc.in.String()) {
			assert.Equal(t, tc.want, got, tc.in.String())
		}
	}

	_, err := ntype.Concrete(ntype.SliceOf(ntype.Var("X")))
	assert.True(t, errors.Is(err, ntype.ErrUnboundTypeVar))
}

func TestPredicates(t *testing.T) {
	type payload struct{ A int }
	assert.True(t, ntype.IsTextual(ntype.Or(ntype.Of[string](), ntype.Nil)))
	assert.True(t, ntype.IsTextual(ntype.Of[[]byte]()))
	assert.False(t, ntype.IsTextual(ntype.Of[int]()))

	assert.True(t, ntype.IsScalar(reflect.TypeOf(time.Time{})))
	assert.True(t, ntype.IsScalar(reflect.TypeOf((*int)(nil))))
	assert.False(t, ntype.IsScalar(reflect.TypeOf(payload{})))

	assert.True(t, ntype.IsStructured(reflect.TypeOf(payload{})))
	assert.True(t, ntype.IsStructured(reflect.TypeOf(&payload{})))
	assert.True(t, ntype.IsStructured(reflect.TypeOf(map[string]int{})))
	assert.False(t, ntype.IsStructured(reflect.TypeOf(time.Time{})))
	assert.False(t, ntype.IsStructured(reflect.TypeOf(map[string]struct{}{})))

	assert.True(t, ntype.IsNonTextualSequence(reflect.TypeOf([]int{})))
	assert.True(t, ntype.IsNonTextualSequence(reflect.TypeOf([3]string{})))
	assert.True(t, ntype.IsNonTextualSequence(reflect.TypeOf(map[int]struct{}{})))
	assert.False(t, ntype.IsNonTextualSequence(reflect.TypeOf([]byte{})))
	assert.False(t, ntype.IsNonTextualSequence(reflect.TypeOf("")))

	assert.True(t, ntype.IsGeneric(ntype.SliceOf(ntype.Var("T"))))
	assert.False(t, ntype.IsGeneric(ntype.SliceOf(ntype.Of[int]())))
}
