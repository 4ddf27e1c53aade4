/*

Package ntype describes handler parameter types richly enough to
drive request decoding.

A Go function signature only says that a parameter is an int.  To
say that it is an int read from the "limit" query parameter that must
be greater than zero, the type is wrapped with metadata:

	ntype.Annotate(ntype.Of[int](), nparam.Query(nparam.Alias("limit"), nparam.Gt(0)))

Aliases let such annotated types be named and reused, and can be
generic:

	T := ntype.Var("T")
	Positive := ntype.NewAlias("Positive", ntype.Annotate(T, nparam.Param("", nparam.Gt(0))))
	Positive.Of(ntype.Of[int]())

Resolve flattens all of this into a base type and an ordered list of
metadata.  Concrete turns the base into a reflect.Type.

*/
package ntype
