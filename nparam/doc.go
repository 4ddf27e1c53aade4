/*

Package nparam models request parameters: where they come from, how
they are decoded and checked, and what goes wrong when they are not
right.

Metadata is attached to parameter types (see ntype.Annotate) with
Param and its shortcuts:

	nparam.Query(nparam.Alias("page-size"), nparam.Ge(1), nparam.Le(100))
	nparam.Header(nparam.Alias("x-request-id"))
	nparam.Form(nparam.MaxFiles(1))

The extractors (RequestParam, BodyParam, FormParam, PackParam) are
built once when an endpoint is bound and are safe for concurrent use.
Extraction failures are returned as Problems which are reported
together as RequestErrors.

*/
package nparam
