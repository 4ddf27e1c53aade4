/*

Package nsig turns handler functions into EndpointSignatures and
extracts their parameters from requests.

Parsing happens once per route:

	p := nsig.NewParser(graph, "/users/{id}")
	sig, err := p.Parse(getUser,
		nsig.Arg("id"),
		nsig.Arg("fields", nparam.Query(nparam.Delimiter(","))).Default([]string{}),
		nsig.Arg("db"))

Each parameter is classified as a path, query, header, cookie, body,
or form parameter, a param pack (a struct whose fields are separate
parameters), a dependency built by the graph, or a plugin supplied by
the framework.

The Injector built from a signature is shared by all requests:

	inj := nsig.NewInjector(sig)
	res, err := inj.ValidateRequest(ctx, nsig.NewConnection(w, r), resolver)
	defer res.Cleanup()

*/
package nsig
