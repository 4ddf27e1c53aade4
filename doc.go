/*
Package nhttp is a set of packages for building HTTP endpoints from
plain Go functions.  A handler declares what it needs as parameters
and returns what it produces; the framework works out where each
parameter comes from, validates requests, and encodes responses.

	ntype     type expressions: unions, annotations, aliases, type variables
	ncodec    text and body decoders and response encoders
	nparam    parameter metadata, constraints, and request problems
	ngraph    dependency graph with singleton, transient, and scoped lifetimes
	nsig      signature parsing and request injection
	nvelope   deferred writers, problem responses, logging, and panics
	npoint    endpoints, services, and routing
	nbus      in-process event bus for handlers
	njwt      bearer token parameters
	nserve    application lifecycle hooks, configuration, and serving

A minimal endpoint:

	svc := npoint.RegisterService("users", http.DefaultServeMux.HandleFunc)
	svc.RegisterEndpoint("GET /users/{id}", func(id int, db *DB) (*User, error) {
		return db.Lookup(id)
	}, nsig.Arg("id"), nsig.Arg("db"), npoint.WithGraph(graph))
*/
package nhttp
