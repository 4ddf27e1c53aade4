/*

Package npoint binds handler functions to routes.

A handler is an ordinary function.  Its parameters are described,
in order, with nsig.Arg and the handler's results are encoded as the
response:

	func getUser(id int, fields []string, db *DB) (*User, error)

	router := mux.NewRouter()
	svc := npoint.RegisterServiceWithMux("users", router,
		npoint.WithGraph(graph),
		npoint.WithLogger(nvelope.LoggerFromZap(log)))
	svc.RegisterEndpoint("/users/{id}", getUser,
		nsig.Arg("id"),
		nsig.Arg("fields", nparam.Query(nparam.Delimiter(","))).Default([]string{}),
		nsig.Arg("db"),
	).Methods("GET")

Each handler is parsed once, when its service starts.  Parsing
decides where every parameter comes from (path, query, headers,
cookies, body, the dependency graph, or the framework itself) and
fails with a configuration error when something cannot work.  At
request time the endpoint extracts and validates the parameters,
calls the handler, and writes the result or a problem-details error.

Services

A Service groups endpoints that share options.  Preregistered
services (PreregisterService, PreregisterServiceWithMux) collect
endpoints that may be defined in many files and parse them all at
Start.  Services can bind to http.ServeMux, gorilla mux, chi (with
ChiBinder), or anything that fits EndpointBinder.  CreateEndpoint
and NewEndpoint skip services entirely.

Options

Returns declares a status-code union for the response.  ToThread
runs a blocking handler on a bounded worker Pool.  WebSocket upgrades
the connection before the handler runs.  Plugins wrap the handler
call; they see the parsed signature and the parameters.  WithMetrics
exports prometheus counters and latencies.

*/
package npoint
