// Package ngraph is a small dependency graph: constructors keyed by
// the type they return, with singleton, scoped, and transient
// lifetimes.  Constructor inputs that the graph cannot build are
// request parameters, supplied by name at resolution time.
package ngraph
