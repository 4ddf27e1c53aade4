package nsig

import (
	"reflect"
	"strings"

	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/nparam"
)

// Dependency is a parameter built by the dependency graph
type Dependency struct {
	Name string
	Type reflect.Type
	Node *ngraph.Node
	// Params are the request parameters the node, and anything it
	// depends on, needs
	Params []ngraph.Param
}

func (d *Dependency) String() string {
	return "dependency " + d.Name + " " + d.Type.String()
}

// EndpointSignature is everything known about a handler after it is
// parsed.  It is immutable and shared by all requests.
type EndpointSignature struct {
	Route string
	// Names and Types are the handler's parameters in order
	Names []string
	Types []reflect.Type

	PathParams   []*nparam.RequestParam
	QueryParams  []*nparam.RequestParam
	HeaderParams []*nparam.RequestParam // headers and cookies
	Body         *nparam.BodyParam
	Form         *nparam.FormParam
	FormMeta     *nparam.FormMeta
	Packs        []*nparam.PackParam
	Dependencies []*Dependency
	Plugins      []*PluginParam
	// Transitive names are extracted only for dependencies and are
	// not passed to the handler
	Transitive map[string]bool
	Returns    Returns
	// Scoped is true when a dependency must be built per request
	Scoped bool

	// HasError is true when the handler's last result is an error
	HasError bool
	// Result is the handler's value result, nil if there is none
	Result reflect.Type
}

// Static is true when the handler takes no parameters at all
func (s *EndpointSignature) Static() bool {
	return len(s.Names) == 0
}

// BodyName is the name of the body or form parameter, if any
func (s *EndpointSignature) BodyName() string {
	switch {
	case s.Body != nil:
		return s.Body.Name
	case s.Form != nil:
		return s.Form.Name
	}
	return ""
}

// Lookup finds a path, query, header, or cookie parameter by key
func (s *EndpointSignature) Lookup(key string) (*nparam.RequestParam, bool) {
	for _, list := range [][]*nparam.RequestParam{s.PathParams, s.QueryParams, s.HeaderParams} {
		for _, p := range list {
			if p.Key() == key {
				return p, true
			}
		}
	}
	return nil, false
}

func (s *EndpointSignature) has(name string) bool {
	if _, ok := s.Lookup(name); ok {
		return true
	}
	if s.BodyName() == name {
		return true
	}
	for _, p := range s.Packs {
		if p.Name == name {
			return true
		}
	}
	for _, d := range s.Dependencies {
		if d.Name == name {
			return true
		}
	}
	for _, p := range s.Plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (s *EndpointSignature) String() string {
	var b strings.Builder
	b.WriteString(s.Route)
	b.WriteString("(")
	for i, n := range s.Names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n)
		b.WriteString(" ")
		b.WriteString(s.Types[i].String())
	}
	b.WriteString(")")
	return b.String()
}
