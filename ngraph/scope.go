package ngraph

import (
	"context"
	"reflect"
	"sync"
)

// Scope caches Scoped values, typically for one request.  Transient
// and Scoped cleanups run when the Scope is closed.
type Scope struct {
	graph    *Graph
	lock     sync.Mutex
	values   map[*Node]reflect.Value
	building map[*Node]*sync.Mutex
	cleanups cleanupList
	closed   bool
}

// EnterScope starts a new scope.  The context is not retained.
func (g *Graph) EnterScope(ctx context.Context) (*Scope, error) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	if g.closed {
		return nil, ErrClosed
	}
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &Scope{
		graph:    g,
		values:   make(map[*Node]reflect.Value),
		building: make(map[*Node]*sync.Mutex),
	}, nil
}

// Graph is the graph this scope was entered from
func (s *Scope) Graph() *Graph { return s.graph }

// IsRegistered delegates to the Graph
func (s *Scope) IsRegistered(t reflect.Type) bool { return s.graph.IsRegistered(t) }

// Resolve is like Graph.Resolve but may build Scoped values
func (s *Scope) Resolve(ctx context.Context, t reflect.Type, known map[string]interface{}) (interface{}, error) {
	s.lock.Lock()
	closed := s.closed
	s.lock.Unlock()
	if closed {
		return nil, ErrClosed
	}
	v, err := s.graph.resolve(ctx, t, known, s, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (s *Scope) cached(n *Node, build func() (reflect.Value, func(), error)) (reflect.Value, error) {
	s.lock.Lock()
	if v, ok := s.values[n]; ok {
		s.lock.Unlock()
		return v, nil
	}
	nodeLock, ok := s.building[n]
	if !ok {
		nodeLock = &sync.Mutex{}
		s.building[n] = nodeLock
	}
	s.lock.Unlock()

	nodeLock.Lock()
	defer nodeLock.Unlock()
	s.lock.Lock()
	if v, ok := s.values[n]; ok {
		s.lock.Unlock()
		return v, nil
	}
	s.lock.Unlock()

	v, cleanup, err := build()
	if err != nil {
		return reflect.Value{}, err
	}
	s.cleanups.add(cleanup)
	s.lock.Lock()
	if s.values != nil {
		s.values[n] = v
	}
	s.lock.Unlock()
	return v, nil
}

// Close runs the scope's cleanups in reverse order of construction.
// Closing twice is harmless.
func (s *Scope) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.values = nil
	s.lock.Unlock()
	s.cleanups.run()
	return nil
}
