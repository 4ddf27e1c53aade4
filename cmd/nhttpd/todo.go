package main

import (
	"context"
	"sort"
	"sync"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/njwt"
	"github.com/muir/nhttp/nparam"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nserve"
	"github.com/muir/nhttp/nsig"
	"github.com/muir/nhttp/ntype"
	"github.com/muir/nhttp/nvelope"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Todo is one item on the list
type Todo struct {
	ID    int    `json:"id"`
	Title string `json:"title" validate:"required,max=200"`
	Done  bool   `json:"done"`
	Owner string `json:"owner,omitempty"`
}

// Store holds todos in memory
type Store struct {
	lock  sync.Mutex
	next  int
	todos map[int]Todo
}

// NewStore is an app constructor.  The store is emptied on shutdown.
func NewStore(app *nserve.App) *Store {
	s := &Store{todos: make(map[int]Todo)}
	app.On(nserve.Shutdown, func(context.Context, *nserve.App) error {
		s.lock.Lock()
		defer s.lock.Unlock()
		s.todos = make(map[int]Todo)
		return nil
	})
	return s
}

type listQuery struct {
	Done  *bool `json:"done"`
	Limit int   `param:",default=50"`
}

func (s *Store) list(q listQuery) []Todo {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Todo, 0, len(s.todos))
	for _, t := range s.todos {
		if q.Done != nil && t.Done != *q.Done {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *Store) get(id int) (Todo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return Todo{}, nvelope.NotFound(errors.Errorf("no todo %d", id))
	}
	return t, nil
}

func (s *Store) create(owner string, t Todo) Todo {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.next++
	t.ID = s.next
	t.Owner = owner
	s.todos[t.ID] = t
	return t
}

func (s *Store) complete(owner string, id int) (Todo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return Todo{}, nvelope.NotFound(errors.Errorf("no todo %d", id))
	}
	if t.Owner != owner {
		return Todo{}, nvelope.Forbidden(errors.Errorf("todo %d belongs to someone else", id))
	}
	t.Done = true
	s.todos[id] = t
	return t, nil
}

// TodoCompleted is published when a todo is marked done
type TodoCompleted struct {
	Todo Todo
}

// listenTodos registers the listeners for todo events
func listenTodos(bus *nbus.Registry, log nvelope.BasicLogger) {
	nbus.Listen(bus, func(_ context.Context, e TodoCompleted) error {
		log.Debug("Todo completed", map[string]interface{}{
			"id":    e.Todo.ID,
			"owner": e.Todo.Owner,
		})
		return nil
	})
}

// registerTodos adds the todo endpoints to svc.  Writes need a
// bearer token from /token.
func registerTodos(svc *npoint.ServiceRegistration, auth *njwt.Auth) {
	svc.RegisterEndpoint("GET /todos",
		func(store *Store, q listQuery) []Todo {
			return store.list(q)
		},
		nsig.Arg("store"),
		nsig.Arg("q", nparam.Query()))

	svc.RegisterEndpoint("GET /todos/{id}",
		func(store *Store, id int) (Todo, error) {
			return store.get(id)
		},
		nsig.Arg("store"),
		nsig.Arg("id", nparam.Constrain(nparam.Gt(0))))

	svc.RegisterEndpoint("POST /todos",
		func(store *Store, claims *njwt.Claims, todo Todo) Todo {
			return store.create(claims.Subject, todo)
		},
		nsig.Arg("store"),
		nsig.Arg("claims", auth),
		nsig.Arg("todo"),
		npoint.Returns(ntype.Annotate(ntype.Of[Todo](), nsig.Status(201))))

	svc.RegisterEndpoint("POST /todos/{id}/done",
		func(ctx context.Context, store *Store, claims *njwt.Claims, id int, bus *nbus.Bus) (Todo, error) {
			t, err := store.complete(claims.Subject, id)
			if err != nil {
				return Todo{}, err
			}
			return t, bus.Publish(ctx, TodoCompleted{Todo: t})
		},
		nsig.Arg("ctx"),
		nsig.Arg("store"),
		nsig.Arg("claims", auth),
		nsig.Arg("id"),
		nsig.Arg("bus"))

	svc.RegisterEndpoint("POST /token",
		func(user string) (string, error) {
			return auth.Sign(&njwt.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: user}})
		},
		nsig.Arg("user", nparam.Query(nparam.MinLength(1))),
		npoint.Returns(ntype.Annotate(ntype.Of[string](), nsig.Text)))
}
