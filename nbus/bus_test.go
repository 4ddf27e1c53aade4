package nbus_test

import (
	"context"
	"sync"
	"testing"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ngraph"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type todoEvent interface{ TodoID() int }

type todoCreated struct{ id int }
type todoDeleted struct{ id int }

func (e todoCreated) TodoID() int { return e.id }
func (e todoDeleted) TodoID() int { return e.id }

type mailer struct {
	lock sync.Mutex
	sent []int
}

func (m *mailer) send(id int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sent = append(m.sent, id)
}

func TestPublish(t *testing.T) {
	reg := nbus.New()
	var got []string
	nbus.Listen(reg, func(_ context.Context, e todoCreated) error {
		got = append(got, "created")
		return nil
	})
	nbus.Listen(reg, func(_ context.Context, e todoEvent) error {
		got = append(got, "any")
		return nil
	})
	bus := reg.Bus(nil)

	require.NoError(t, bus.Publish(context.Background(), todoCreated{id: 1}))
	assert.Equal(t, []string{"created", "any"}, got)

	got = nil
	require.NoError(t, bus.Publish(context.Background(), todoDeleted{id: 1}))
	assert.Equal(t, []string{"any"}, got, "interface listener only")
	assert.Equal(t, 2, reg.Listeners(todoCreated{}))

	assert.ErrorIs(t, bus.Publish(context.Background(), "hello"), nbus.ErrNoListener)
	assert.Error(t, bus.Publish(context.Background(), nil))
}

func TestPublishStopsAtError(t *testing.T) {
	reg := nbus.New()
	var after bool
	nbus.Listen(reg, func(context.Context, todoCreated) error { return errors.New("full") })
	nbus.Listen(reg, func(context.Context, todoCreated) error {
		after = true
		return nil
	})
	err := reg.Bus(nil).Publish(context.Background(), todoCreated{})
	assert.EqualError(t, err, "listener nbus_test.todoCreated: full")
	assert.False(t, after)
}

func TestListenWith(t *testing.T) {
	g := ngraph.New()
	m := &mailer{}
	g.MustProvide(func() *mailer { return m })
	reg := nbus.New()
	nbus.ListenWith(reg, func(_ context.Context, e todoCreated, m *mailer) error {
		m.send(e.id)
		return nil
	})

	require.NoError(t, reg.Bus(g).Publish(context.Background(), todoCreated{id: 7}))
	assert.Equal(t, []int{7}, m.sent)

	err := reg.Bus(nil).Publish(context.Background(), todoCreated{id: 8})
	assert.ErrorIs(t, err, nbus.ErrNoResolver)
}

func TestEmit(t *testing.T) {
	g := ngraph.New()
	var closed int
	g.MustProvide(func() (*mailer, func()) { return &mailer{}, func() { closed++ } },
		ngraph.WithLifetime(ngraph.Scoped))
	reg := nbus.New(nbus.WithGraph(g))
	var sent []int
	nbus.ListenWith(reg, func(_ context.Context, e todoCreated, m *mailer) error {
		m.send(e.id)
		sent = m.sent
		return nil
	})
	nbus.Listen(reg, func(_ context.Context, e todoDeleted) error { panic("boom") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := make(chan error, 2)
	bus := reg.Bus(nil)
	bus.Emit(ctx, todoCreated{id: 3}, func(err error) { results <- err })
	reg.Wait()
	require.NoError(t, <-results, "canceled request does not cancel the event")
	assert.Equal(t, []int{3}, sent)
	assert.Equal(t, 1, closed, "scope closed after the listeners")

	bus.Emit(context.Background(), todoDeleted{id: 4}, func(err error) { results <- err })
	reg.Wait()
	assert.EqualError(t, <-results, "panic: boom")
}

type recordingSink struct{ events []interface{} }

func (s *recordingSink) Sink(_ context.Context, events ...interface{}) error {
	s.events = append(s.events, events...)
	return nil
}

func TestSink(t *testing.T) {
	assert.ErrorIs(t, nbus.New().Bus(nil).Sink(context.Background(), todoCreated{}), nbus.ErrSinkUnset)

	s := &recordingSink{}
	bus := nbus.New(nbus.WithSink(s)).Bus(nil)
	require.NoError(t, bus.Sink(context.Background(), todoCreated{id: 1}, todoDeleted{id: 1}))
	assert.Len(t, s.events, 2)
}
