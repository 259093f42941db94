package bus

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) handler(tag string) Handler {
	return func(e Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, tag+":"+e.Name)
		return nil
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestSyncBusDeliversInlineInSubscriptionOrder(t *testing.T) {
	b := NewSyncBus()
	rec := &recorder{}
	b.Subscribe("hit", rec.handler("a"))
	b.Subscribe(Wildcard, rec.handler("all"))
	b.Subscribe("hit", rec.handler("b"))
	b.Subscribe("miss", rec.handler("c"))

	require.NoError(t, b.Publish(NewEvent("hit", nil)))
	assert.Equal(t, []string{"a:hit", "all:hit", "b:hit"}, rec.list())
}

func TestSubscriberFailuresAreIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := NewSyncBus(WithMetrics(m), WithLogger(quietLogger()))
	rec := &recorder{}

	b.Subscribe("hit", func(Event) error { panic("boom") })
	b.Subscribe("hit", func(Event) error { return errors.New("nope") })
	b.Subscribe("hit", rec.handler("ok"))

	require.NoError(t, b.Publish(NewEvent("hit", nil)))
	assert.Equal(t, []string{"ok:hit"}, rec.list())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveredTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishedTotal.WithLabelValues("hit")))
}

func TestUnsubscribe(t *testing.T) {
	b := NewSyncBus()
	rec := &recorder{}
	unsubscribe := b.Subscribe("hit", rec.handler("a"))
	b.Subscribe("hit", rec.handler("b"))

	unsubscribe()
	unsubscribe()
	require.NoError(t, b.Publish(NewEvent("hit", nil)))
	assert.Equal(t, []string{"b:hit"}, rec.list())
}

func TestNewEventCopiesPayload(t *testing.T) {
	payload := map[string]any{"amount": 3}
	e := NewEvent("hit", payload)
	payload["amount"] = 4
	assert.Equal(t, 3, e.Payload["amount"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestAsyncBusPreservesPublishOrder(t *testing.T) {
	b := NewAsyncBus()
	rec := &recorder{}
	b.Subscribe(Wildcard, rec.handler("x"))
	b.Start()

	var want []string
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("e%d", i)
		want = append(want, "x:"+name)
		require.NoError(t, b.Publish(NewEvent(name, nil)))
	}
	b.Stop()

	assert.Equal(t, want, rec.list())
	assert.Zero(t, b.Pending())
}

func TestAsyncBusPublishDoesNotWaitForSubscribers(t *testing.T) {
	b := NewAsyncBus()
	release := make(chan struct{})
	delivered := make(chan struct{}, 1)
	b.Subscribe("slow", func(Event) error {
		<-release
		delivered <- struct{}{}
		return nil
	})
	b.Start()
	defer b.Stop()

	done := make(chan struct{})
	go func() {
		_ = b.Publish(NewEvent("slow", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on subscriber")
	}
	close(release)
	<-delivered
}

func TestAsyncBusHoldsEventsUntilStart(t *testing.T) {
	b := NewAsyncBus()
	rec := &recorder{}
	b.Subscribe("hit", rec.handler("a"))

	require.NoError(t, b.Publish(NewEvent("hit", nil)))
	assert.Equal(t, 1, b.Pending())
	assert.Empty(t, rec.list())

	b.Start()
	b.Stop()
	assert.Equal(t, []string{"a:hit"}, rec.list())
}

func TestAsyncBusStopWithoutStartDrains(t *testing.T) {
	b := NewAsyncBus()
	rec := &recorder{}
	b.Subscribe("hit", rec.handler("a"))
	require.NoError(t, b.Publish(NewEvent("hit", nil)))

	b.Stop()
	assert.Equal(t, []string{"a:hit"}, rec.list())
	assert.ErrorIs(t, b.Publish(NewEvent("hit", nil)), ErrBusStopped)
}

func TestAsyncBusStopRacingPublish(t *testing.T) {
	b := NewAsyncBus()
	var mu sync.Mutex
	seen := map[int]int{}
	b.Subscribe("n", func(e Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.Payload["i"].(int)]++
		return nil
	})
	b.Start()

	var accepted sync.Map
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				n := w*1000 + i
				if b.Publish(NewEvent("n", map[string]any{"i": n})) == nil {
					accepted.Store(n, true)
				}
			}
		}(w)
	}
	time.Sleep(time.Millisecond)
	b.Stop()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	count := 0
	accepted.Range(func(k, _ any) bool {
		count++
		assert.Equal(t, 1, seen[k.(int)], "event %d", k)
		return true
	})
	assert.Len(t, seen, count)
}

type stubTransport struct {
	mu   sync.Mutex
	err  error
	sent []Event
}

func (s *stubTransport) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, e)
	return nil
}

func (s *stubTransport) Close() error { return nil }

func TestTransportInterceptsPublish(t *testing.T) {
	tr := &stubTransport{}
	b := NewSyncBus(WithTransport(tr))
	rec := &recorder{}
	b.Subscribe("hit", rec.handler("a"))

	require.NoError(t, b.Publish(NewEvent("hit", nil)))
	assert.Len(t, tr.sent, 1)
	assert.Empty(t, rec.list())
}

func TestTransportFailureFallsBackToLocalDelivery(t *testing.T) {
	for _, mode := range []string{"sync", "async"} {
		t.Run(mode, func(t *testing.T) {
			m := NewMetrics(nil)
			b, err := New(mode, WithTransport(&stubTransport{err: errors.New("broker down")}), WithMetrics(m), WithLogger(quietLogger()))
			require.NoError(t, err)
			rec := &recorder{}
			b.Subscribe("hit", rec.handler("a"))
			b.Start()

			require.NoError(t, b.Publish(NewEvent("hit", nil)))
			b.Stop()
			assert.Equal(t, []string{"a:hit"}, rec.list())
			assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacksTotal))
		})
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New("carrier-pigeon")
	assert.Error(t, err)
}

func TestWebSocketTransportRelaysEvents(t *testing.T) {
	remote := NewSyncBus()
	got := make(chan Event, 1)
	remote.Subscribe("rules.trace", func(e Event) error {
		got <- e
		return nil
	})

	srv := httptest.NewServer(NewRelay(remote, quietLogger()))
	t.Cleanup(srv.Close)

	tr, err := DialWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	require.NoError(t, err)

	local := NewSyncBus(WithTransport(tr))
	t.Cleanup(local.Stop)
	require.NoError(t, local.Publish(NewEvent("rules.trace", map[string]any{"rule_id": "core.strike", "roll": 12})))

	select {
	case e := <-got:
		assert.Equal(t, "core.strike", e.Payload["rule_id"])
		assert.Equal(t, 12.0, e.Payload["roll"])
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestWebSocketTransportFailsAfterClose(t *testing.T) {
	srv := httptest.NewServer(NewRelay(NewSyncBus(), quietLogger()))
	t.Cleanup(srv.Close)

	tr, err := DialWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	assert.Error(t, tr.Send(NewEvent("x", nil)))

	_, err = DialWebSocket("ws://127.0.0.1:1/nowhere", 200*time.Millisecond)
	assert.Error(t, err)
}

func TestCommandBus(t *testing.T) {
	m := NewMetrics(nil)
	b := NewCommandBus(WithMetrics(m), WithLogger(quietLogger()))

	var got Command
	require.NoError(t, b.Register("combat.damage", func(c Command) error {
		got = c
		return nil
	}))
	assert.ErrorIs(t, b.Register("combat.damage", func(Command) error { return nil }), ErrHandlerExists)
	assert.True(t, b.Handles("combat.damage"))

	require.NoError(t, b.Dispatch(Command{Name: "combat.damage", Payload: map[string]any{"amount": 4}}))
	assert.Equal(t, 4, got.Payload["amount"])

	err := b.Dispatch(Command{Name: "combat.heal"})
	assert.ErrorIs(t, err, ErrNoHandler)

	boom := errors.New("target immune")
	require.NoError(t, b.Register("combat.heal", func(Command) error { return boom }))
	assert.Same(t, boom, b.Dispatch(Command{Name: "combat.heal"}))

	b.Unregister("combat.heal")
	assert.ErrorIs(t, b.Dispatch(Command{Name: "combat.heal"}), ErrNoHandler)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("combat.damage", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("combat.heal", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("combat.heal", "no_handler")))
}

func TestProvenance(t *testing.T) {
	p := Provenance{"actor_id": "a1", "layer": "physical", "note": "x"}

	merged := p.Merge(map[string]any{"amount": 3, "layer": "cyber"})
	assert.Equal(t, map[string]any{"amount": 3, "actor_id": "a1", "layer": "physical", "note": "x"}, merged)

	assert.Equal(t, Provenance{"actor_id": "a1"}, p.Pick("actor_id", "requester"))
}
