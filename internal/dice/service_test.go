package dice

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/expr"
	"github.com/suderio/baator/internal/rng/rngtest"
)

type captured struct {
	events []bus.Event
}

func newHarness(t *testing.T, faces ...int) (*Service, *captured, *rngtest.Sequence) {
	t.Helper()
	b := bus.NewSyncBus()
	c := &captured{}
	b.Subscribe(bus.Wildcard, func(e bus.Event) error {
		c.events = append(c.events, e)
		return nil
	})
	seq := rngtest.New(faces...)
	return NewService(seq, b, WithMetrics(NewMetrics(nil))), c, seq
}

func (c *captured) names() []string {
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Name
	}
	return out
}

var strCtx = expr.MustContext(map[string]any{"attacker": map[string]any{"str": 3}})

func TestResolvePureDice(t *testing.T) {
	s, c, _ := newHarness(t, 12)
	prov := bus.Provenance{"actor_id": "a1", "layer": "physical", "note": "not flattened"}

	got, err := s.ResolveNumber("req-1", "1d20 + attacker.str", strCtx, prov)
	require.NoError(t, err)
	assert.Equal(t, 15, got)

	require.Equal(t, []string{EventRequested, EventFulfilled}, c.names())
	requested := c.events[0].Payload
	assert.Equal(t, "req-1", requested["request_id"])
	assert.Equal(t, "1d20 + attacker.str", requested["expr"])
	assert.Equal(t, "a1", requested["actor_id"])
	assert.Equal(t, "physical", requested["layer"])
	assert.NotContains(t, requested, "note")
	assert.NotContains(t, requested, "meta")

	fulfilled := c.events[1].Payload
	assert.Equal(t, 15, fulfilled["result"])
	assert.Equal(t, []int{12}, fulfilled["all_faces"])
	assert.Equal(t, []int{12}, fulfilled["kept_faces"])
	assert.Equal(t, 3, fulfilled["modifier"])
	assert.Equal(t, "a1", fulfilled["actor_id"])
}

func TestResolveMixedExpressionRollsEachTerm(t *testing.T) {
	s, c, _ := newHarness(t, 10, 2)

	res, err := s.Resolve(Request{ID: "req", Expr: "1d20 + 1d4 + attacker.str", Context: strCtx, Mode: expr.ModeNumber})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Int())
	assert.Len(t, res.Rolls, 2)

	require.Equal(t, []string{EventRequested, EventFulfilled, EventRequested, EventFulfilled}, c.names())
	assert.Equal(t, "req/1", c.events[0].Payload["request_id"])
	assert.Equal(t, "1d20", c.events[0].Payload["expr"])
	assert.Equal(t, 10, c.events[1].Payload["result"])
	assert.Equal(t, "req/2", c.events[2].Payload["request_id"])
	assert.Equal(t, 2, c.events[3].Payload["result"])
	for _, e := range c.events {
		assert.Equal(t, "req", e.Payload["parent_request_id"])
	}
}

func TestResolveWithoutDicePublishesNothing(t *testing.T) {
	s, c, seq := newHarness(t)

	got, err := s.ResolveNumber("", "attacker.str * 2", strCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
	assert.Empty(t, c.events)
	assert.Zero(t, seq.Calls())
}

func TestResolvePredicate(t *testing.T) {
	s, _, _ := newHarness(t, 15)
	res, err := s.Resolve(Request{Expr: "1d20 >= 15", Context: strCtx, Mode: expr.ModePredicate})
	require.NoError(t, err)
	assert.Equal(t, true, res.Value)
	assert.NotEmpty(t, res.RequestID)
}

func TestResolveFailurePublishesFailed(t *testing.T) {
	s, c, _ := newHarness(t)

	_, err := s.ResolveNumber("req-2", "1d20", strCtx, bus.Provenance{"source": "test"})
	assert.ErrorIs(t, err, rngtest.ErrExhausted)
	require.Equal(t, []string{EventRequested, EventFailed}, c.names())
	assert.Equal(t, "req-2", c.events[1].Payload["request_id"])
	assert.Equal(t, "test", c.events[1].Payload["source"])
	assert.Contains(t, c.events[1].Payload["reason"], "exhausted")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.rollsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.resolutionsTotal.WithLabelValues("error")))
}

func TestResolveInvalidExpression(t *testing.T) {
	s, c, _ := newHarness(t)

	_, err := s.ResolveNumber("", "1d7", strCtx, nil)
	assert.ErrorIs(t, err, expr.ErrInvalidSyntax)
	assert.Empty(t, c.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.resolutionsTotal.WithLabelValues("invalid")))
}

func TestGeneratedRequestIDs(t *testing.T) {
	b := bus.NewSyncBus()
	var ids []any
	b.Subscribe(EventRequested, func(e bus.Event) error {
		ids = append(ids, e.Payload["request_id"])
		return nil
	})
	s := NewService(rngtest.New(4), b, WithIDs(func() string { return "fixed" }))

	_, err := s.ResolveNumber("", "1d6", strCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"fixed"}, ids)
}

func TestRollDetail(t *testing.T) {
	s, _, _ := newHarness(t, 3, 6, 1, 5)

	detail, err := s.RollDetail("", "4d6kh3", strCtx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5, 3}, detail.Kept)
	assert.Equal(t, 14, detail.Result)

	_, err = s.RollDetail("", "1d4 + 1d6", strCtx, nil)
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)
}

func TestAdvantageEvents(t *testing.T) {
	s, c, _ := newHarness(t, 7, 18, 7, 18)

	got, err := s.Advantage(20, nil)
	require.NoError(t, err)
	assert.Equal(t, 18, got)

	got, err = s.Disadvantage(20, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	require.Len(t, c.events, 4)
	assert.Equal(t, "adv", c.events[0].Payload["kind"])
	assert.Equal(t, "max", c.events[1].Payload["picked"])
	assert.Equal(t, "min", c.events[3].Payload["picked"])
}

func TestCommands(t *testing.T) {
	s, c, _ := newHarness(t, 9, 4, 11, 5)
	cb := bus.NewCommandBus()
	require.NoError(t, s.Register(cb))
	assert.ErrorIs(t, s.Register(cb), bus.ErrHandlerExists)

	require.NoError(t, cb.Dispatch(bus.Command{Name: CommandResolveNumber, Payload: map[string]any{
		"expr":       "1d20 + attacker.str",
		"ctx":        map[string]any{"attacker": map[string]any{"str": 1}},
		"request_id": "r9",
		"meta":       map[string]any{"requester": "ui"},
	}}))
	last := c.events[len(c.events)-1]
	assert.Equal(t, EventResolved, last.Name)
	assert.Equal(t, 10, last.Payload["result"])
	assert.Equal(t, "r9", last.Payload["request_id"])
	assert.Equal(t, "ui", last.Payload["requester"])

	require.NoError(t, cb.Dispatch(bus.Command{Name: CommandRollAdv, Payload: map[string]any{"sides": 20}}))
	assert.Equal(t, 11, c.events[len(c.events)-1].Payload["result"])

	require.NoError(t, cb.Dispatch(bus.Command{Name: CommandRollExpr, Payload: map[string]any{"expr": "1d6"}}))
	assert.Equal(t, 5, c.events[len(c.events)-1].Payload["result"])

	assert.Error(t, cb.Dispatch(bus.Command{Name: CommandRollExpr, Payload: map[string]any{}}))
	assert.Error(t, cb.Dispatch(bus.Command{Name: CommandRollDis, Payload: map[string]any{"sides": "twenty"}}))
}

func TestRunSteps(t *testing.T) {
	s, c, _ := newHarness(t, 4)
	scope := expr.NewScope(strCtx)

	require.NoError(t, s.RunSteps("app", []string{
		"damage = attacker.str",
		"damage += 1d6",
	}, scope, bus.Provenance{"actor_id": "a1"}))
	assert.Equal(t, 7, scope.Vars()["damage"])

	require.Equal(t, []string{EventRequested, EventFulfilled}, c.names())
	assert.Equal(t, "app/1", c.events[0].Payload["request_id"])
	assert.Equal(t, "a1", c.events[1].Payload["actor_id"])

	err := s.RunSteps("", []string{"attacker.__class__ = 1"}, scope, nil)
	assert.ErrorIs(t, err, expr.ErrUnsafeExpression)
}
