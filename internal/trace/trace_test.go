package trace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/bus"
)

func TestStoreAppendLoad(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "trace.jsonl"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(bus.NewEvent("rules.trace", map[string]any{
		"rule_id": "core.strike",
		"roll":    6,
		"dc":      5,
		"success": true,
	})))
	require.NoError(t, store.Append(bus.NewEvent("rng.fulfilled", map[string]any{
		"all_faces": []int{3, 5},
		"mana":      0.8,
		"roll":      nil,
	})))

	events, err := store.Load()
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "rules.trace", events[0].Name)
	assert.Equal(t, 6, events[0].Payload["roll"])
	assert.Equal(t, true, events[0].Payload["success"])
	assert.False(t, events[0].Timestamp.IsZero())

	assert.Equal(t, []any{3, 5}, events[1].Payload["all_faces"])
	assert.Equal(t, 0.8, events[1].Payload["mana"])
	assert.Nil(t, events[1].Payload["roll"])
}

func TestStoreAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	first, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(bus.NewEvent("sim.turn", nil)))
	require.NoError(t, first.Close())

	second, err := NewStore(path)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Append(bus.NewEvent("sim.turn", map[string]any{"round": 2})))

	events, err := second.Load()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Empty(t, events[0].Payload)
	assert.Equal(t, 2, events[1].Payload["round"])
}

func TestRecorderKeepsDiagnosticEvents(t *testing.T) {
	b := bus.NewSyncBus()
	store, err := NewStore(filepath.Join(t.TempDir(), "trace.jsonl"))
	require.NoError(t, err)
	defer store.Close()

	r := NewRecorder(store, nil)
	r.Attach(b)

	require.NoError(t, b.Publish(bus.NewEvent("rng.requested", map[string]any{"request_id": "r1"})))
	require.NoError(t, b.Publish(bus.NewEvent("combat.hit", map[string]any{"amount": 3})))
	require.NoError(t, b.Publish(bus.NewEvent("rules.trace", map[string]any{"rule_id": "x", "name": "payload"})))

	log := r.AsLog()
	require.Len(t, log, 2)
	assert.Equal(t, "rng.requested", log[0]["name"])
	assert.Equal(t, "r1", log[0]["request_id"])
	assert.Equal(t, "rules.trace", log[1]["name"], "event name wins over a payload key")

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	r.Detach()
	require.NoError(t, b.Publish(bus.NewEvent("rules.trace", nil)))
	assert.Len(t, r.Events(), 2)

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestRecorderCustomNames(t *testing.T) {
	b := bus.NewSyncBus()
	r := NewRecorder(nil, nil)
	r.Attach(b, "combat.hit")

	require.NoError(t, b.Publish(bus.NewEvent("combat.hit", nil)))
	require.NoError(t, b.Publish(bus.NewEvent("rules.trace", nil)))
	require.Len(t, r.Events(), 1)
	assert.Equal(t, "combat.hit", r.Events()[0].Name)
}
