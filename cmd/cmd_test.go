package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/sim"
	"github.com/suderio/baator/internal/trace"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

var (
	corePack  = filepath.Join("..", "content", "core.yaml")
	duelScene = filepath.Join("..", "content", "scenes", "duel.yaml")
)

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--short=false", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "baator ")
	assert.Contains(t, out, "commit ")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var b buildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &b))
	assert.NotEmpty(t, b.Version)
	assert.NotEmpty(t, b.Go)

	out, err = execute(t, "version", "--json=false", "--short")
	require.NoError(t, err)
	assert.Equal(t, currentBuild().Version+"\n", out)
}

func TestEval(t *testing.T) {
	out, err := execute(t, "eval", "2 + 3 * 4", "--mode", "number")
	require.NoError(t, err)
	assert.Equal(t, "14\n", out)

	ctx := filepath.Join(t.TempDir(), "ctx.yaml")
	require.NoError(t, os.WriteFile(ctx, []byte("target:\n  hp: 3\n"), 0o644))
	out, err = execute(t, "eval", "target.hp > 0", "--ctx", ctx, "--mode", "predicate")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = execute(t, "eval", "__import__('os')", "--ctx", "", "--mode", "auto")
	assert.Error(t, err)
}

func TestRoll(t *testing.T) {
	out, err := execute(t, "roll", "2d6+3")
	require.NoError(t, err)
	assert.Contains(t, out, "2d6+3 = ")
	assert.Contains(t, out, "faces")
}

func TestStatsConstant(t *testing.T) {
	out, err := execute(t, "stats", "3", "--trials", "5", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "mean 3.000")
	assert.Contains(t, out, "min 3  max 3")
}

func TestRulesCommands(t *testing.T) {
	out, err := execute(t, "rules", "validate", corePack)
	require.NoError(t, err)
	assert.Equal(t, "OK core v1 (4 rules)\n", out)

	out, err = execute(t, "rules", "list", corePack)
	require.NoError(t, err)
	assert.Contains(t, out, "core.mana_bolt")
	assert.Contains(t, out, "mythic")

	out, err = execute(t, "rules", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"pack_id"`)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pack_id: x\n"), 0o644))
	_, err = execute(t, "rules", "validate", bad)
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "duel.jsonl")
	out, err := execute(t, "simulate", corePack, duelScene, "--rule", "mana_bolt", "--ticks", "10", "--trace", tracePath)
	require.NoError(t, err)

	assert.Contains(t, out, "tick 1: Asha -> Brann hit (hp 6)")
	assert.Contains(t, out, "tick 5: Brann is down")
	assert.Contains(t, out, "tick 5: Asha wins")

	store, err := trace.NewStore(tracePath)
	require.NoError(t, err)
	defer store.Close()
	events, err := store.Load()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, sim.EventSceneEnd, events[len(events)-1].Name)
	assert.Equal(t, "Asha", events[len(events)-1].Payload["winner"])
}
