package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/expr"
)

func TestContextIsImmutable(t *testing.T) {
	src := map[string]any{"attacker": map[string]any{"hp": 10}}
	ctx, err := expr.NewContext(src)
	require.NoError(t, err)

	src["attacker"].(map[string]any)["hp"] = 1
	v, err := ctx.Get("attacker.hp")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	copied := ctx.Map()
	copied["attacker"].(map[string]any)["hp"] = 2
	v, err = ctx.Get("attacker.hp")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestContextWith(t *testing.T) {
	ctx := expr.MustContext(map[string]any{"a": 1})
	next, err := ctx.With("env", map[string]float64{"mana": 0.5})
	require.NoError(t, err)

	_, err = ctx.Get("env.mana")
	assert.ErrorIs(t, err, expr.ErrUnresolvedPath)

	v, err := next.Get("env.mana")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)
	assert.Equal(t, []string{"a", "env"}, next.Keys())
}

func TestContextRejectsUnsupportedValues(t *testing.T) {
	_, err := expr.NewContext(map[string]any{"fn": func() {}})
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)

	v, err := expr.MustContext(map[string]any{"n": int64(7)}).Get("n")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRunSteps(t *testing.T) {
	ctx := combatContext(t)
	ev := expr.New()

	t.Run("assignment reads context", func(t *testing.T) {
		scope := expr.NewScope(ctx)
		require.NoError(t, ev.RunSteps([]string{
			"damage = attacker.power + (1 if env.mana > 0.7 else 0)",
		}, scope))
		assert.Equal(t, map[string]any{"damage": 4}, scope.Vars())
	})

	t.Run("later steps see earlier writes", func(t *testing.T) {
		scope := expr.NewScope(ctx)
		require.NoError(t, ev.RunSteps([]string{
			"damage = 2",
			"damage += attacker.power",
			"if damage > 4 and defender.hp > 0: damage -= 1",
		}, scope))
		assert.Equal(t, 4, scope.Vars()["damage"])
	})

	t.Run("false condition skips the write", func(t *testing.T) {
		scope := expr.NewScope(ctx)
		require.NoError(t, ev.RunSteps([]string{"if False: bonus = 1"}, scope))
		assert.Empty(t, scope.Vars())
	})

	t.Run("nested writes do not touch the context", func(t *testing.T) {
		scope := expr.NewScope(ctx)
		require.NoError(t, ev.RunSteps([]string{
			"defender.hp -= 2",
			"stats['str'] += 1",
		}, scope))

		v, err := scope.Lookup([]expr.Segment{{Name: "defender"}, {Name: "hp"}})
		require.NoError(t, err)
		assert.Equal(t, 8, v)

		v, err = ctx.Get("defender.hp")
		require.NoError(t, err)
		assert.Equal(t, 10, v)

		folded := scope.Context()
		v, err = folded.Get("stats.str")
		require.NoError(t, err)
		assert.Equal(t, 4, v)
	})

	t.Run("augmented assignment needs an existing value", func(t *testing.T) {
		err := ev.RunSteps([]string{"missing += 1"}, expr.NewScope(ctx))
		assert.ErrorIs(t, err, expr.ErrUnresolvedPath)
	})
}

func TestUnsafeSteps(t *testing.T) {
	for _, src := range []string{
		"x = attacker.__class__",
		"attacker.__class__ = 1",
		"a = 1; b = 2",
		"attacker.hp",
		"if True: if True: x = 1",
		"if True: attacker.hp",
		"x *= 2",
		"x /= 2",
		"max(1, 2) = 3",
		"_x = 1",
		"stats[attacker.name] = 1",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := expr.CompileStep(src)
			assert.ErrorIs(t, err, expr.ErrUnsafeExpression)
		})
	}
}

func TestStepSyntaxErrors(t *testing.T) {
	for _, src := range []string{"", "x = ", "if x > 1 x = 2", "= 3"} {
		t.Run(src, func(t *testing.T) {
			_, err := expr.CompileStep(src)
			assert.ErrorIs(t, err, expr.ErrInvalidSyntax)
		})
	}
}
