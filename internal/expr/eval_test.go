package expr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/expr"
	"github.com/suderio/baator/internal/rng/rngtest"
)

func combatContext(t *testing.T) *expr.Context {
	t.Helper()
	ctx, err := expr.NewContext(map[string]any{
		"attacker": map[string]any{"name": "A", "hp": 10, "power": 3, "alive": true},
		"defender": map[string]any{"name": "B", "hp": 10, "power": 2},
		"env":      map[string]any{"mana": 0.8},
		"stats":    map[string]int{"str": 3, "dex": 2},
		"items":    []int{4, 5, 6},
	})
	require.NoError(t, err)
	return ctx
}

func TestEvaluateNumber(t *testing.T) {
	ctx := combatContext(t)
	cases := []struct {
		src  string
		want int
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"7 // 2", 3},
		{"-7 // 2", -4},
		{"-7 % 3", 2},
		{"2 ** 10", 1024},
		{"-2 ** 2", -4},
		{"attacker.power + 1", 4},
		{"attacker.hp - defender.power", 8},
		{"max(1, 5, 3)", 5},
		{"min(attacker.hp, 4)", 4},
		{"clamp(12, 0, 10)", 10},
		{"abs(-3)", 3},
		{"round(2.5)", 2},
		{"round(3.5)", 4},
		{"1 if True else 2", 1},
		{"attacker.power + (1 if env.mana > 0.7 else 0)", 4},
		{"stats['str'] + stats[\"dex\"]", 5},
		{"items[0] + items[-1]", 10},
		{"0 or 5", 5},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			got, err := expr.Evaluate(tc.src, ctx, expr.ModeNumber)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluatePredicate(t *testing.T) {
	ctx := combatContext(t)
	cases := []struct {
		src  string
		want bool
	}{
		{"attacker.hp > 0", true},
		{"defender.hp <= 0", false},
		{"0", false},
		{"3", true},
		{"1 < 2 < 3", true},
		{"3 > 2 > 2", false},
		{"not False", true},
		{"attacker.alive and defender.hp > 0", true},
		{"env.mana > 0.7", true},
		{"attacker.name == defender.name", false},
		{"attacker.hp == 10 or 1 // 0", true},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			got, err := expr.Evaluate(tc.src, ctx, expr.ModePredicate)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateAuto(t *testing.T) {
	ctx := combatContext(t)

	v, err := expr.Evaluate("1 + 1", ctx, expr.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = expr.Evaluate("1 < 2", ctx, expr.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = expr.Evaluate("3 and 0", ctx, expr.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = expr.Evaluate("env.mana + 1", ctx, expr.ModeAuto)
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)
}

func TestNumberModeRejectsNonIntegers(t *testing.T) {
	ctx := combatContext(t)
	for _, src := range []string{"1 < 2", "True", "0.5 * 2", "env.mana", "attacker.name"} {
		t.Run(src, func(t *testing.T) {
			_, err := expr.Evaluate(src, ctx, expr.ModeNumber)
			assert.ErrorIs(t, err, expr.ErrTypeMismatch)
		})
	}
}

func TestUnsafeExpressions(t *testing.T) {
	ctx := combatContext(t)
	for _, src := range []string{
		"__import__('os')",
		"attacker.__class__",
		"attacker._hp",
		"_secret",
		"attacker.hp.bit_length()",
		"open('x')",
		"eval('1')",
		"stats[attacker.name]",
		"stats['_x']",
		"items[1 + 1]",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := expr.Evaluate(src, ctx, expr.ModeAuto)
			assert.ErrorIs(t, err, expr.ErrUnsafeExpression)
		})
	}
}

func TestInvalidSyntax(t *testing.T) {
	for _, src := range []string{
		"",
		"   ",
		"1 +",
		"lambda: 1",
		"10 / 2",
		"'abc'",
		"max()",
		"clamp(1, 2)",
		"1d7",
		"0d6",
		"101d6",
		"1d6!>1",
		"1d6kh1kl1",
		"1d6r7",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := expr.Compile(src)
			assert.ErrorIs(t, err, expr.ErrInvalidSyntax)
		})
	}
}

func TestLookupErrors(t *testing.T) {
	ctx := combatContext(t)

	_, err := expr.Evaluate("attacker.missing + 1", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrUnresolvedPath)

	_, err = expr.Evaluate("items[7]", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrUnresolvedPath)

	_, err = expr.Evaluate("attacker + 1", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)

	_, err = expr.Evaluate("attacker.name + 1", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrTypeMismatch)

	_, err = expr.Evaluate("1 // 0", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrArithmetic)

	_, err = expr.Evaluate("2 ** 100", ctx, expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrArithmetic)
}

func TestErrorCarriesExpression(t *testing.T) {
	_, err := expr.Evaluate("attacker.hp", expr.MustContext(nil), expr.ModeNumber)
	var e *expr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "attacker.hp", e.Expr)
	assert.Contains(t, err.Error(), "attacker not found")
}

func TestDiceWithoutRNG(t *testing.T) {
	_, err := expr.Evaluate("1d20 + 1", expr.MustContext(nil), expr.ModeNumber)
	assert.ErrorIs(t, err, expr.ErrNoRNG)
}

func TestEvaluatorCachesCompiledExpressions(t *testing.T) {
	ev := expr.New()
	a, err := ev.Compile("attacker.hp + 1")
	require.NoError(t, err)
	b, err := ev.Compile("attacker.hp + 1")
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestEvaluatorWithRNG(t *testing.T) {
	seq := rngtest.New(15)
	ev := expr.New(expr.WithRNG(seq))

	ok, err := ev.Predicate("1d20 >= 15", combatContext(t))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{20}, seq.Sides())
}

func TestGuardShortCircuitSkipsDice(t *testing.T) {
	seq := rngtest.New()
	ev := expr.New(expr.WithRNG(seq))

	ok, err := ev.Predicate("False and 1d20 > 10", combatContext(t))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, seq.Calls())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]expr.Mode{"number": expr.ModeNumber, "predicate": expr.ModePredicate, "auto": expr.ModeAuto, "": expr.ModeAuto} {
		got, err := expr.ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := expr.ParseMode("float")
	assert.Error(t, err)
}
