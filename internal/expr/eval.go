package expr

import (
	"fmt"
	"math"
	"sync"

	"github.com/suderio/baator/internal/rng"
)

// Mode selects the result type of an evaluation.
type Mode uint8

const (
	// ModeAuto returns an int or a bool, whichever the expression produces.
	ModeAuto Mode = iota
	// ModeNumber requires an integer result.
	ModeNumber
	// ModePredicate reduces the result to its truthiness.
	ModePredicate
)

func (m Mode) String() string {
	switch m {
	case ModeNumber:
		return "number"
	case ModePredicate:
		return "predicate"
	}
	return "auto"
}

// ParseMode maps "number", "predicate" and "auto" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "number", "num":
		return ModeNumber, nil
	case "predicate", "pred", "bool":
		return ModePredicate, nil
	case "auto", "":
		return ModeAuto, nil
	}
	return ModeAuto, fmt.Errorf("unknown mode %q", s)
}

// DiceResolver produces the total of a dice term once its modifier is known.
// It lets callers observe every roll, e.g. to publish events.
type DiceResolver func(d *Dice, modifier int) (int, error)

// Evaluator evaluates expressions against an Env. Compiled expressions are
// cached by source text.
type Evaluator struct {
	rng     rng.RNG
	resolve DiceResolver
	cache   sync.Map
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRNG rolls dice terms directly against r.
func WithRNG(r rng.RNG) Option {
	return func(ev *Evaluator) { ev.rng = r }
}

// WithDiceResolver hands dice terms to fn instead of rolling them.
func WithDiceResolver(fn DiceResolver) Option {
	return func(ev *Evaluator) { ev.resolve = fn }
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{}
	for _, o := range opts {
		o(ev)
	}
	return ev
}

// Evaluate compiles (or fetches from cache) and evaluates src with no random
// source: any dice term fails with ErrNoRNG.
func Evaluate(src string, env Env, mode Mode) (any, error) {
	e, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return New().EvaluateWith(e, env, mode, nil)
}

// Compile returns the cached compiled form of src.
func (ev *Evaluator) Compile(src string) (*Expr, error) {
	if cached, ok := ev.cache.Load(src); ok {
		return cached.(*Expr), nil
	}
	e, err := Compile(src)
	if err != nil {
		return nil, err
	}
	ev.cache.Store(src, e)
	return e, nil
}

// Evaluate compiles and evaluates src.
func (ev *Evaluator) Evaluate(src string, env Env, mode Mode) (any, error) {
	e, err := ev.Compile(src)
	if err != nil {
		return nil, err
	}
	return ev.EvaluateWith(e, env, mode, nil)
}

// Number evaluates src in number mode.
func (ev *Evaluator) Number(src string, env Env) (int, error) {
	v, err := ev.Evaluate(src, env, ModeNumber)
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Predicate evaluates src in predicate mode.
func (ev *Evaluator) Predicate(src string, env Env) (bool, error) {
	v, err := ev.Evaluate(src, env, ModePredicate)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// EvaluateWith evaluates a compiled expression. resolve overrides the
// evaluator's own dice handling when non-nil.
func (ev *Evaluator) EvaluateWith(e *Expr, env Env, mode Mode, resolve DiceResolver) (any, error) {
	if resolve == nil {
		resolve = ev.diceResolver()
	}
	r := &run{env: env, resolve: resolve}
	v, err := r.eval(e.Root)
	if err != nil {
		return nil, withExpr(err, e.Source)
	}
	out, err := finish(v, mode)
	if err != nil {
		return nil, withExpr(err, e.Source)
	}
	return out, nil
}

func (ev *Evaluator) diceResolver() DiceResolver {
	if ev.resolve != nil {
		return ev.resolve
	}
	if ev.rng == nil {
		return nil
	}
	return func(d *Dice, modifier int) (int, error) {
		detail, err := d.Roll(ev.rng, modifier)
		return detail.Result, err
	}
}

func finish(v any, mode Mode) (any, error) {
	switch mode {
	case ModePredicate:
		return truthy(v)
	case ModeNumber:
		return asInt(v)
	}
	switch v.(type) {
	case int, bool:
		return v, nil
	}
	return nil, newError(ErrTypeMismatch, "", "expression produced %s, want integer or boolean", typeName(v))
}

type run struct {
	env     Env
	resolve DiceResolver
}

func (r *run) eval(n Node) (any, error) {
	switch n := n.(type) {
	case *IntLit:
		return n.Value, nil
	case *FloatLit:
		return n.Value, nil
	case *BoolLit:
		return n.Value, nil
	case *Path:
		return r.lookup(n)
	case *Neg:
		v, err := r.eval(n.X)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case int:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, newError(ErrTypeMismatch, "", "cannot negate %s", typeName(v))
	case *Not:
		v, err := r.eval(n.X)
		if err != nil {
			return nil, err
		}
		t, err := truthy(v)
		return !t, err
	case *Binary:
		left, err := r.eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := r.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return arith(n.Op, left, right)
	case *Compare:
		return r.compare(n)
	case *Logic:
		var v any
		for _, o := range n.Operands {
			var err error
			if v, err = r.eval(o); err != nil {
				return nil, err
			}
			t, err := truthy(v)
			if err != nil {
				return nil, err
			}
			if t == (n.Op == LogicOr) {
				return v, nil
			}
		}
		return v, nil
	case *Cond:
		test, err := r.eval(n.Test)
		if err != nil {
			return nil, err
		}
		t, err := truthy(test)
		if err != nil {
			return nil, err
		}
		if t {
			return r.eval(n.Then)
		}
		return r.eval(n.Else)
	case *Call:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := r.eval(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callBuiltin(n.Fn, args)
	case *Dice:
		mod := 0
		if n.Modifier != nil {
			v, err := r.eval(n.Modifier)
			if err != nil {
				return nil, err
			}
			if mod, err = asInt(v); err != nil {
				return nil, err
			}
		}
		if r.resolve == nil {
			return nil, newError(ErrNoRNG, "", "cannot roll %s", n.Text)
		}
		return r.resolve(n, mod)
	}
	return nil, newError(ErrInvalidSyntax, "", "unknown node %T", n)
}

func (r *run) lookup(p *Path) (any, error) {
	if r.env == nil {
		return nil, newError(ErrUnresolvedPath, "", "%s not found", p)
	}
	v, err := r.env.Lookup(p.Segments)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case int, float64, bool, string:
		return v, nil
	}
	return nil, newError(ErrTypeMismatch, "", "%s is %s, not a value", p, typeName(v))
}

func (r *run) compare(n *Compare) (any, error) {
	left, err := r.eval(n.Operands[0])
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := r.eval(n.Operands[i+1])
		if err != nil {
			return nil, err
		}
		ok, err := compareValues(left, right, op)
		if err != nil || !ok {
			return false, err
		}
		left = right
	}
	return true, nil
}

func compareValues(a, b any, op CmpOp) (bool, error) {
	if isNumber(a) && isNumber(b) {
		ai, aInt := a.(int)
		bi, bInt := b.(int)
		if aInt && bInt {
			return compareInts(ai, bi, op), nil
		}
		return compareFloats(toFloat(a), toFloat(b), op), nil
	}
	if op == CmpEq || op == CmpNe {
		switch a.(type) {
		case bool:
			if bb, ok := b.(bool); ok {
				return (a.(bool) == bb) == (op == CmpEq), nil
			}
		case string:
			if bs, ok := b.(string); ok {
				return (a.(string) == bs) == (op == CmpEq), nil
			}
		}
	}
	return false, newError(ErrTypeMismatch, "", "cannot compare %s %s %s", typeName(a), op, typeName(b))
}

func compareInts(a, b int, op CmpOp) bool {
	switch op {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpGt:
		return a > b
	}
	return a >= b
}

func compareFloats(a, b float64, op CmpOp) bool {
	switch op {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpGt:
		return a > b
	}
	return a >= b
}

func arith(op BinOp, a, b any) (any, error) {
	if !isNumber(a) || !isNumber(b) {
		return nil, newError(ErrTypeMismatch, "", "unsupported operands %s %s %s", typeName(a), op, typeName(b))
	}
	ai, aInt := a.(int)
	bi, bInt := b.(int)
	if aInt && bInt {
		return intArith(op, ai, bi)
	}
	return floatArith(op, toFloat(a), toFloat(b))
}

var errOverflow = newError(ErrArithmetic, "", "integer overflow")

func intArith(op BinOp, a, b int) (any, error) {
	switch op {
	case OpAdd:
		s := a + b
		if (s > a) != (b > 0) {
			return nil, errOverflow
		}
		return s, nil
	case OpSub:
		s := a - b
		if (s < a) != (b > 0) {
			return nil, errOverflow
		}
		return s, nil
	case OpMul:
		if a == 0 || b == 0 {
			return 0, nil
		}
		p := a * b
		if p/b != a || (a == -1 && b == math.MinInt) || (b == -1 && a == math.MinInt) {
			return nil, errOverflow
		}
		return p, nil
	case OpFloorDiv:
		if b == 0 {
			return nil, newError(ErrArithmetic, "", "division by zero")
		}
		q := a / b
		if a%b != 0 && (a < 0) != (b < 0) {
			q--
		}
		return q, nil
	case OpMod:
		if b == 0 {
			return nil, newError(ErrArithmetic, "", "modulo by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	}
	if b < 0 {
		return floatArith(op, float64(a), float64(b))
	}
	result := 1
	base := a
	for b > 0 {
		if b&1 == 1 {
			r, err := intArith(OpMul, result, base)
			if err != nil {
				return nil, err
			}
			result = r.(int)
		}
		b >>= 1
		if b > 0 {
			sq, err := intArith(OpMul, base, base)
			if err != nil {
				return nil, err
			}
			base = sq.(int)
		}
	}
	return result, nil
}

func floatArith(op BinOp, a, b float64) (any, error) {
	var v float64
	switch op {
	case OpAdd:
		v = a + b
	case OpSub:
		v = a - b
	case OpMul:
		v = a * b
	case OpFloorDiv:
		if b == 0 {
			return nil, newError(ErrArithmetic, "", "division by zero")
		}
		v = math.Floor(a / b)
	case OpMod:
		if b == 0 {
			return nil, newError(ErrArithmetic, "", "modulo by zero")
		}
		v = a - b*math.Floor(a/b)
	case OpPow:
		if a == 0 && b < 0 {
			return nil, newError(ErrArithmetic, "", "zero to a negative power")
		}
		v = math.Pow(a, b)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, newError(ErrArithmetic, "", "result is not a finite number")
	}
	return v, nil
}

func callBuiltin(fn Builtin, args []any) (any, error) {
	for _, a := range args {
		if !isNumber(a) {
			return nil, newError(ErrTypeMismatch, "", "%s() needs numbers, got %s", fn, typeName(a))
		}
	}
	switch fn {
	case BuiltinMax, BuiltinMin:
		best := args[0]
		for _, a := range args[1:] {
			if (fn == BuiltinMax && toFloat(a) > toFloat(best)) || (fn == BuiltinMin && toFloat(a) < toFloat(best)) {
				best = a
			}
		}
		return best, nil
	case BuiltinAbs:
		switch x := args[0].(type) {
		case int:
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case float64:
			return math.Abs(x), nil
		}
	case BuiltinRound:
		if x, ok := args[0].(float64); ok {
			return int(math.RoundToEven(x)), nil
		}
		return args[0], nil
	case BuiltinClamp:
		x, lo, hi := args[0], args[1], args[2]
		if toFloat(lo) > toFloat(hi) {
			return nil, newError(ErrArithmetic, "", "clamp bounds %v > %v", lo, hi)
		}
		if toFloat(x) < toFloat(lo) {
			return lo, nil
		}
		if toFloat(x) > toFloat(hi) {
			return hi, nil
		}
		return x, nil
	}
	return nil, newError(ErrUnsafeExpression, "", "unknown builtin")
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, float64:
		return true
	}
	return false
}

func toFloat(v any) float64 {
	if i, ok := v.(int); ok {
		return float64(i)
	}
	return v.(float64)
}

func asInt(v any) (int, error) {
	if i, ok := v.(int); ok {
		return i, nil
	}
	return 0, newError(ErrTypeMismatch, "", "expected integer, got %s", typeName(v))
}

func truthy(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	}
	return false, newError(ErrTypeMismatch, "", "%s has no truth value", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case int:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]any:
		return "mapping"
	case []any:
		return "list"
	}
	return fmt.Sprintf("%T", v)
}
