package expr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/suderio/baator/internal/parser"
)

const (
	// MaxDiceCount bounds the number of dice in one term.
	MaxDiceCount = 100
	// MaxExplosions bounds the extra faces a single die may add by exploding.
	MaxExplosions = 100
)

// AllowedSides is the closed set of die sizes.
var AllowedSides = map[int]bool{2: true, 3: true, 4: true, 6: true, 8: true, 10: true, 12: true, 20: true, 100: true}

var (
	exprParser    = parser.Build()
	programParser = parser.BuildProgram()
)

// Expr is a compiled expression. It is immutable and safe to share.
type Expr struct {
	Source string
	Root   Node
}

// Compile parses src and converts it into the closed AST.
func Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, newError(ErrInvalidSyntax, src, "empty expression")
	}
	g, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	c := compiler{src: src}
	root, err := c.expression(g)
	if err != nil {
		return nil, err
	}
	return &Expr{Source: src, Root: root}, nil
}

// MustCompile is Compile for expressions known to be valid.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// IsPureDice reports whether the expression is a single dice term with an
// optional modifier, as opposed to dice mixed into a larger expression.
func (e *Expr) IsPureDice() bool {
	_, ok := e.Root.(*Dice)
	return ok
}

// DiceTerms lists the dice terms in evaluation order.
func (e *Expr) DiceTerms() []*Dice {
	var out []*Dice
	Walk(e.Root, func(n Node) {
		if d, ok := n.(*Dice); ok {
			out = append(out, d)
		}
	})
	return out
}

func syntaxError(src string, err error) error {
	return &Error{Kind: ErrInvalidSyntax, Expr: src, Msg: parser.MapError(src, err).Error()}
}

type compiler struct {
	src string
}

func (c *compiler) unsafe(format string, args ...any) error {
	return newError(ErrUnsafeExpression, c.src, format, args...)
}

func (c *compiler) syntax(format string, args ...any) error {
	return newError(ErrInvalidSyntax, c.src, format, args...)
}

func (c *compiler) expression(e *parser.Expression) (Node, error) {
	body, err := c.or(e.Body)
	if err != nil {
		return nil, err
	}
	if e.Cond == nil {
		return body, nil
	}
	test, err := c.or(e.Cond)
	if err != nil {
		return nil, err
	}
	alt, err := c.expression(e.Else)
	if err != nil {
		return nil, err
	}
	return &Cond{Test: test, Then: body, Else: alt}, nil
}

func (c *compiler) or(o *parser.Or) (Node, error) {
	first, err := c.and(o.Left)
	if err != nil || len(o.Right) == 0 {
		return first, err
	}
	operands := []Node{first}
	for _, r := range o.Right {
		n, err := c.and(r)
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	return &Logic{Op: LogicOr, Operands: operands}, nil
}

func (c *compiler) and(a *parser.And) (Node, error) {
	first, err := c.not(a.Left)
	if err != nil || len(a.Right) == 0 {
		return first, err
	}
	operands := []Node{first}
	for _, r := range a.Right {
		n, err := c.not(r)
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	return &Logic{Op: LogicAnd, Operands: operands}, nil
}

func (c *compiler) not(n *parser.Not) (Node, error) {
	if n.Negated != nil {
		x, err := c.not(n.Negated)
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	return c.comparison(n.Comparison)
}

var cmpOps = map[string]CmpOp{"==": CmpEq, "!=": CmpNe, "<": CmpLt, "<=": CmpLe, ">": CmpGt, ">=": CmpGe}

func (c *compiler) comparison(cmp *parser.Comparison) (Node, error) {
	first, err := c.sum(cmp.Left)
	if err != nil || len(cmp.Ops) == 0 {
		return first, err
	}
	out := &Compare{Operands: []Node{first}}
	for _, op := range cmp.Ops {
		n, err := c.sum(op.Right)
		if err != nil {
			return nil, err
		}
		out.Operands = append(out.Operands, n)
		out.Ops = append(out.Ops, cmpOps[op.Op])
	}
	return out, nil
}

func (c *compiler) sum(s *parser.Sum) (Node, error) {
	left, err := c.term(s.Left)
	if err != nil {
		return nil, err
	}
	rights := make([]Node, len(s.Ops))
	for i, op := range s.Ops {
		if rights[i], err = c.term(op.Right); err != nil {
			return nil, err
		}
	}

	// "NdM + k - STR" folds into one dice term so the roll detail carries
	// the resolved modifier.
	if d, ok := left.(*Dice); ok && d.Modifier == nil && len(rights) > 0 {
		mixed := false
		for _, r := range rights {
			mixed = mixed || ContainsDice(r)
		}
		if !mixed {
			mod := rights[0]
			if sumOp(s.Ops[0].Op) == OpSub {
				mod = &Neg{X: mod}
			}
			for i := 1; i < len(rights); i++ {
				mod = &Binary{Op: sumOp(s.Ops[i].Op), Left: mod, Right: rights[i]}
			}
			folded := *d
			folded.Modifier = mod
			return &folded, nil
		}
	}

	for i, op := range s.Ops {
		left = &Binary{Op: sumOp(op.Op), Left: left, Right: rights[i]}
	}
	return left, nil
}

func sumOp(op string) BinOp {
	if op == "-" {
		return OpSub
	}
	return OpAdd
}

func (c *compiler) term(t *parser.Term) (Node, error) {
	left, err := c.unary(t.Left)
	if err != nil {
		return nil, err
	}
	for _, op := range t.Ops {
		right, err := c.unary(op.Right)
		if err != nil {
			return nil, err
		}
		var bop BinOp
		switch op.Op {
		case "*":
			bop = OpMul
		case "//":
			bop = OpFloorDiv
		case "%":
			bop = OpMod
		default:
			return nil, c.syntax("true division is not supported, use //")
		}
		left = &Binary{Op: bop, Left: left, Right: right}
	}
	return left, nil
}

func (c *compiler) unary(u *parser.Unary) (Node, error) {
	if u.Minus {
		x, err := c.unary(u.Operand)
		if err != nil {
			return nil, err
		}
		return &Neg{X: x}, nil
	}
	base, err := c.primary(u.Power.Base)
	if err != nil || u.Power.Exponent == nil {
		return base, err
	}
	exp, err := c.unary(u.Power.Exponent)
	if err != nil {
		return nil, err
	}
	return &Binary{Op: OpPow, Left: base, Right: exp}, nil
}

func (c *compiler) primary(p *parser.Primary) (Node, error) {
	switch {
	case p.Dice != nil:
		return c.dice(*p.Dice)
	case p.Float != nil:
		return &FloatLit{Value: *p.Float}, nil
	case p.Int != nil:
		return &IntLit{Value: int(*p.Int)}, nil
	case p.String != nil:
		return nil, c.syntax("string literal %s is only allowed as a subscript", *p.String)
	case p.Bool != nil:
		return &BoolLit{Value: bool(*p.Bool)}, nil
	case p.Ref != nil:
		return c.reference(p.Ref)
	case p.Group != nil:
		return c.expression(p.Group)
	}
	return nil, c.syntax("empty term")
}

func (c *compiler) reference(r *parser.Reference) (Node, error) {
	if r.Call != nil {
		if len(r.Accessors) > 0 {
			return nil, c.unsafe("method calls are not allowed")
		}
		return c.call(r.Head, r.Call.Args)
	}
	path, err := c.path(r)
	if err != nil {
		return nil, err
	}
	return &Path{Segments: path}, nil
}

// path validates a reference used for lookup or as an assignment target.
func (c *compiler) path(r *parser.Reference) ([]Segment, error) {
	if r.Call != nil {
		return nil, c.unsafe("calls are not allowed here")
	}
	if strings.HasPrefix(r.Head, "_") {
		return nil, c.unsafe("access to private name %q", r.Head)
	}
	segs := []Segment{{Kind: SegName, Name: r.Head}}
	for _, acc := range r.Accessors {
		if acc.Attr != nil {
			if strings.HasPrefix(*acc.Attr, "_") {
				return nil, c.unsafe("access to private attribute %q", *acc.Attr)
			}
			segs = append(segs, Segment{Kind: SegName, Name: *acc.Attr})
			continue
		}
		seg, err := c.subscript(acc.Index)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// subscript accepts only a literal int (optionally negated) or string.
func (c *compiler) subscript(e *parser.Expression) (Segment, error) {
	p, neg := literalPrimary(e)
	switch {
	case p == nil:
	case p.Int != nil:
		i := int(*p.Int)
		if neg {
			i = -i
		}
		return Segment{Kind: SegIndex, Index: i}, nil
	case p.String != nil && !neg:
		key, err := unquote(*p.String)
		if err != nil {
			return Segment{}, c.syntax("bad string literal %s", *p.String)
		}
		if strings.HasPrefix(key, "_") {
			return Segment{}, c.unsafe("access to private key %q", key)
		}
		return Segment{Kind: SegKey, Name: key}, nil
	}
	return Segment{}, c.unsafe("subscripts must be integer or string literals")
}

// literalPrimary digs the single primary out of e, if e is nothing more than
// an optionally negated atom.
func literalPrimary(e *parser.Expression) (*parser.Primary, bool) {
	if e.Cond != nil || len(e.Body.Right) > 0 || len(e.Body.Left.Right) > 0 {
		return nil, false
	}
	n := e.Body.Left.Left
	if n.Comparison == nil || len(n.Comparison.Ops) > 0 {
		return nil, false
	}
	s := n.Comparison.Left
	if len(s.Ops) > 0 || len(s.Left.Ops) > 0 {
		return nil, false
	}
	u := s.Left.Left
	neg := false
	if u.Minus {
		neg = true
		u = u.Operand
		if u.Minus {
			return nil, false
		}
	}
	if u.Power.Exponent != nil {
		return nil, false
	}
	return u.Power.Base, neg
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") {
		return s[1 : len(s)-1], nil
	}
	return strconv.Unquote(s)
}

var builtinArity = map[Builtin][2]int{
	BuiltinMax:   {1, -1},
	BuiltinMin:   {1, -1},
	BuiltinAbs:   {1, 1},
	BuiltinRound: {1, 1},
	BuiltinClamp: {3, 3},
}

func (c *compiler) call(name string, args []*parser.Expression) (Node, error) {
	fn, ok := builtinNames[name]
	if !ok {
		return nil, c.unsafe("call to %q is not allowed", name)
	}
	arity := builtinArity[fn]
	if len(args) < arity[0] || (arity[1] >= 0 && len(args) > arity[1]) {
		return nil, c.syntax("%s() takes %s", name, arityText(arity))
	}
	out := &Call{Fn: fn}
	for _, a := range args {
		n, err := c.expression(a)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, n)
	}
	return out, nil
}

func arityText(a [2]int) string {
	switch {
	case a[1] < 0:
		return "at least " + strconv.Itoa(a[0]) + " argument(s)"
	case a[0] == a[1]:
		return "exactly " + strconv.Itoa(a[0]) + " argument(s)"
	}
	return strconv.Itoa(a[0]) + " to " + strconv.Itoa(a[1]) + " arguments"
}

var (
	diceRegex   = regexp.MustCompile(`^(\d+)[dD](\d+)(.*)$`)
	suffixRegex = regexp.MustCompile(`^(?:([kK])([hHlL]?)(\d+)|([rR])(<=|>=|<|>|=)?(\d+)|(!)(?:>(\d+))?)`)
)

// dice decomposes a raw dice token such as "4d6kh3" or "1d10!>9r<2".
func (c *compiler) dice(raw string) (*Dice, error) {
	m := diceRegex.FindStringSubmatch(raw)
	if m == nil {
		return nil, c.syntax("invalid dice term %q", raw)
	}
	count, _ := strconv.Atoi(m[1])
	sides, _ := strconv.Atoi(m[2])
	if count < 1 || count > MaxDiceCount {
		return nil, c.syntax("dice count %d out of range 1..%d", count, MaxDiceCount)
	}
	if !AllowedSides[sides] {
		return nil, c.syntax("d%d is not an allowed die", sides)
	}

	d := &Dice{Text: raw, Count: count, Sides: sides}
	seenKeep, seenExplode := false, false
	rest := m[3]
	for rest != "" {
		s := suffixRegex.FindStringSubmatch(rest)
		if s == nil {
			return nil, c.syntax("invalid dice suffix %q in %q", rest, raw)
		}
		rest = rest[len(s[0]):]
		switch {
		case s[1] != "":
			if seenKeep {
				return nil, c.syntax("more than one keep rule in %q", raw)
			}
			seenKeep = true
			d.KeepCount, _ = strconv.Atoi(s[3])
			d.Keep = KeepHighest
			if strings.EqualFold(s[2], "l") {
				d.Keep = KeepLowest
			}
		case s[4] != "":
			if d.Reroll != nil {
				return nil, c.syntax("more than one reroll rule in %q", raw)
			}
			v, _ := strconv.Atoi(s[6])
			op := CmpEq
			if s[5] != "" && s[5] != "=" {
				op = cmpOps[s[5]]
			}
			if op == CmpEq {
				if v < 1 || v > sides {
					return nil, c.syntax("reroll face %d outside 1..%d", v, sides)
				}
			}
			d.Reroll = &Reroll{Op: op, Value: v}
		default:
			if seenExplode {
				return nil, c.syntax("more than one explode rule in %q", raw)
			}
			seenExplode = true
			d.Explode = sides
			if s[8] != "" {
				d.Explode, _ = strconv.Atoi(s[8])
			}
			if d.Explode < 2 || d.Explode > sides {
				return nil, c.syntax("explode threshold %d outside 2..%d", d.Explode, sides)
			}
		}
	}
	return d, nil
}
