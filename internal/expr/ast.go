package expr

import (
	"strconv"
	"strings"
)

// Node is a node of the closed expression AST. The set of implementations is
// fixed by the unexported marker method; there is no node for arbitrary
// calls, attribute access or assignment.
type Node interface {
	node()
	String() string
}

// IntLit is an integer literal.
type IntLit struct{ Value int }

// FloatLit is a decimal literal. Floats may be compared and combined but are
// never accepted where an integer result is required.
type FloatLit struct{ Value float64 }

// BoolLit is True or False.
type BoolLit struct{ Value bool }

// SegmentKind tells how a path segment is applied.
type SegmentKind uint8

const (
	// SegName is a mapping key written as an identifier.
	SegName SegmentKind = iota
	// SegKey is a mapping key written as a string subscript.
	SegKey
	// SegIndex is a list index.
	SegIndex
)

// Segment is one step of a path lookup.
type Segment struct {
	Kind  SegmentKind
	Name  string
	Index int
}

func (s Segment) String() string {
	switch s.Kind {
	case SegKey:
		return strconv.Quote(s.Name)
	case SegIndex:
		return strconv.Itoa(s.Index)
	}
	return s.Name
}

// Path is a dotted lookup into the evaluation context.
type Path struct{ Segments []Segment }

// Neg is unary minus.
type Neg struct{ X Node }

// Not is boolean negation.
type Not struct{ X Node }

// BinOp enumerates arithmetic operators.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpFloorDiv
	OpMod
	OpPow
)

var binOpText = [...]string{"+", "-", "*", "//", "%", "**"}

func (o BinOp) String() string { return binOpText[o] }

// Binary is an arithmetic operation.
type Binary struct {
	Op          BinOp
	Left, Right Node
}

// CmpOp enumerates comparison operators.
type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var cmpOpText = [...]string{"==", "!=", "<", "<=", ">", ">="}

func (o CmpOp) String() string { return cmpOpText[o] }

// Compare is a comparison chain: Operands[0] Ops[0] Operands[1] Ops[1] ...
type Compare struct {
	Operands []Node
	Ops      []CmpOp
}

// LogicOp is "and" or "or".
type LogicOp uint8

const (
	LogicAnd LogicOp = iota
	LogicOr
)

// Logic is a short-circuiting boolean chain returning the last evaluated operand.
type Logic struct {
	Op       LogicOp
	Operands []Node
}

// Cond is "Then if Test else Else".
type Cond struct {
	Test, Then, Else Node
}

// Builtin is one of the whitelisted pure numeric helpers.
type Builtin uint8

const (
	BuiltinMax Builtin = iota
	BuiltinMin
	BuiltinAbs
	BuiltinRound
	BuiltinClamp
)

var builtinNames = map[string]Builtin{
	"max":   BuiltinMax,
	"min":   BuiltinMin,
	"abs":   BuiltinAbs,
	"round": BuiltinRound,
	"clamp": BuiltinClamp,
}

func (b Builtin) String() string {
	for name, v := range builtinNames {
		if v == b {
			return name
		}
	}
	return "?"
}

// Call applies a whitelisted builtin.
type Call struct {
	Fn   Builtin
	Args []Node
}

// KeepMode selects which dice of a pool count.
type KeepMode uint8

const (
	KeepAll KeepMode = iota
	KeepHighest
	KeepLowest
)

// Reroll describes a reroll-once condition such as "r<2".
type Reroll struct {
	Op    CmpOp
	Value int
}

// Matches reports whether face triggers the reroll.
func (r Reroll) Matches(face int) bool {
	return compareInts(face, r.Value, r.Op)
}

// Dice is a dice term: Count d Sides with optional keep, explosion, reroll and
// modifier. Modifier is nil when absent.
type Dice struct {
	Text      string
	Count     int
	Sides     int
	Keep      KeepMode
	KeepCount int
	Explode   int
	Reroll    *Reroll
	Modifier  Node
}

func (*IntLit) node()   {}
func (*FloatLit) node() {}
func (*BoolLit) node()  {}
func (*Path) node()     {}
func (*Neg) node()      {}
func (*Not) node()      {}
func (*Binary) node()   {}
func (*Compare) node()  {}
func (*Logic) node()    {}
func (*Cond) node()     {}
func (*Call) node()     {}
func (*Dice) node()     {}

func (n *IntLit) String() string   { return strconv.Itoa(n.Value) }
func (n *FloatLit) String() string { return strconv.FormatFloat(n.Value, 'g', -1, 64) }
func (n *BoolLit) String() string {
	if n.Value {
		return "True"
	}
	return "False"
}

func (n *Path) String() string {
	var sb strings.Builder
	for i, s := range n.Segments {
		switch {
		case s.Kind != SegName:
			sb.WriteString("[" + s.String() + "]")
		case i > 0:
			sb.WriteString("." + s.Name)
		default:
			sb.WriteString(s.Name)
		}
	}
	return sb.String()
}

func (n *Neg) String() string { return "-" + n.X.String() }
func (n *Not) String() string { return "not " + n.X.String() }

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

func (n *Compare) String() string {
	parts := []string{n.Operands[0].String()}
	for i, op := range n.Ops {
		parts = append(parts, op.String(), n.Operands[i+1].String())
	}
	return strings.Join(parts, " ")
}

func (n *Logic) String() string {
	sep := " and "
	if n.Op == LogicOr {
		sep = " or "
	}
	parts := make([]string, len(n.Operands))
	for i, o := range n.Operands {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (n *Cond) String() string {
	return "(" + n.Then.String() + " if " + n.Test.String() + " else " + n.Else.String() + ")"
}

func (n *Call) String() string {
	parts := make([]string, len(n.Args))
	for i, a := range n.Args {
		parts[i] = a.String()
	}
	return n.Fn.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (n *Dice) String() string {
	if n.Modifier == nil {
		return n.Text
	}
	return n.Text + signed(n.Modifier)
}

// signed renders a folded modifier chain the way it was written, as
// " + a - b".
func signed(n Node) string {
	switch m := n.(type) {
	case *Binary:
		if m.Op == OpAdd || m.Op == OpSub {
			return signed(m.Left) + " " + m.Op.String() + " " + m.Right.String()
		}
	case *Neg:
		return " - " + m.X.String()
	}
	return " + " + n.String()
}

// ContainsDice reports whether any dice term appears under n.
func ContainsDice(n Node) bool {
	found := false
	Walk(n, func(c Node) {
		if _, ok := c.(*Dice); ok {
			found = true
		}
	})
	return found
}

// Walk visits n and every node below it in evaluation order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch n := n.(type) {
	case *Neg:
		Walk(n.X, fn)
	case *Not:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Compare:
		for _, o := range n.Operands {
			Walk(o, fn)
		}
	case *Logic:
		for _, o := range n.Operands {
			Walk(o, fn)
		}
	case *Cond:
		Walk(n.Test, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Dice:
		Walk(n.Modifier, fn)
	}
}
