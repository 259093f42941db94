// Package parser holds the concrete grammar of the rule language.
//
// The structs here mirror the surface syntax one-to-one and are produced by
// participle. They are never evaluated directly: package expr converts them
// into its closed AST, rejecting anything outside the sandbox on the way.
package parser

// Program is a step string. Only single-statement programs are valid; the
// grammar accepts more so the sandbox can report them precisely.
type Program struct {
	Statements []*Statement `parser:"@@ ( \";\"? @@ )* \";\"?"`
}

// Statement is one step.
type Statement struct {
	If     *IfStatement `parser:"  @@"`
	Assign *Assignment  `parser:"| @@"`
	Bare   *Expression  `parser:"| @@"`
}

// IfStatement is "if <cond>: <statement>".
type IfStatement struct {
	Cond *Expression `parser:"\"if\" @@ \":\""`
	Body *Statement  `parser:"@@"`
}

// Assignment is "<target> <op> <value>".
type Assignment struct {
	Target *Reference  `parser:"@@"`
	Op     string      `parser:"@( \"=\" | \"+=\" | \"-=\" | \"*=\" | \"/=\" | \"%=\" )"`
	Value  *Expression `parser:"@@"`
}

// Expression is the top of the expression grammar: "<body> [if <cond> else <else>]".
type Expression struct {
	Body *Or         `parser:"@@"`
	Cond *Or         `parser:"( \"if\" @@"`
	Else *Expression `parser:"  \"else\" @@ )?"`
}

// Or is a chain of "or" operands.
type Or struct {
	Left  *And   `parser:"@@"`
	Right []*And `parser:"( \"or\" @@ )*"`
}

// And is a chain of "and" operands.
type And struct {
	Left  *Not   `parser:"@@"`
	Right []*Not `parser:"( \"and\" @@ )*"`
}

// Not is an optionally negated comparison.
type Not struct {
	Negated    *Not        `parser:"  \"not\" @@"`
	Comparison *Comparison `parser:"| @@"`
}

// Comparison is a possibly chained comparison, e.g. "a < b <= c".
type Comparison struct {
	Left *Sum         `parser:"@@"`
	Ops  []*CompareOp `parser:"@@*"`
}

// CompareOp is one link of a comparison chain.
type CompareOp struct {
	Op    string `parser:"@( \"==\" | \"!=\" | \"<=\" | \">=\" | \"<\" | \">\" )"`
	Right *Sum   `parser:"@@"`
}

// Sum is a chain of additive operations.
type Sum struct {
	Left *Term    `parser:"@@"`
	Ops  []*SumOp `parser:"@@*"`
}

// SumOp is one additive link.
type SumOp struct {
	Op    string `parser:"@( \"+\" | \"-\" )"`
	Right *Term  `parser:"@@"`
}

// Term is a chain of multiplicative operations.
type Term struct {
	Left *Unary    `parser:"@@"`
	Ops  []*TermOp `parser:"@@*"`
}

// TermOp is one multiplicative link. "/" parses so it can be rejected with a
// clear message; only floor division is supported.
type TermOp struct {
	Op    string `parser:"@( \"*\" | \"//\" | \"%\" | \"/\" )"`
	Right *Unary `parser:"@@"`
}

// Unary is a negation or a power.
type Unary struct {
	Minus   bool   `parser:"(  @\"-\""`
	Operand *Unary `parser:"   @@ )"`
	Power   *Power `parser:"| @@"`
}

// Power is "<base> [** <exponent>]". The exponent binds to a unary so that
// "2 ** -1" parses and "-2 ** 2" means -(2 ** 2).
type Power struct {
	Base     *Primary `parser:"@@"`
	Exponent *Unary   `parser:"( \"**\" @@ )?"`
}

// Primary is an atom of the grammar.
type Primary struct {
	Dice   *string     `parser:"  @Dice"`
	Float  *float64    `parser:"| @Float"`
	Int    *int64      `parser:"| @Int"`
	String *string     `parser:"| @String"`
	Bool   *Boolean    `parser:"| @( \"True\" | \"False\" | \"true\" | \"false\" )"`
	Ref    *Reference  `parser:"| @@"`
	Group  *Expression `parser:"| \"(\" @@ \")\""`
}

// Reference is a name followed by attribute/index accessors and an optional
// call. Whether a given shape is allowed is decided by package expr.
type Reference struct {
	Head      string      `parser:"@Ident"`
	Accessors []*Accessor `parser:"@@*"`
	Call      *CallArgs   `parser:"@@?"`
}

// Accessor is ".name" or "[index]".
type Accessor struct {
	Attr  *string     `parser:"  \".\" @Ident"`
	Index *Expression `parser:"| \"[\" @@ \"]\""`
}

// CallArgs is a parenthesised argument list.
type CallArgs struct {
	Open bool          `parser:"@\"(\""`
	Args []*Expression `parser:"( @@ ( \",\" @@ )* )? \")\""`
}

// Boolean captures True/False literals.
type Boolean bool

// Capture implements participle.Capture.
func (b *Boolean) Capture(values []string) error {
	*b = values[0] == "True" || values[0] == "true"
	return nil
}
