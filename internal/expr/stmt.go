package expr

import (
	"strings"

	"github.com/suderio/baator/internal/parser"
)

// AssignOp is the operator of a step assignment.
type AssignOp uint8

const (
	AssignSet AssignOp = iota
	AssignAdd
	AssignSub
)

// Assign writes Value to Target.
type Assign struct {
	Target []Segment
	Op     AssignOp
	Value  Node
}

// Step is a compiled rule step: an assignment, optionally guarded by a
// single "if <cond>:".
type Step struct {
	Source string
	Cond   Node
	Assign *Assign
}

// CompileStep parses a step such as "damage = attacker.power + 1" or
// "if env.mana > 0.7: damage += 1".
func CompileStep(src string) (*Step, error) {
	if strings.TrimSpace(src) == "" {
		return nil, newError(ErrInvalidSyntax, src, "empty step")
	}
	prog, err := programParser.ParseString("", src)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	c := compiler{src: src}
	if len(prog.Statements) != 1 {
		return nil, c.unsafe("a step must be a single statement, got %d", len(prog.Statements))
	}

	st := prog.Statements[0]
	step := &Step{Source: src}
	if st.If != nil {
		if step.Cond, err = c.expression(st.If.Cond); err != nil {
			return nil, err
		}
		st = st.If.Body
		if st.If != nil {
			return nil, c.unsafe("nested if statements are not allowed")
		}
	}
	if st.Assign == nil {
		return nil, c.unsafe("expression statements are not allowed, a step must assign")
	}
	if step.Assign, err = c.assignment(st.Assign); err != nil {
		return nil, err
	}
	return step, nil
}

func (c *compiler) assignment(a *parser.Assignment) (*Assign, error) {
	out := &Assign{}
	switch a.Op {
	case "=":
		out.Op = AssignSet
	case "+=":
		out.Op = AssignAdd
	case "-=":
		out.Op = AssignSub
	default:
		return nil, c.unsafe("assignment operator %q is not allowed", a.Op)
	}
	target, err := c.path(a.Target)
	if err != nil {
		return nil, err
	}
	out.Target = target
	if out.Value, err = c.expression(a.Value); err != nil {
		return nil, err
	}
	return out, nil
}

// Exec runs step against scope. A false condition is not an error.
func (ev *Evaluator) Exec(step *Step, scope *Scope) error {
	return ev.ExecWith(step, scope, nil)
}

// ExecWith runs step with resolve handling its dice terms, or the
// evaluator's own dice handling when resolve is nil.
func (ev *Evaluator) ExecWith(step *Step, scope *Scope, resolve DiceResolver) error {
	if resolve == nil {
		resolve = ev.diceResolver()
	}
	r := &run{env: scope, resolve: resolve}
	if step.Cond != nil {
		v, err := r.eval(step.Cond)
		if err != nil {
			return withExpr(err, step.Source)
		}
		ok, err := truthy(v)
		if err != nil {
			return withExpr(err, step.Source)
		}
		if !ok {
			return nil
		}
	}

	a := step.Assign
	v, err := r.eval(a.Value)
	if err != nil {
		return withExpr(err, step.Source)
	}
	if a.Op != AssignSet {
		old, err := r.lookup(&Path{Segments: a.Target})
		if err != nil {
			return withExpr(err, step.Source)
		}
		op := OpAdd
		if a.Op == AssignSub {
			op = OpSub
		}
		if v, err = arith(op, old, v); err != nil {
			return withExpr(err, step.Source)
		}
	}
	return withExpr(scope.Set(a.Target, v), step.Source)
}

// RunSteps compiles and executes steps in order, stopping at the first error.
func (ev *Evaluator) RunSteps(steps []string, scope *Scope) error {
	for _, src := range steps {
		step, err := CompileStep(src)
		if err != nil {
			return err
		}
		if err := ev.Exec(step, scope); err != nil {
			return err
		}
	}
	return nil
}

// Scope is a writable overlay on a Context. Writes never reach the Context;
// nested writes copy the affected top-level value first.
type Scope struct {
	base *Context
	vars map[string]any
}

// NewScope starts an empty overlay on base.
func NewScope(base *Context) *Scope {
	return &Scope{base: base, vars: map[string]any{}}
}

// Lookup resolves path against the overlay, then the base context.
func (s *Scope) Lookup(path []Segment) (any, error) {
	if len(path) > 0 {
		if v, ok := s.vars[path[0].Name]; ok {
			return walkPath(map[string]any{path[0].Name: v}, path)
		}
	}
	return s.base.Lookup(path)
}

// Set writes v at path.
func (s *Scope) Set(path []Segment, v any) error {
	head := path[0].Name
	if len(path) == 1 {
		s.vars[head] = v
		return nil
	}

	root, ok := s.vars[head]
	if !ok {
		if s.base == nil {
			return newError(ErrUnresolvedPath, "", "%s not found", head)
		}
		orig, err := s.base.Lookup(path[:1])
		if err != nil {
			return err
		}
		root = deepCopy(orig)
	}

	cur := root
	for i, seg := range path[1 : len(path)-1] {
		next, ok := step(cur, seg)
		if !ok {
			return newError(ErrUnresolvedPath, "", "%s not found", (&Path{Segments: path[:i+2]}).String())
		}
		cur = next
	}

	last := path[len(path)-1]
	switch c := cur.(type) {
	case map[string]any:
		if last.Kind == SegIndex {
			return newError(ErrTypeMismatch, "", "cannot index a mapping with %d", last.Index)
		}
		c[last.Name] = v
	case []any:
		i := last.Index
		if i < 0 {
			i += len(c)
		}
		if last.Kind != SegIndex || i < 0 || i >= len(c) {
			return newError(ErrUnresolvedPath, "", "%s not found", (&Path{Segments: path}).String())
		}
		c[i] = v
	default:
		return newError(ErrTypeMismatch, "", "cannot assign into %s", typeName(cur))
	}
	s.vars[head] = root
	return nil
}

// Vars returns a copy of every top-level value written so far.
func (s *Scope) Vars() map[string]any {
	return deepCopy(s.vars).(map[string]any)
}

// Context folds the overlay into a new Context.
func (s *Scope) Context() *Context {
	root := map[string]any{}
	if s.base != nil {
		for k, v := range s.base.root {
			root[k] = v
		}
	}
	for k, v := range s.vars {
		root[k] = deepCopy(v)
	}
	return &Context{root: root}
}
