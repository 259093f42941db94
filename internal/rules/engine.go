package rules

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/dice"
	"github.com/suderio/baator/internal/expr"
)

// EventTrace is published once per Apply, whatever the outcome.
const EventTrace = "rules.trace"

// Reasons reported in Result.Reason.
const (
	ReasonConditionFailed = "condition_failed"
	ReasonError           = "error"
)

// Result is the structured outcome of one rule application. Success, Roll,
// DC and Cost are nil when the stage did not run.
type Result struct {
	RuleID  string         `json:"rule_id"`
	Applied bool           `json:"applied"`
	Success *bool          `json:"success,omitempty"`
	Roll    *int           `json:"roll,omitempty"`
	DC      *int           `json:"dc,omitempty"`
	Cost    *int           `json:"cost,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Vars    map[string]any `json:"vars,omitempty"`
	Effects []Effect       `json:"effects,omitempty"`
}

// Engine applies rules. It holds no per-application state and may be shared
// by callers that serialize their own scene state.
type Engine struct {
	dice     *dice.Service
	events   bus.Bus
	commands *bus.CommandBus
	log      logrus.FieldLogger
	newID    func() string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithIDs overrides the application id generator.
func WithIDs(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an engine resolving numbers through svc, publishing
// events on events and dispatching command effects on commands.
func NewEngine(svc *dice.Service, events bus.Bus, commands *bus.CommandBus, opts ...EngineOption) *Engine {
	e := &Engine{dice: svc, events: events, commands: commands, newID: uuid.NewString}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		e.log = l
	}
	return e
}

// Apply runs rule against ctx. The stages run in a fixed order and stop at
// the first terminal one:
//
//  1. Guard: every `when` predicate must hold, else condition_failed.
//  2. Cost: resolved for its events, never gated on.
//  3. DC: resolved to an integer when present.
//  4. Roll: rolled only when a DC is present; success is roll >= dc.
//     Without a DC the rule succeeds.
//  5. Steps: run on success against a scope layered over ctx.
//  6. Effects: the chosen branch is materialized and fired.
//  7. Trace: rules.trace is published.
//
// On error the returned Result has Reason "error" and the trace is still
// published.
func (e *Engine) Apply(rule *Rule, ctx *expr.Context, prov bus.Provenance) (res Result, err error) {
	id := e.newID()
	res = Result{RuleID: rule.ID}
	log := e.log.WithField("rule_id", rule.ID).WithField("request_id", id)

	defer func() {
		if err != nil {
			res.Applied = false
			res.Reason = ReasonError
			log.WithError(err).Warn("rule application failed")
		}
		e.trace(rule, id, res, prov)
	}()

	// 1. Guard
	for _, cond := range rule.When {
		ok, err := e.dice.Evaluator().Predicate(cond, ctx)
		if err != nil {
			return res, fmt.Errorf("when %q: %w", cond, err)
		}
		if !ok {
			res.Reason = ReasonConditionFailed
			return res, nil
		}
	}

	// 2. Cost
	if rule.Cost != "" {
		cost, err := e.dice.ResolveNumber(id+"/cost", rule.Cost, ctx, prov)
		if err != nil {
			return res, fmt.Errorf("cost: %w", err)
		}
		res.Cost = &cost
	}

	// 3. DC
	if rule.DC != "" {
		dc, err := e.dice.ResolveNumber(id+"/dc", rule.DC, ctx, prov)
		if err != nil {
			return res, fmt.Errorf("dc: %w", err)
		}
		res.DC = &dc
	}

	// 4. Roll
	success := true
	if rule.Roll != "" && res.DC != nil {
		roll, err := e.dice.ResolveNumber(id+"/roll", rule.Roll, ctx, prov)
		if err != nil {
			return res, fmt.Errorf("roll: %w", err)
		}
		res.Roll = &roll
		success = roll >= *res.DC
	}
	res.Success = &success
	res.Applied = true

	// 5. Steps
	scope := expr.NewScope(ctx)
	if success && len(rule.Steps) > 0 {
		if err := e.dice.RunSteps(id+"/steps", rule.Steps, scope, prov); err != nil {
			return res, fmt.Errorf("steps: %w", err)
		}
		res.Vars = scope.Vars()
	}

	// 6. Effects
	branch := rule.OnSuccess
	if !success {
		branch = rule.OnFailure
	}
	for i, eff := range branch {
		fired, err := e.fire(fmt.Sprintf("%s/effect/%d", id, i), eff, scope, prov)
		if err != nil {
			return res, fmt.Errorf("effect %s: %w", eff.Name, err)
		}
		res.Effects = append(res.Effects, fired)
	}

	log.WithField("success", success).Debug("rule applied")
	return res, nil
}

// fire materializes the payload of eff and sends it.
func (e *Engine) fire(id string, eff Effect, env expr.Env, prov bus.Provenance) (Effect, error) {
	m := &materializer{dice: e.dice, env: env, prov: prov, id: id}
	payload, err := m.mapValue(eff.Payload)
	if err != nil {
		return eff, err
	}
	payload = prov.Merge(payload)
	out := Effect{Type: eff.Type, Name: eff.Name, Payload: payload}

	switch eff.Type {
	case EffectCommand:
		if e.commands == nil {
			return out, fmt.Errorf("%w: %s", bus.ErrNoHandler, eff.Name)
		}
		return out, e.commands.Dispatch(bus.Command{Name: eff.Name, Payload: payload})
	case EffectEvent:
		return out, e.events.Publish(bus.NewEvent(eff.Name, payload))
	default:
		return out, fmt.Errorf("unknown effect type %q", eff.Type)
	}
}

func (e *Engine) trace(rule *Rule, id string, res Result, prov bus.Provenance) {
	payload := map[string]any{
		"rule_id":    rule.ID,
		"layer":      string(rule.Layer),
		"applied":    res.Applied,
		"reason":     res.Reason,
		"request_id": id,
		"roll":       nil,
		"dc":         nil,
		"success":    nil,
	}
	if res.Roll != nil {
		payload["roll"] = *res.Roll
	}
	if res.DC != nil {
		payload["dc"] = *res.DC
	}
	if res.Success != nil {
		payload["success"] = *res.Success
	}
	for k, v := range prov {
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
	if err := e.events.Publish(bus.NewEvent(EventTrace, payload)); err != nil {
		e.log.WithField("event", EventTrace).WithError(err).Warn("publish failed")
	}
}

// materializer resolves effect payload strings at fire time so that dice in
// a payload roll once, and only for the branch that fires.
type materializer struct {
	dice *dice.Service
	env  expr.Env
	prov bus.Provenance
	id   string
	n    int
}

// mapValue resolves keys in sorted order so a fixed RNG sequence always
// lands on the same keys.
func (m *materializer) mapValue(in map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(in))
	for _, k := range keys {
		r, err := m.value(in[k])
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}

func (m *materializer) value(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return m.str(t)
	case map[string]any:
		return m.mapValue(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := m.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// str resolves s as a number. Text that does not parse, names nothing in
// scope or is not an integer stays a literal string.
func (m *materializer) str(s string) (any, error) {
	if _, err := m.dice.Evaluator().Compile(s); err != nil {
		if errors.Is(err, expr.ErrInvalidSyntax) {
			return s, nil
		}
		return nil, err
	}
	m.n++
	n, err := m.dice.ResolveNumber(fmt.Sprintf("%s/%d", m.id, m.n), s, m.env, m.prov)
	if err != nil {
		if errors.Is(err, expr.ErrUnresolvedPath) || errors.Is(err, expr.ErrTypeMismatch) {
			return s, nil
		}
		return nil, err
	}
	return n, nil
}
