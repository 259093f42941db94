// Package rules holds data-defined rules and the engine that applies them.
//
// A rule pack is authored as YAML, validated on load and registered once into
// a Registry. The Engine then runs a rule through its fixed stages: guard,
// cost, DC, roll, steps, effects and trace.
package rules

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateRuleID is returned when a pack registers a key that already exists.
	ErrDuplicateRuleID = errors.New("duplicate rule id")
	// ErrUnknownRule is returned by Registry.Get for a missing key.
	ErrUnknownRule = errors.New("unknown rule")
	// ErrInvalidPack is returned when a pack fails validation.
	ErrInvalidPack = errors.New("invalid rule pack")
)

// Layer is the plane of reality a rule acts in.
type Layer string

const (
	LayerPhysical Layer = "physical"
	LayerCyber    Layer = "cyber"
	LayerMythic   Layer = "mythic"
)

// Valid reports whether l is one of the known layers.
func (l Layer) Valid() bool {
	switch l {
	case LayerPhysical, LayerCyber, LayerMythic:
		return true
	}
	return false
}

// EffectType tells whether an effect dispatches a command or publishes an event.
type EffectType string

const (
	EffectCommand EffectType = "command"
	EffectEvent   EffectType = "event"
)

// Effect is a command or event fired by a rule outcome. String values in the
// payload are resolved as expressions when the effect fires; strings that do
// not resolve stay literal.
type Effect struct {
	Type    EffectType     `json:"type" yaml:"type" jsonschema:"required,enum=command,enum=event"`
	Name    string         `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Payload map[string]any `json:"payload" yaml:"payload"`
}

// Rule is a data-defined unit of guard conditions, cost/roll/DC and effects.
// Cost, Roll and DC are expression text; empty means absent. DC may be
// written in YAML as a bare integer.
type Rule struct {
	ID          string   `json:"id" yaml:"id" jsonschema:"required,minLength=1"`
	Layer       Layer    `json:"layer" yaml:"layer" jsonschema:"required,enum=physical,enum=cyber,enum=mythic"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	When        []string `json:"when,omitempty" yaml:"when,omitempty" jsonschema:"description=Predicates that must all hold"`
	Cost        string   `json:"cost,omitempty" yaml:"cost,omitempty"`
	Roll        string   `json:"roll,omitempty" yaml:"roll,omitempty"`
	DC          string   `json:"dc,omitempty" yaml:"dc,omitempty" jsonschema:"oneof_type=string;integer"`
	Steps       []string `json:"steps,omitempty" yaml:"steps,omitempty" jsonschema:"description=Assignments run after success and before effects"`
	OnSuccess   []Effect `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	OnFailure   []Effect `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
}

// RulePack is the unit of content loading.
type RulePack struct {
	PackID      string `json:"pack_id" yaml:"pack_id" jsonschema:"required,minLength=1"`
	Version     int    `json:"version" yaml:"version" jsonschema:"required,minimum=1"`
	EngineMin   string `json:"engine_min" yaml:"engine_min" jsonschema:"required"`
	Namespace   string `json:"namespace" yaml:"namespace" jsonschema:"required,minLength=1"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []Rule `json:"rules" yaml:"rules" jsonschema:"required"`
}

// Key is the registry key of a rule in this pack.
func (p *RulePack) Key(r Rule) string {
	return p.Namespace + "." + r.ID
}

// Registry maps "namespace.id" to rules. Register every pack before sharing
// the registry; reads need no locking afterwards.
type Registry struct {
	rules map[string]*Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: map[string]*Rule{}}
}

// RegisterPack adds every rule of p. Nothing is registered when any key
// collides, either with an existing rule or within the pack.
func (r *Registry) RegisterPack(p *RulePack) error {
	seen := map[string]bool{}
	for _, rule := range p.Rules {
		key := p.Key(rule)
		if _, ok := r.rules[key]; ok || seen[key] {
			return fmt.Errorf("%w: %s", ErrDuplicateRuleID, key)
		}
		seen[key] = true
	}
	for _, rule := range p.Rules {
		stored := rule.clone()
		r.rules[p.Key(rule)] = &stored
	}
	return nil
}

// Get returns a copy of the rule registered under key. Changing it does not
// change the registry.
func (r *Registry) Get(key string) (*Rule, error) {
	rule, ok := r.rules[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, key)
	}
	c := rule.clone()
	return &c, nil
}

// All returns copies of every registered rule by key.
func (r *Registry) All() map[string]*Rule {
	out := make(map[string]*Rule, len(r.rules))
	for k, v := range r.rules {
		c := v.clone()
		out[k] = &c
	}
	return out
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// clone deep-copies the rule, including effect payloads.
func (r Rule) clone() Rule {
	out := r
	out.When = cloneStrings(r.When)
	out.Steps = cloneStrings(r.Steps)
	out.OnSuccess = cloneEffects(r.OnSuccess)
	out.OnFailure = cloneEffects(r.OnFailure)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneEffects(in []Effect) []Effect {
	if in == nil {
		return nil
	}
	out := make([]Effect, len(in))
	for i, e := range in {
		out[i] = Effect{Type: e.Type, Name: e.Name}
		if e.Payload != nil {
			out[i].Payload = cloneValue(e.Payload).(map[string]any)
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
