package sim

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/expr"
	"github.com/suderio/baator/internal/rules"
)

// Events published by the simulator.
const (
	EventTurn       = "sim.turn"
	EventTraceBegin = "sim.trace.begin"
	EventTraceEnd   = "sim.trace.end"
	EventDowned     = "sim.downed"
	EventSceneEnd   = "sim.scene_end"
)

// Commands the simulator handles. Their payload carries a target, which is
// "attacker", "defender" or a participant id, and an integer amount.
const (
	CommandDamage = "combat.damage"
	CommandHeal   = "combat.heal"
)

// Entry is one line of the tick log.
type Entry struct {
	Tick     int    `json:"tick"`
	Event    string `json:"event"`
	Attacker string `json:"attacker,omitempty"`
	Defender string `json:"defender,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Winner   string `json:"winner,omitempty"`
	HP       *int   `json:"defender_hp,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Outcome summarizes a finished run.
type Outcome struct {
	Ticks  int     `json:"ticks"`
	Winner string  `json:"winner,omitempty"`
	Log    []Entry `json:"log"`
}

// Simulator applies one rule per tick, alternating attacker and defender
// through the scene order.
type Simulator struct {
	engine   *rules.Engine
	events   bus.Bus
	commands *bus.CommandBus
	log      logrus.FieldLogger

	scene    *Scene
	attacker *Participant
	defender *Participant
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the simulator logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Simulator) { s.log = l }
}

// New creates a simulator and registers its damage and heal handlers on
// commands.
func New(engine *rules.Engine, events bus.Bus, commands *bus.CommandBus, opts ...Option) (*Simulator, error) {
	s := &Simulator{engine: engine, events: events, commands: commands}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	if err := commands.Register(CommandDamage, s.handleHP(-1)); err != nil {
		return nil, err
	}
	if err := commands.Register(CommandHeal, s.handleHP(1)); err != nil {
		commands.Unregister(CommandDamage)
		return nil, err
	}
	return s, nil
}

// Close unregisters the command handlers.
func (s *Simulator) Close() {
	s.commands.Unregister(CommandDamage)
	s.commands.Unregister(CommandHeal)
}

// Run ticks scene with rule until one participant remains or maxTicks
// ticks have run.
func (s *Simulator) Run(scene *Scene, rule *rules.Rule, maxTicks int) Outcome {
	var out Outcome
	if len(scene.order) < 2 {
		out.Log = append(out.Log, Entry{Tick: 0, Event: "insufficient_actors"})
		return out
	}
	for out.Ticks < maxTicks {
		entries, done := s.Tick(scene, rule)
		out.Ticks++
		out.Log = append(out.Log, entries...)
		if done {
			if len(scene.order) == 1 {
				out.Winner = scene.order[0]
			}
			return out
		}
	}
	s.publish(EventSceneEnd, map[string]any{"scene_id": scene.ID, "round": scene.round, "winner": nil, "reason": "tick_budget"})
	return out
}

// Tick runs one turn. It reports true when the scene has ended.
//
//  1. Pick attacker order[turn%n] and defender order[(turn+1)%n].
//  2. Project both into the rule context with the scene env.
//  3. Apply the rule; its effects change HP through the command handlers.
//  4. Remove downed participants and end the scene when one is left.
func (s *Simulator) Tick(scene *Scene, rule *rules.Rule) ([]Entry, bool) {
	tick := scene.round
	n := len(scene.order)
	if n < 2 {
		return nil, true
	}

	// 1. Pick the pair
	turn := tick - 1
	atk, _ := scene.Participant(scene.order[turn%n])
	dfd, _ := scene.Participant(scene.order[(turn+1)%n])

	s.publish(EventTurn, map[string]any{
		"scene_id": scene.ID, "round": tick, "actor": atk.Name, "actor_id": atk.ID,
	})

	// 2. Build context
	ctx, err := expr.NewContext(map[string]any{
		"attacker": atk.Project(),
		"defender": dfd.Project(),
		"actor":    atk.Project(),
		"target":   dfd.Project(),
		"env":      scene.Env,
		"round":    tick,
	})

	// 3. Apply
	var res rules.Result
	s.publish(EventTraceBegin, map[string]any{
		"scene_id": scene.ID, "rule": rule.ID, "actor": atk.Name, "target": dfd.Name, "round": tick,
	})
	if err == nil {
		s.scene, s.attacker, s.defender = scene, atk, dfd
		res, err = s.engine.Apply(rule, ctx, bus.Provenance{
			"actor_id":  atk.ID,
			"target_id": dfd.ID,
			"layer":     string(rule.Layer),
			"source":    "sim",
			"scene_id":  scene.ID,
		})
		s.scene, s.attacker, s.defender = nil, nil, nil
	}
	if err != nil {
		res = rules.Result{RuleID: rule.ID, Applied: false, Reason: rules.ReasonError}
		s.log.WithField("scene_id", scene.ID).WithField("rule_id", rule.ID).WithError(err).Warn("tick failed")
	}
	end := map[string]any{
		"scene_id": scene.ID, "rule": rule.ID, "actor": atk.Name, "target": dfd.Name, "round": tick,
		"applied": res.Applied, "reason": res.Reason, "success": nil, "roll": nil, "dc": nil,
	}
	if res.Success != nil {
		end["success"] = *res.Success
	}
	if res.Roll != nil {
		end["roll"] = *res.Roll
	}
	if res.DC != nil {
		end["dc"] = *res.DC
	}
	if err != nil {
		end["error"] = err.Error()
	}
	s.publish(EventTraceEnd, end)

	hp := dfd.HP
	entries := []Entry{{
		Tick: tick, Event: "attack", Attacker: atk.Name, Defender: dfd.Name,
		HP: &hp, Success: res.Success, Reason: res.Reason,
	}}

	// 4. Downed participants
	for _, id := range scene.Order() {
		p, _ := scene.Participant(id)
		if p.HP > 0 {
			continue
		}
		scene.remove(id)
		entries = append(entries, Entry{Tick: tick, Event: "downed", Actor: p.Name})
		s.publish(EventDowned, map[string]any{"scene_id": scene.ID, "round": tick, "actor": p.Name, "actor_id": p.ID})
	}
	scene.round++

	if len(scene.order) == 1 {
		winner, _ := scene.Participant(scene.order[0])
		entries = append(entries, Entry{Tick: tick, Event: "scene_end", Winner: winner.Name})
		s.publish(EventSceneEnd, map[string]any{"scene_id": scene.ID, "round": tick, "winner": winner.Name, "winner_id": winner.ID})
		return entries, true
	}
	return entries, len(scene.order) == 0
}

// handleHP returns a command handler adding sign*amount to the target's HP.
// HP never drops below zero and never exceeds MaxHP.
func (s *Simulator) handleHP(sign int) bus.CommandHandler {
	return func(c bus.Command) error {
		if s.scene == nil {
			return fmt.Errorf("%s outside a tick", c.Name)
		}
		amount, err := intValue(c.Payload["amount"])
		if err != nil {
			return fmt.Errorf("%s amount: %w", c.Name, err)
		}
		target, err := s.resolveTarget(c.Payload["target"])
		if err != nil {
			return err
		}
		target.HP += sign * amount
		if target.HP < 0 {
			target.HP = 0
		}
		if target.MaxHP > 0 && target.HP > target.MaxHP {
			target.HP = target.MaxHP
		}
		s.log.WithField("target", target.ID).WithField("hp", target.HP).Debug(c.Name)
		return nil
	}
}

func (s *Simulator) resolveTarget(v any) (*Participant, error) {
	ref, _ := v.(string)
	switch ref {
	case "", "defender", "target":
		return s.defender, nil
	case "attacker", "actor", "self":
		return s.attacker, nil
	}
	return s.scene.Participant(ref)
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
}

func (s *Simulator) publish(name string, payload map[string]any) {
	if err := s.events.Publish(bus.NewEvent(name, payload)); err != nil {
		s.log.WithField("event", name).WithError(err).Warn("publish failed")
	}
}
