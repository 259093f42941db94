// Package sim drives turn-based scenes through the rules engine.
package sim

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownParticipant is returned when an id names nobody in the scene.
var ErrUnknownParticipant = errors.New("unknown participant")

// Participant is one combatant. Stats holds whatever else rules read, such
// as per-layer values; HP and Power are first class because the simulator
// itself changes HP.
type Participant struct {
	ID    string         `json:"id" yaml:"id"`
	Name  string         `json:"name" yaml:"name"`
	HP    int            `json:"hp" yaml:"hp"`
	MaxHP int            `json:"max_hp,omitempty" yaml:"max_hp,omitempty"`
	Power int            `json:"power" yaml:"power"`
	Stats map[string]any `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// Project flattens the participant into the map rules see as attacker or
// defender. Named fields win over stats with the same key.
func (p *Participant) Project() map[string]any {
	out := make(map[string]any, len(p.Stats)+5)
	for k, v := range p.Stats {
		out[k] = v
	}
	out["id"] = p.ID
	out["name"] = p.Name
	out["hp"] = p.HP
	out["max_hp"] = p.MaxHP
	out["power"] = p.Power
	return out
}

// Scene owns participant state and the turn order. It is not safe for
// concurrent ticks.
type Scene struct {
	ID           string         `json:"id" yaml:"id"`
	Env          map[string]any `json:"env,omitempty" yaml:"env,omitempty"`
	Participants []*Participant `json:"participants" yaml:"participants"`

	order []string
	round int
}

// NewScene builds a scene whose turn order follows the participant list.
func NewScene(id string, env map[string]any, participants ...*Participant) (*Scene, error) {
	s := &Scene{ID: id, Env: env, Participants: participants}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScene reads a scene from a YAML file.
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene %s: %w", path, err)
	}
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scene %s: %w", path, err)
	}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

func (s *Scene) init() error {
	if s.ID == "" {
		return fmt.Errorf("scene id is required")
	}
	seen := map[string]bool{}
	s.order = s.order[:0]
	for _, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("participant without id in scene %s", s.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate participant %s in scene %s", p.ID, s.ID)
		}
		seen[p.ID] = true
		if p.MaxHP == 0 {
			p.MaxHP = p.HP
		}
		s.order = append(s.order, p.ID)
	}
	if s.Env == nil {
		s.Env = map[string]any{}
	}
	s.round = 1
	return nil
}

// Participant returns the participant with id.
func (s *Scene) Participant(id string) (*Participant, error) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
}

// Order lists the ids still taking turns.
func (s *Scene) Order() []string {
	return append([]string(nil), s.order...)
}

// Round is the 1-based number of the next tick.
func (s *Scene) Round() int { return s.round }

func (s *Scene) remove(id string) {
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
