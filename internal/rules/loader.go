package rules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/suderio/baator/internal/expr"
)

// DecodePack reads one YAML pack from r and validates it.
func DecodePack(r io.Reader) (*RulePack, error) {
	var p RulePack
	if err := yaml.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPack reads and validates the pack at path.
func LoadPack(path string) (*RulePack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule pack %s: %w", path, err)
	}
	defer f.Close()

	p, err := DecodePack(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks required fields, enumerations and that every guard, cost,
// roll, DC and step compiles. Effect payload strings are not checked since
// they may be plain labels.
func (p *RulePack) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.PackID == "" {
		bad("missing pack field: pack_id")
	}
	if p.Version < 1 {
		bad("missing pack field: version")
	}
	if p.EngineMin == "" {
		bad("missing pack field: engine_min")
	}
	if p.Namespace == "" {
		bad("missing pack field: namespace")
	}
	if p.Rules == nil {
		bad("missing pack field: rules")
	}

	for i, r := range p.Rules {
		where := fmt.Sprintf("rules[%d]", i)
		if r.ID == "" {
			bad("%s: missing rule field: id", where)
		} else {
			where = r.ID
		}
		if !r.Layer.Valid() {
			bad("%s: layer %q must be physical|cyber|mythic", where, r.Layer)
		}

		check := func(field, src string) {
			if src == "" {
				return
			}
			if _, err := expr.Compile(src); err != nil {
				errs = append(errs, fmt.Errorf("%s: %s: %w", where, field, err))
			}
		}
		for j, w := range r.When {
			check(fmt.Sprintf("when[%d]", j), w)
		}
		check("cost", r.Cost)
		check("roll", r.Roll)
		check("dc", r.DC)
		for j, s := range r.Steps {
			if _, err := expr.CompileStep(s); err != nil {
				errs = append(errs, fmt.Errorf("%s: steps[%d]: %w", where, j, err))
			}
		}

		for j, e := range r.OnSuccess {
			validateEffect(fmt.Sprintf("%s: on_success[%d]", where, j), e, bad)
		}
		for j, e := range r.OnFailure {
			validateEffect(fmt.Sprintf("%s: on_failure[%d]", where, j), e, bad)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPack, errors.Join(errs...))
}

func validateEffect(where string, e Effect, bad func(string, ...any)) {
	if e.Type != EffectCommand && e.Type != EffectEvent {
		bad("%s: effect.type %q must be command|event", where, e.Type)
	}
	if e.Name == "" {
		bad("%s: missing effect field: name", where)
	}
}

// Loader finds packs across a list of content directories, first match wins.
type Loader struct {
	dirs []string
}

// NewLoader creates a Loader searching dirs in order.
func NewLoader(dirs []string) *Loader {
	return &Loader{dirs: dirs}
}

// Load resolves ref as a path, or as a name inside one of the content
// directories with or without a .yaml extension.
func (l *Loader) Load(ref string) (*RulePack, error) {
	if _, err := os.Stat(ref); err == nil {
		return LoadPack(ref)
	}
	candidates := []string{ref}
	if !strings.HasSuffix(ref, ".yaml") && !strings.HasSuffix(ref, ".yml") {
		candidates = append(candidates, ref+".yaml", ref+".yml")
	}
	for _, dir := range l.dirs {
		for _, c := range candidates {
			path := filepath.Join(dir, c)
			if _, err := os.Stat(path); err == nil {
				return LoadPack(path)
			}
		}
	}
	return nil, fmt.Errorf("could not find rule pack %s in any content directory", ref)
}

// LoadAll loads every pack in refs into a new registry.
func (l *Loader) LoadAll(refs ...string) (*Registry, error) {
	reg := NewRegistry()
	for _, ref := range refs {
		p, err := l.Load(ref)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterPack(p); err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
	}
	return reg, nil
}
