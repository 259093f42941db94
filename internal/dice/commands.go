package dice

import (
	"fmt"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/expr"
)

// Command names handled by the service.
const (
	CommandRollExpr      = "dice.roll_expr"
	CommandRollAdv       = "dice.roll_adv"
	CommandRollDis       = "dice.roll_dis"
	CommandResolveNumber = "dice.resolve_number"
)

// Register installs the service's command handlers on cb.
//
//	dice.roll_expr       {expr, meta?}
//	dice.roll_adv        {sides, meta?}
//	dice.roll_dis        {sides, meta?}
//	dice.resolve_number  {expr, ctx?, request_id?, meta?}  publishes dice.resolved
func (s *Service) Register(cb *bus.CommandBus) error {
	handlers := map[string]bus.CommandHandler{
		CommandRollExpr: func(c bus.Command) error {
			src, err := stringField(c, "expr")
			if err != nil {
				return err
			}
			_, err = s.ResolveNumber("", src, expr.MustContext(nil), meta(c))
			return err
		},
		CommandRollAdv: func(c bus.Command) error {
			sides, err := intField(c, "sides")
			if err != nil {
				return err
			}
			_, err = s.Advantage(sides, meta(c))
			return err
		},
		CommandRollDis: func(c bus.Command) error {
			sides, err := intField(c, "sides")
			if err != nil {
				return err
			}
			_, err = s.Disadvantage(sides, meta(c))
			return err
		},
		CommandResolveNumber: s.handleResolveNumber,
	}
	for _, name := range []string{CommandRollExpr, CommandRollAdv, CommandRollDis, CommandResolveNumber} {
		if err := cb.Register(name, handlers[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleResolveNumber(c bus.Command) error {
	src, err := stringField(c, "expr")
	if err != nil {
		return err
	}
	var ctx *expr.Context
	switch raw := c.Payload["ctx"].(type) {
	case nil:
		ctx = expr.MustContext(nil)
	case *expr.Context:
		ctx = raw
	case map[string]any:
		if ctx, err = expr.NewContext(raw); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: ctx must be a mapping, got %T", c.Name, raw)
	}
	id, _ := c.Payload["request_id"].(string)

	prov := meta(c)
	res, err := s.Resolve(Request{ID: id, Expr: src, Context: ctx, Mode: expr.ModeNumber, Provenance: prov})
	if err != nil {
		return err
	}
	s.emit(EventResolved, map[string]any{"request_id": res.RequestID, "expr": src, "result": res.Int()}, prov)
	return nil
}

func meta(c bus.Command) bus.Provenance {
	switch m := c.Payload["meta"].(type) {
	case bus.Provenance:
		return m
	case map[string]any:
		return bus.Provenance(m)
	}
	return nil
}

func stringField(c bus.Command, key string) (string, error) {
	v, ok := c.Payload[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: missing %q", c.Name, key)
	}
	return v, nil
}

func intField(c bus.Command, key string) (int, error) {
	switch v := c.Payload[key].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("%s: missing integer %q", c.Name, key)
}
