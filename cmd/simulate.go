package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suderio/baator/internal/rules"
	"github.com/suderio/baator/internal/sim"
	"github.com/suderio/baator/internal/trace"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <pack> <scene.yaml>",
	Short: "Run a scene turn by turn with one rule",
	Long: `Loads a rule pack and a scene, then alternates attacker and defender
through the scene order, applying the chosen rule each tick until one
participant remains or the tick budget runs out.

Examples:
  baator simulate core content/scenes/duel.yaml --rule core.mana_bolt
  baator simulate core duel.yaml --ticks 20 --trace duel.jsonl`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleKey, _ := cmd.Flags().GetString("rule")
		ticks, _ := cmd.Flags().GetInt("ticks")
		tracePath, _ := cmd.Flags().GetString("trace")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := rules.NewLoader(a.cfg.Content.Dirs).Load(args[0])
		if err != nil {
			return err
		}
		reg := rules.NewRegistry()
		if err := reg.RegisterPack(p); err != nil {
			return err
		}
		rule, err := pickRule(reg, p, ruleKey)
		if err != nil {
			return err
		}

		scene, err := sim.LoadScene(args[1])
		if err != nil {
			return err
		}

		if tracePath != "" {
			store, err := trace.NewStore(tracePath)
			if err != nil {
				return err
			}
			rec := trace.NewRecorder(store, a.log)
			rec.Attach(a.events)
			defer func() {
				// drain queued events into the store before closing it
				a.events.Stop()
				rec.Detach()
				store.Close()
			}()
		}

		s, err := sim.New(a.engine, a.events, a.commands, sim.WithLogger(a.log))
		if err != nil {
			return err
		}
		defer s.Close()

		if ticks <= 0 {
			ticks = a.cfg.Sim.MaxTicks
		}
		outcome := s.Run(scene, rule, ticks)

		out := cmd.OutOrStdout()
		if asJSON {
			data, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		for _, e := range outcome.Log {
			fmt.Fprintln(out, formatEntry(e))
		}
		if outcome.Winner == "" {
			fmt.Fprintf(out, "no winner after %d ticks\n", outcome.Ticks)
		}
		return nil
	},
}

// pickRule accepts a full key, a bare id within the pack namespace, or
// nothing for the first rule of the pack.
func pickRule(reg *rules.Registry, p *rules.RulePack, key string) (*rules.Rule, error) {
	if key == "" {
		if len(p.Rules) == 0 {
			return nil, fmt.Errorf("pack %s has no rules", p.PackID)
		}
		return reg.Get(p.Key(p.Rules[0]))
	}
	if !strings.Contains(key, ".") {
		key = p.Namespace + "." + key
	}
	return reg.Get(key)
}

func formatEntry(e sim.Entry) string {
	switch e.Event {
	case "attack":
		outcome := "miss"
		if e.Success != nil && *e.Success {
			outcome = "hit"
		}
		if e.Reason != "" {
			outcome = e.Reason
		}
		return fmt.Sprintf("tick %d: %s -> %s %s (hp %d)", e.Tick, e.Attacker, e.Defender, outcome, *e.HP)
	case "downed":
		return fmt.Sprintf("tick %d: %s is down", e.Tick, e.Actor)
	case "scene_end":
		return fmt.Sprintf("tick %d: %s wins", e.Tick, e.Winner)
	default:
		return fmt.Sprintf("tick %d: %s", e.Tick, e.Event)
	}
}

func init() {
	simulateCmd.Flags().String("rule", "", "rule key or id to apply each tick (default: first rule of the pack)")
	simulateCmd.Flags().Int("ticks", 0, "tick budget (default: sim.max_ticks)")
	simulateCmd.Flags().String("trace", "", "append diagnostic events to this JSONL file")
	simulateCmd.Flags().Bool("json", false, "print the outcome as JSON")
	rootCmd.AddCommand(simulateCmd)
}
