package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/dice"
	"github.com/suderio/baator/internal/expr"
)

var rollCmd = &cobra.Command{
	Use:   "roll <expr>",
	Short: "Roll a dice expression",
	Long: `Rolls a dice or mixed arithmetic expression and prints every dice term.

Examples:
  baator roll 2d6+3
  baator roll "4d6kh3"
  baator roll "1d20 + attacker.str" --ctx hero.yaml
  baator roll --adv 20`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		adv, _ := cmd.Flags().GetInt("adv")
		dis, _ := cmd.Flags().GetInt("dis")
		asJSON, _ := cmd.Flags().GetBool("json")
		ctxPath, _ := cmd.Flags().GetString("ctx")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()

		prov := bus.Provenance{"source": "cli"}
		switch {
		case adv > 0:
			v, err := a.dice.Advantage(adv, prov)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "2d%dkh1 = %d\n", adv, v)
			return nil
		case dis > 0:
			v, err := a.dice.Disadvantage(dis, prov)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "2d%dkl1 = %d\n", dis, v)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("roll needs an expression, --adv or --dis")
		}

		ctx, err := loadContext(ctxPath)
		if err != nil {
			return err
		}
		res, err := a.dice.Resolve(dice.Request{Expr: args[0], Context: ctx, Mode: expr.ModeNumber, Provenance: prov})
		if err != nil {
			return err
		}

		if asJSON {
			data, err := json.MarshalIndent(map[string]any{"expr": args[0], "result": res.Value, "rolls": res.Rolls}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		for _, r := range res.Rolls {
			fmt.Fprintln(out, formatRoll(r))
		}
		fmt.Fprintf(out, "%s = %d\n", args[0], res.Int())
		return nil
	},
}

func formatRoll(r expr.RollDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s: faces %v", r.Expression, r.Faces)
	if len(r.Dropped) > 0 {
		fmt.Fprintf(&b, " kept %v dropped %v", r.Kept, r.Dropped)
	}
	if len(r.Rerolled) > 0 {
		fmt.Fprintf(&b, " rerolled %v", r.Rerolled)
	}
	if r.Modifier != 0 {
		fmt.Fprintf(&b, " %+d", r.Modifier)
	}
	fmt.Fprintf(&b, " -> %d", r.Result)
	return b.String()
}

func init() {
	rollCmd.Flags().Int("adv", 0, "roll with advantage on a die with this many sides")
	rollCmd.Flags().Int("dis", 0, "roll with disadvantage on a die with this many sides")
	rollCmd.Flags().Bool("json", false, "print the roll detail as JSON")
	rollCmd.Flags().String("ctx", "", "YAML file with the evaluation context")
	rootCmd.AddCommand(rollCmd)
}
