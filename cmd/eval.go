package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/dice"
	"github.com/suderio/baator/internal/expr"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expr>",
	Short: "Evaluate an expression against a context",
	Long: `Evaluates an expression in number, predicate or auto mode. Dice terms are
rolled through the configured random source.

Examples:
  baator eval "target.hp > 0" --ctx scene.yaml --mode predicate
  baator eval "max(1, attacker.power - 2) * 2" --ctx scene.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctxPath, _ := cmd.Flags().GetString("ctx")
		modeName, _ := cmd.Flags().GetString("mode")

		mode, err := expr.ParseMode(modeName)
		if err != nil {
			return err
		}
		ctx, err := loadContext(ctxPath)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.dice.Resolve(dice.Request{Expr: args[0], Context: ctx, Mode: mode, Provenance: bus.Provenance{"source": "cli"}})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Value)
		return nil
	},
}

// loadContext reads a YAML mapping into an evaluation context. An empty path
// yields an empty context.
func loadContext(path string) (*expr.Context, error) {
	if path == "" {
		return expr.NewContext(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context %s: %w", path, err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse context %s: %w", path, err)
	}
	return expr.NewContext(m)
}

func init() {
	evalCmd.Flags().String("ctx", "", "YAML file with the evaluation context")
	evalCmd.Flags().String("mode", "auto", "evaluation mode: auto, number or predicate")
	rootCmd.AddCommand(evalCmd)
}
