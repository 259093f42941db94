package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suderio/baator/internal/config"
	"github.com/suderio/baator/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule packs",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <pack> [pack...]",
	Short: "Validate rule packs",
	Long:  `Loads every pack, checks required fields and enumerations and compiles every expression it carries. Packs are searched in content.dirs when not given as a path.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := packLoader()
		if err != nil {
			return err
		}
		reg := rules.NewRegistry()
		for _, ref := range args {
			p, err := loader.Load(ref)
			if err != nil {
				return err
			}
			if err := reg.RegisterPack(p); err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s v%d (%d rules)\n", p.PackID, p.Version, len(p.Rules))
		}
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list <pack> [pack...]",
	Short: "List the rules registered by packs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := packLoader()
		if err != nil {
			return err
		}
		reg, err := loader.LoadAll(args...)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tLAYER\tROLL\tDC\tDESCRIPTION")
		for _, key := range reg.Keys() {
			r, _ := reg.Get(key)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", key, r.Layer, dash(r.Roll), dash(r.DC), r.Description)
		}
		return w.Flush()
	},
}

var rulesSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the rule pack format",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := rules.SchemaJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func packLoader() (*rules.Loader, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return rules.NewLoader(cfg.Content.Dirs), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd, rulesListCmd, rulesSchemaCmd)
	rootCmd.AddCommand(rulesCmd)
}
