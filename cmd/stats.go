package cmd

import (
	"fmt"
	"math"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suderio/baator/internal/config"
	"github.com/suderio/baator/internal/expr"
)

var statsCmd = &cobra.Command{
	Use:   "stats <expr> [expr...]",
	Short: "Estimate the distribution of dice expressions",
	Long: `Rolls each expression many times and prints its empirical mean, spread
and range. Rolls bypass the event bus.

Examples:
  baator stats 2d20kh1 2d20kl1
  baator stats "4d6kh3" --trials 100000`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trials, _ := cmd.Flags().GetInt("trials")
		quiet, _ := cmd.Flags().GetBool("quiet")
		ctxPath, _ := cmd.Flags().GetString("ctx")
		if trials < 1 {
			return fmt.Errorf("--trials must be at least 1")
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		ctx, err := loadContext(ctxPath)
		if err != nil {
			return err
		}
		ev := expr.New(expr.WithRNG(cfg.NewRNG()))

		results := make([]summary, 0, len(args))
		for _, src := range args {
			e, err := ev.Compile(src)
			if err != nil {
				return err
			}
			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.Default(int64(trials), src)
			}
			s := summary{expr: src, min: math.MaxInt, max: math.MinInt}
			for i := 0; i < trials; i++ {
				v, err := ev.EvaluateWith(e, ctx, expr.ModeNumber, nil)
				if err != nil {
					return err
				}
				s.add(v.(int))
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			results = append(results, s)
		}

		out := cmd.OutOrStdout()
		for _, s := range results {
			fmt.Fprintf(out, "%-16s mean %.3f  sd %.3f  min %d  max %d\n", s.expr, s.mean(), s.stddev(), s.min, s.max)
		}
		return nil
	},
}

type summary struct {
	expr     string
	n        int
	sum      float64
	sumSq    float64
	min, max int
}

func (s *summary) add(v int) {
	s.n++
	s.sum += float64(v)
	s.sumSq += float64(v) * float64(v)
	if v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
}

func (s summary) mean() float64 { return s.sum / float64(s.n) }

func (s summary) stddev() float64 {
	m := s.mean()
	return math.Sqrt(math.Max(0, s.sumSq/float64(s.n)-m*m))
}

func init() {
	statsCmd.Flags().Int("trials", 10000, "number of rolls per expression")
	statsCmd.Flags().Bool("quiet", false, "hide the progress bar")
	statsCmd.Flags().String("ctx", "", "YAML file with the evaluation context")
	rootCmd.AddCommand(statsCmd)
}
