package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/baseline"
	"github.com/danpilch/threadscope/pkg/output"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		format  string
		top     int
		threads int
		score   bool
		trend   int
		save    string
		compare string
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "stats <capture>",
		Short: "Summarize a capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			in, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			sum, err := output.Summarize(in, output.SummaryOptions{TopFrames: top, TopThreads: threads})
			if err != nil {
				return err
			}
			a.logger.WithField("records", sum.Records).Debug("Capture summarized")

			formatter := output.NewFormatter(f, cmd.OutOrStdout())
			formatter.SetShowScore(score)
			formatter.SetCapturePath(args[0])
			if trend > 0 {
				formatter.SetSparklineTracker(output.NewSparklineTracker(trend))
			}
			if err := formatter.Render(sum); err != nil {
				return err
			}

			if compare != "" {
				base, err := baseline.Load(compare, dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				baseline.RenderComparison(cmd.OutOrStdout(), base, baseline.Compare(base, sum))
			}
			if save != "" {
				if err := baseline.NewBaseline(save, args[0], sum).Save(dir); err != nil {
					return err
				}
				a.logger.WithField("baseline", save).Info("Baseline saved")
			}
			return nil
		},
	}
	defaults := output.DefaultSummaryOptions()
	cmd.Flags().StringVar(&format, "format", string(output.FormatTable), "output format (table, json, ai, tsv)")
	cmd.Flags().IntVar(&top, "top", defaults.TopFrames, "number of hot frames to list")
	cmd.Flags().IntVar(&threads, "threads", defaults.TopThreads, "number of threads to list")
	cmd.Flags().BoolVar(&score, "score", false, "show the contention health score")
	cmd.Flags().IntVar(&trend, "trend", 20, "CPU sparkline window in records (0 disables)")
	cmd.Flags().StringVar(&save, "save-baseline", "", "save this summary as a named baseline")
	cmd.Flags().StringVar(&compare, "baseline", "", "compare against a saved baseline")
	cmd.Flags().StringVar(&dir, "baseline-dir", "", "baseline directory (default ~/.threadscope/baselines)")
	return cmd
}
