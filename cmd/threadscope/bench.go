package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/benchmark"
	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

func newBenchCmd(a *app) *cobra.Command {
	opts := benchmark.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "bench <capture>",
		Short: "Benchmark capture encoding settings on a real capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			var records []*snapshot.ThreadSnapshot
			for {
				s, err := in.Next()
				if err != nil {
					if errors.Is(err, io.EOF) {
						break
					}
					in.Close()
					return err
				}
				records = append(records, s)
			}
			in.Close()
			a.logger.WithField("records", len(records)).Info("Capture loaded for benchmark")

			results, err := benchmark.Run(records, benchmark.DefaultConfigs(), opts)
			if err != nil {
				return err
			}
			benchmark.RenderResults(cmd.OutOrStdout(), results, benchmark.MeasureOverhead())
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "measured runs per configuration")
	cmd.Flags().IntVar(&opts.Warmup, "warmup", opts.Warmup, "unmeasured runs per configuration")
	return cmd
}
