package main

import (
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/baseline"
)

func newBaselinesCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "List saved capture baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := baseline.List(dir)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.Err != nil {
					a.logger.WithField("baseline", e.Name).WithError(e.Err).Warn("Skipping unreadable baseline")
				}
			}
			baseline.RenderList(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "baseline-dir", "", "baseline directory (default ~/.threadscope/baselines)")
	return cmd
}
