package main

import (
	"bufio"
	"time"

	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/debug"
	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/threaddump"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

const catDescription = "threadscope capture"

func newCatCmd(a *app) *cobra.Command {
	var rawCounters bool
	cmd := &cobra.Command{
		Use:   "cat <capture>",
		Short: "Print a capture as text thread dumps",
		Long: `Print a capture as text thread dumps.

Records sharing a timestamp are grouped under one dump header, so the output
can be imported again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			var (
				lastTS int64 = snapshot.Absent
				opened bool
				raw    []*snapshot.ThreadSnapshot
			)
			for {
				ok, err := in.LoadNext()
				if err != nil {
					out.Flush()
					return err
				}
				if !ok {
					break
				}
				s := in.Snapshot()
				if !opened || s.Timestamp != lastTS {
					ts := time.Time{}
					if s.Timestamp != snapshot.Absent {
						ts = time.UnixMilli(s.Timestamp)
					}
					if err := threaddump.WriteHeader(out, ts, catDescription); err != nil {
						return err
					}
					lastTS, opened = s.Timestamp, true
				}
				if err := threaddump.WriteThread(out, s); err != nil {
					return err
				}
				if rawCounters {
					raw = append(raw, s)
				}
			}
			if rawCounters {
				debug.DumpRawCounters(out, raw)
			}
			a.logger.WithField("records", in.Records()).Debug("Capture printed")
			return out.Flush()
		},
	}
	cmd.Flags().BoolVar(&rawCounters, "raw-counters", false, "append a table of every counter value")
	return cmd
}
