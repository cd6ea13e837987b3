package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/debug"
	"github.com/danpilch/threadscope/pkg/sampler"
)

func newSampleCmd(a *app) *cobra.Command {
	var (
		capture  captureFlags
		dumps    []string
		self     bool
		pid      int
		tz       string
		interval time.Duration
		count    int
		filter   string
		prime    bool
		counters string
		timing   bool
		pprof    string
		trace    bool
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample threads into a capture file",
		Long: `Sample threads into a capture file.

With --dumps the sampler replays text thread dumps, one per tick. With --self
it samples the goroutines of this process. Counters are read from the
/proc task entries named by the dumps' native thread ids, so --counters
needs --dumps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(dumps) > 0) == self {
				return errors.New("exactly one of --dumps or --self is required")
			}
			if self && counters != "" {
				// goroutines have no OS thread of their own to read counters from
				return errors.New("--counters cannot be used with --self")
			}

			var src sampler.ThreadSource
			if self {
				src = sampler.NewRuntimeSource()
			} else {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("invalid --tz: %w", err)
				}
				parsed, err := a.parseDumpFiles(dumps, loc)
				if err != nil {
					return err
				}
				src = sampler.NewDumpSource(parsed...)
			}

			if pid == 0 {
				pid = os.Getpid()
			}
			collectors, err := sampler.DefaultRegistry(pid).Select(counters)
			if err != nil {
				return err
			}
			var timed []*debug.TimedCollector
			if timing {
				collectors, timed = debug.WrapAll(collectors)
			}

			if pprof != "" {
				stop, err := debug.StartPprofServer(pprof, a.logger)
				if err != nil {
					return err
				}
				defer stop()
			}

			w, err := capture.create()
			if err != nil {
				return err
			}
			var out sampler.Writer = w
			if trace {
				out = debug.NewTraceWriter(cmd.ErrOrStderr(), w)
			}

			opts := sampler.DefaultOptions()
			opts.ThreadFilter = filter
			opts.Collectors = collectors
			opts.Interval = interval
			opts.Ticks = count
			s, err := sampler.New(src, out, opts, a.logger)
			if err != nil {
				w.Close()
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if prime {
				if err := s.Prime(ctx); err != nil {
					w.Close()
					return err
				}
			}
			runErr := s.Run(ctx)
			if err := errors.Join(runErr, w.Close()); err != nil {
				return err
			}

			a.logger.WithFields(logrus.Fields{
				"ticks":   s.Ticks(),
				"records": s.Written(),
				"output":  capture.output,
			}).Info("Sampling complete")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records in %d ticks to %s\n", s.Written(), s.Ticks(), capture.output)
			if timing {
				debug.TimingReport(cmd.ErrOrStderr(), debug.Timings(timed))
			}
			return nil
		},
	}
	capture.register(cmd)
	f := cmd.Flags()
	f.StringSliceVar(&dumps, "dumps", nil, "text thread dumps to replay, one per tick")
	f.BoolVar(&self, "self", false, "sample this process's goroutines")
	f.IntVar(&pid, "pid", 0, "process whose /proc entries the counters read (default: this process)")
	f.StringVar(&tz, "tz", "Local", "time zone of the dump timestamps")
	f.DurationVar(&interval, "interval", time.Second, "time between ticks")
	f.IntVar(&count, "count", 0, "stop after this many ticks (0 runs until interrupted)")
	f.StringVar(&filter, "filter", "", "regular expression on thread names")
	f.BoolVar(&prime, "prime", false, "fix the sampled thread set at start")
	f.StringVar(&counters, "counters", "", "comma separated counters to collect (cpu, user)")
	f.BoolVar(&timing, "timing", false, "print collector timings when done")
	f.StringVar(&pprof, "pprof", "", "serve net/http/pprof on this address while sampling")
	f.BoolVar(&trace, "trace", false, "log every written record to stderr")
	return cmd
}
