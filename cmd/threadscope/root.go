package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/threaddump"
)

// app holds state shared by every command.
type app struct {
	logger    *logrus.Logger
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{logger: logrus.New()}

	root := &cobra.Command{
		Use:           "threadscope",
		Short:         "Capture and analyze thread stack samples",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configureLogging(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format (text or json)")

	root.AddCommand(
		newImportCmd(a),
		newSampleCmd(a),
		newCatCmd(a),
		newStatsCmd(a),
		newBaselinesCmd(a),
		newFlameCmd(a),
		newBenchCmd(a),
		newMCPCmd(a),
	)
	return root
}

func (a *app) configureLogging(w io.Writer) error {
	level, err := logrus.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(w)
	switch a.logFormat {
	case "text":
		a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		a.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid --log-format %q (want text or json)", a.logFormat)
	}
	return nil
}

// parseDumpFiles parses one text dump per file. Files without a valid
// header are skipped with a warning.
func (a *app) parseDumpFiles(paths []string, loc *time.Location) ([]*threaddump.Dump, error) {
	var dumps []*threaddump.Dump
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		d := threaddump.Parse(f, loc)
		f.Close()

		log := a.logger.WithField("file", path)
		if !d.IsValid() {
			log.WithError(d.Err).Warn("Not a thread dump, skipping")
			continue
		}
		if d.Err != nil {
			log.WithError(d.Err).Warn("Dump cut short")
		}
		for _, line := range d.Unparsed {
			log.WithField("line", line).Debug("Unparsed line")
		}
		log.WithFields(logrus.Fields{
			"threads":  len(d.Threads),
			"unparsed": len(d.Unparsed),
		}).Info("Parsed dump")
		dumps = append(dumps, d)
	}
	return dumps, nil
}
