package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/tracefile"
)

type captureFlags struct {
	output string
	snappy bool
	dict   int
}

func (c *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.output, "output", "o", "", "capture file to write")
	cmd.Flags().BoolVar(&c.snappy, "snappy", false, "snappy-compress the capture")
	cmd.Flags().IntVar(&c.dict, "dict", tracefile.DefaultWriterOptions().DictionaryCapacity, "symbol dictionary capacity")
	cmd.MarkFlagRequired("output")
}

func (c *captureFlags) create() (*tracefile.FileWriter, error) {
	opts := tracefile.DefaultWriterOptions()
	opts.DictionaryCapacity = c.dict
	if c.snappy {
		opts.Compression = tracefile.CompressionSnappy
	}
	return tracefile.Create(c.output, opts)
}

func newImportCmd(a *app) *cobra.Command {
	var (
		capture captureFlags
		tz      string
	)
	cmd := &cobra.Command{
		Use:   "import <dump.txt>...",
		Short: "Convert text thread dumps into a capture file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid --tz: %w", err)
			}
			dumps, err := a.parseDumpFiles(args, loc)
			if err != nil {
				return err
			}
			if len(dumps) == 0 {
				return errors.New("no valid thread dump in input")
			}

			w, err := capture.create()
			if err != nil {
				return err
			}
			var unparsed int
			for _, d := range dumps {
				unparsed += len(d.Unparsed)
				for _, s := range d.Snapshots() {
					if err := w.Write(s); err != nil {
						w.Close()
						return err
					}
				}
			}
			if err := w.Close(); err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"dumps":    len(dumps),
				"records":  w.Records(),
				"unparsed": unparsed,
				"output":   capture.output,
			}).Info("Import complete")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records from %d dumps to %s\n", w.Records(), len(dumps), capture.output)
			return nil
		},
	}
	capture.register(cmd)
	cmd.Flags().StringVar(&tz, "tz", "Local", "time zone of the dump timestamps")
	return cmd
}
