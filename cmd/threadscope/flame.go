package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/danpilch/threadscope/pkg/flamegraph"
	"github.com/danpilch/threadscope/pkg/snapshot"
	"github.com/danpilch/threadscope/pkg/tracefile"
)

func newFlameCmd(a *app) *cobra.Command {
	var (
		svgOut     string
		jsonOut    string
		foldedOut  string
		width      int
		filter     string
		states     []string
		weight     string
		scheme     string
		title      string
		categories []string
	)
	cmd := &cobra.Command{
		Use:   "flame <capture>",
		Short: "Aggregate a capture into a flame graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if svgOut == "" && jsonOut == "" && foldedOut == "" {
				return errors.New("nothing to write: give -o, --json or --folded")
			}
			if width <= 0 {
				return fmt.Errorf("invalid --width %d", width)
			}
			calc, err := flamegraph.ParseWeight(weight)
			if err != nil {
				return err
			}

			var preds []snapshot.Predicate
			if filter != "" {
				re, err := regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("invalid --filter: %w", err)
				}
				preds = append(preds, snapshot.ThreadNameMatches(re))
			}
			if len(states) > 0 {
				var want []snapshot.ThreadState
				for _, name := range states {
					st, ok := snapshot.ParseThreadState(name)
					if !ok {
						return fmt.Errorf("invalid --state %q", name)
					}
					want = append(want, st)
				}
				preds = append(preds, snapshot.InStates(want...))
			}

			opts := flamegraph.DefaultSVGOptions()
			opts.Width = width
			opts.ColorScheme = scheme
			if title != "" {
				opts.Title = title
			}
			if weight != "" && weight != "samples" {
				opts.Unit = weight
			}
			if len(categories) > 0 {
				colors := flamegraph.CategoryColors{Fallback: flamegraph.HashColors{Scheme: scheme}}
				for _, c := range categories {
					cat, err := flamegraph.ParseCategory(c)
					if err != nil {
						return err
					}
					colors.Categories = append(colors.Categories, cat)
				}
				opts.Colors = colors
			}

			in, err := tracefile.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			var src snapshot.Source = in
			if len(preds) > 0 {
				src = snapshot.Filter(in, snapshot.All(preds...))
			}
			tree := flamegraph.NewTree(calc)
			n, err := tree.FeedAll(src)
			if err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"read":    in.Records(),
				"matched": n,
				"weight":  tree.Root().Total,
			}).Info("Capture aggregated")

			if svgOut != "" {
				if err := writeFile(svgOut, func(w *bufio.Writer) error {
					return flamegraph.Render(w, tree, opts)
				}); err != nil {
					return err
				}
			}
			if jsonOut != "" {
				if err := writeFile(jsonOut, func(w *bufio.Writer) error {
					return flamegraph.NewDataset(tree, width, opts.Unit).WriteJSON(w)
				}); err != nil {
					return err
				}
			}
			if foldedOut != "" {
				if err := writeFile(foldedOut, func(w *bufio.Writer) error {
					return flamegraph.WriteCollapsed(w, tree)
				}); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Aggregated %d of %d records\n", n, in.Records())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&svgOut, "output", "o", "", "SVG file to write")
	f.StringVar(&jsonOut, "json", "", "flamebearer JSON file to write")
	f.StringVar(&foldedOut, "folded", "", "folded stacks file to write")
	f.IntVar(&width, "width", flamegraph.DefaultSVGOptions().Width, "image width in pixels")
	f.StringVar(&filter, "filter", "", "regular expression on thread names")
	f.StringSliceVar(&states, "state", nil, "keep only records in these thread states")
	f.StringVar(&weight, "weight", "samples", "samples, a counter (cpu, user, alloc) or <counter>-value")
	f.StringVar(&scheme, "scheme", "hot", "colour scheme (hot, cold, mem)")
	f.StringVar(&title, "title", "", "image title")
	f.StringArrayVar(&categories, "category", nil, "colour category name=pattern[,pattern][:#rrggbb], repeatable")
	return cmd
}

// writeFile creates path and hands fn a buffered writer on it.
func writeFile(path string, fn func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return errors.Join(w.Flush(), f.Close())
}
