package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func newPlotCommand(opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "plot SHARD...",
		Short: "Plot the distribution of masked tokens per sample",
		Long: `Write a PNG histogram of how many tokens are masked in each sample.

The count for a sample is the number of entries of masked_lm_positions before
the first padding entry, capped at the shard's max predictions.`,
		Example: `  shardtool plot shards/*.bshd --out plots/masked.png`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, maxPreds, err := maskedTokenCounts(args, opts.shardOptions())
			if err != nil {
				return err
			}
			if err := plotMaskedCounts(out, counts, maxPreds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote histogram of %d samples to %s\n", len(counts), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", filepath.Join("plots", "masked_tokens.png"), "output PNG path")
	return cmd
}

// maskedTokenCounts returns the masked token count of every sample in files
// and the largest max predictions seen.
func maskedTokenCounts(files []string, opts datasets.ShardOptions) (plotter.Values, int, error) {
	var (
		counts   plotter.Values
		maxPreds int
	)
	for _, path := range files {
		ds, err := datasets.OpenShard(path, opts)
		if err != nil {
			return nil, 0, err
		}
		maxPreds = max(maxPreds, ds.MaxPredictions())
		for i := range ds.Len() {
			counts = append(counts, float64(datasets.MaskedTokenCount(ds.MaskedPositions(i), ds.MaxPredictions())))
		}
	}
	return counts, maxPreds, nil
}

// plotMaskedCounts writes a histogram with one bin per possible count.
func plotMaskedCounts(outPath string, counts plotter.Values, maxPreds int) error {
	if len(counts) == 0 {
		return errors.New("no samples to plot")
	}
	p := plot.New()
	p.Title.Text = "Masked tokens per sample"
	p.X.Label.Text = "masked tokens"
	p.Y.Label.Text = "samples"

	h, err := plotter.NewHist(counts, maxPreds+1)
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 220}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)
	p.Add(plotter.NewGrid())

	p.X.Min, p.X.Max = paddedRange(counts)
	p.Y.Min = 0

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrapf(err, "create output directory for %s", outPath)
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, outPath)
}

// paddedRange returns min/max of vs padded by 6% on each side.
func paddedRange(vs plotter.Values) (lo, hi float64) {
	if len(vs) == 0 {
		return -1, 1
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.06
	if pad == 0 {
		pad = 1.0
	}
	return lo - pad, hi + pad
}
