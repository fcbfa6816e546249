package main

import (
	"fmt"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/Noofbiz/bertShards/shardfile"
	"github.com/spf13/cobra"
)

func newPackCommand(_ *globalOptions) *cobra.Command {
	var codecName string

	cmd := &cobra.Command{
		Use:   "pack CSV SHARD",
		Short: "Convert a CSV of tokenized samples into a shard file",
		Long: `Convert a CSV of tokenized samples into a shard file.

The CSV header must name the six shard columns. Each cell holds the
space-separated integers of that field; all rows of a column must have
the same number of values.`,
		Example: `  shardtool pack samples.csv shards/part-000.bshd --codec zstd`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := shardfile.ParseCodec(codecName)
			if err != nil {
				return err
			}
			n, err := datasets.PackCSV(args[0], args[1], codec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d samples into %s (%s)\n", n, args[1], codec)
			return nil
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", shardfile.CodecZstd.String(), "column codec: raw or zstd")
	return cmd
}
