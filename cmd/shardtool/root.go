package main

import (
	"flag"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/Noofbiz/bertShards/distributed"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	useMmap bool

	// noGuard skips the CPU-affinity check before a shard is opened.
	noGuard bool
}

// shardOptions builds the options used to open shards from the global flags.
func (o *globalOptions) shardOptions() datasets.ShardOptions {
	opts := datasets.ShardOptions{UseMmap: o.useMmap}
	if !o.noGuard {
		opts.Guard = distributed.EnsureNoCoreRestriction
	}
	return opts
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "shardtool",
		Short: "Pack, inspect and stream BERT pretraining shards",
		Long: `shardtool works with the binary shard files read by the datasets package.

Each shard holds the six pretraining columns (input_ids, segment_ids,
input_mask, masked_lm_positions, masked_lm_ids, next_sentence_labels).
Use "pack" to build shards from CSV, "inspect" and "plot" to look at them,
and "stream" to drive the multi-shard loader the way a trainer would.`,
		SilenceUsage: true,
	}

	// klog flags (-v, --logtostderr, ...) live on the root command.
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	cmd.PersistentFlags().AddGoFlagSet(fs)

	cmd.PersistentFlags().BoolVar(&opts.useMmap, "mmap", false, "memory-map shard files instead of reading them")
	cmd.PersistentFlags().BoolVar(&opts.noGuard, "no-guard", false, "do not check the CPU affinity mask before opening shards")

	cmd.AddCommand(
		newPackCommand(opts),
		newInspectCommand(opts),
		newPlotCommand(opts),
		newStreamCommand(opts),
		newEnvCommand(opts),
	)
	return cmd
}
