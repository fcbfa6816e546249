package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type streamOptions struct {
	config     string
	pattern    string
	batchSize  int
	shuffle    bool
	loop       bool
	numWorkers int
	seed       int64
	forward    int
	limit      int
	cursor     datasets.Cursor
}

func newStreamCommand(opts *globalOptions) *cobra.Command {
	so := &streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream [SHARD...]",
		Short: "Drive the multi-shard loader and report throughput",
		Long: `Stream batches through the multi-shard loader the way a trainer would.

Shards come from the arguments, or from --pattern / the config file's
pattern when no arguments are given. Flags override values from --config.`,
		Example: `  # Two epochs worth of batches from a config file
  shardtool stream --config loader.yaml --limit 2000

  # Resume from a saved position
  shardtool stream shards/*.bshd --batch-size 32 --shard 4 --forward 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := so.loaderConfig(cmd, opts)
			if err != nil {
				return err
			}
			files := args
			if len(files) == 0 {
				if cfg.Pattern == "" {
					return errors.New("no shard files: pass them as arguments or set a pattern")
				}
				if files, err = datasets.Glob(cfg.Pattern); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, cmd, files, cfg, so)
		},
	}

	f := cmd.Flags()
	f.StringVar(&so.config, "config", "", "YAML loader configuration")
	f.StringVar(&so.pattern, "pattern", "", "glob for shard files")
	f.IntVar(&so.batchSize, "batch-size", 1, "samples per batch")
	f.BoolVar(&so.shuffle, "shuffle", false, "shuffle shard order and samples")
	f.BoolVar(&so.loop, "loop", false, "cycle through the shards forever")
	f.IntVar(&so.numWorkers, "workers", 1, "goroutines assembling each batch")
	f.Int64Var(&so.seed, "seed", 0, "shuffle seed (0 = clock)")
	f.IntVar(&so.forward, "forward", 0, "skip this many batches before streaming")
	f.IntVar(&so.limit, "limit", 0, "stop after this many batches (0 = until the loader ends)")
	f.IntVar(&so.cursor.Shard, "shard", 0, "start at this shard of the stream")
	return cmd
}

// loaderConfig merges the config file, global flags and explicitly set flags.
func (so *streamOptions) loaderConfig(cmd *cobra.Command, opts *globalOptions) (datasets.LoaderConfig, error) {
	var cfg datasets.LoaderConfig
	if so.config != "" {
		var err error
		if cfg, err = datasets.LoadLoaderConfig(so.config); err != nil {
			return cfg, err
		}
	}

	f := cmd.Flags()
	if f.Changed("pattern") {
		cfg.Pattern = so.pattern
	}
	if f.Changed("batch-size") || so.config == "" {
		cfg.BatchSize = so.batchSize
	}
	if f.Changed("shuffle") {
		cfg.Shuffle = so.shuffle
	}
	if f.Changed("loop") {
		cfg.Loop = so.loop
	}
	if f.Changed("workers") || so.config == "" {
		cfg.NumWorkers = so.numWorkers
	}
	if f.Changed("seed") {
		cfg.Seed = so.seed
	}
	if opts.useMmap {
		cfg.Shard.UseMmap = true
	}
	cfg.Shard.Guard = opts.shardOptions().Guard

	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

func runStream(ctx context.Context, cmd *cobra.Command, files []string, cfg datasets.LoaderConfig, so *streamOptions) error {
	out := cmd.OutOrStdout()
	l, err := datasets.NewMultiShardLoader(files, cfg)
	if err != nil {
		return err
	}
	if err := l.SetCursor(so.cursor); err != nil {
		return err
	}
	if so.forward > 0 {
		if err := l.Forward(ctx, so.forward); err != nil {
			return err
		}
		c := l.Cursor()
		fmt.Fprintf(out, "Forwarded %d batches to shard %d, sample %d\n", so.forward, c.Shard, c.Sample)
	}

	start := time.Now()
	var batches, samples int
	lastShard := -1
	for b, err := range l.All(ctx) {
		if err != nil {
			return err
		}
		if b.ShardIndex != lastShard {
			fmt.Fprintf(out, "Shard %d: %s\n", b.ShardIndex, b.Shard)
			lastShard = b.ShardIndex
		}
		batches++
		samples += b.Size
		if so.limit > 0 && batches >= so.limit {
			break
		}
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(samples) / elapsed.Seconds()
	}
	c := l.Cursor()
	fmt.Fprintf(out, "Streamed %s batches (%s samples) in %s, %s samples/s; cursor at shard %d, sample %d\n",
		humanize.Comma(int64(batches)), humanize.Comma(int64(samples)), elapsed.Round(time.Millisecond),
		humanize.CommafWithDigits(rate, 1), c.Shard, c.Sample)
	return nil
}
