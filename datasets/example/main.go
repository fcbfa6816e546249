package main

// Example command that streams BERT pretraining shards through the
// multi-shard loader and converts the batches into gomlx tensors, the way a
// trainer consuming the gomlx Dataset interface would.
//
// Usage:
//   go run ./datasets/example -pattern '/data/shards/*.bshd'
//
// Shards can be produced from CSV with `shardtool pack`.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/Noofbiz/bertShards/datasets"
	"github.com/Noofbiz/bertShards/distributed"
)

func main() {
	pattern := flag.String("pattern", "../assets/shards/*.bshd", "glob pattern for shard files")
	batchSize := flag.Int("batch-size", 8, "samples per batch")
	maxBatches := flag.Int("max-batches", 4, "batches to pull through Yield")
	flag.Parse()

	files, err := datasets.Glob(*pattern)
	if err != nil {
		log.Fatalf("failed to find shards: %v", err)
	}
	fmt.Printf("Using %d shard files matching %s\n", len(files), *pattern)

	cfg := datasets.LoaderConfig{
		Name:       "pretraining",
		BatchSize:  *batchSize,
		NumWorkers: 4,
		Shard:      datasets.ShardOptions{Guard: distributed.EnsureNoCoreRestriction},
	}
	loader, err := datasets.NewMultiShardLoader(files, cfg)
	if err != nil {
		log.Fatalf("failed to create loader: %v", err)
	}

	// Look at the first batch directly.
	for b, err := range loader.All(context.Background()) {
		if err != nil {
			log.Fatalf("failed to stream first batch: %v", err)
		}
		s := b.Sample(0)
		fmt.Printf("First batch from %s: %d samples of length %d\n", b.Shard, b.Size, b.SeqLength)
		fmt.Printf("  input_ids[:8]=%v next_sentence_label=%d\n", s.InputIDs[:min(8, len(s.InputIDs))], s.NextSentenceLabel)
		break
	}
	loader.Reset()

	// Pull tensors the way a gomlx training loop does.
	var ds datasets.TrainDataset = loader
	for i := range *maxBatches {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			fmt.Println("Reached the end of the shards")
			break
		}
		if err != nil {
			log.Fatalf("failed to yield batch %d: %v", i, err)
		}
		fmt.Printf("Batch %d: %d input tensors, %d label tensors, inputs[0] shape %s\n",
			i, len(inputs), len(labels), inputs[0].Shape())
	}
	c := loader.Cursor()
	fmt.Printf("Cursor after %s: shard %d, sample %d\n", ds.Name(), c.Shard, c.Sample)
}
