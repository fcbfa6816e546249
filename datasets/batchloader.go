package datasets

import (
	"iter"

	"github.com/Noofbiz/bertShards/internal/parallel"
	"github.com/pkg/errors"
)

// BatchLoader yields fixed-size batches from a single shard. A trailing
// partial batch is dropped.
type BatchLoader struct {
	ds         *ShardDataset
	batchSize  int
	numWorkers int
}

// NewBatchLoader opens the shard at path and wraps it for batching. It depends
// only on its arguments, so it can run on any goroutine.
//
// When shuffle is set the rows are permuted once with opts.Seed. Up to
// numWorkers goroutines assemble the samples of each batch.
func NewBatchLoader(path string, batchSize int, shuffle bool, numWorkers int, opts ShardOptions) (*BatchLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	ds, err := OpenShard(path, opts)
	if err != nil {
		return nil, err
	}
	if shuffle {
		ds.Shuffle(opts.Seed)
	}
	return &BatchLoader{ds: ds, batchSize: batchSize, numWorkers: max(numWorkers, 1)}, nil
}

// Dataset returns the underlying shard.
func (l *BatchLoader) Dataset() *ShardDataset { return l.ds }

// Len returns the number of full batches.
func (l *BatchLoader) Len() int { return l.ds.Len() / l.batchSize }

// Batch assembles batch k, covering rows [k*batchSize, (k+1)*batchSize).
func (l *BatchLoader) Batch(k int) (*Batch, error) {
	if k < 0 || k >= l.Len() {
		return nil, errors.Errorf("batch %d out of range [0, %d)", k, l.Len())
	}
	b := newBatch(l.batchSize, l.ds.maxSeqLength)
	start := k * l.batchSize
	err := parallel.ForEach(l.batchSize, l.numWorkers, func(j int) error {
		return l.ds.fillRow(b, j, start+j)
	})
	if err != nil {
		return nil, err
	}
	b.Shard = l.ds.path
	return b, nil
}

// Batches iterates over every full batch in order. Iteration stops after the
// first error.
func (l *BatchLoader) Batches() iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for k := range l.Len() {
			b, err := l.Batch(k)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}
