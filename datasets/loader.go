package datasets

import (
	"context"
	"io"
	"iter"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Cursor is a position in a shard stream. Shard counts shards started since
// the beginning of the stream (it keeps growing in loop mode); Sample counts
// samples handed out from that shard.
type Cursor struct {
	Shard  int `json:"shard" yaml:"shard"`
	Sample int `json:"sample" yaml:"sample"`
}

// ErrInvalidCursor is returned for a Cursor with a negative field.
var ErrInvalidCursor = errors.New("invalid cursor")

func (c Cursor) validate() error {
	if c.Shard < 0 || c.Sample < 0 {
		return errors.Wrapf(ErrInvalidCursor, "shard %d, sample %d", c.Shard, c.Sample)
	}
	return nil
}

// Stream yields batches from files starting at cur.Shard and advances cur
// as batches are handed out. The shard after the current one is loaded in
// the background while the current one is consumed, so at most two shards
// are resident.
//
// cur.Sample is bookkeeping only: a resumed stream always starts at the
// first batch of cur.Shard. When a non-looping stream runs out of shards,
// cur is reset to the zero Cursor. A prefetch failure is yielded as a
// *ShardError and ends the stream, as does a negative cursor
// (ErrInvalidCursor) or a done ctx, which is checked before every batch.
//
// Stream does not copy files; the caller must not modify it while the
// sequence is being iterated. Only one iteration may drive a given cursor.
func Stream(ctx context.Context, files []string, cur *Cursor, cfg LoaderConfig) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		if err := cur.validate(); err != nil {
			yield(nil, err)
			return
		}
		if len(files) == 0 {
			*cur = Cursor{}
			return
		}
		if !cfg.Loop && cur.Shard >= len(files) {
			*cur = Cursor{}
		}

		p := newPrefetcher(files, cfg)
		defer p.close()

		p.request(cur.Shard)
		for {
			r, err := p.await(ctx)
			if err == nil {
				err = r.err
			}
			if err != nil {
				yield(nil, err)
				return
			}

			next := cur.Shard + 1
			more := cfg.Loop || next < len(files)
			if more {
				p.request(next)
			}

			for b, err := range r.loader.Batches() {
				if err == nil {
					err = ctx.Err()
				}
				if err != nil {
					yield(nil, err)
					return
				}
				b.ShardIndex = cur.Shard
				ok := yield(b, nil)
				cur.Sample += cfg.BatchSize
				if !ok {
					return
				}
			}

			cur.Shard = next
			cur.Sample = 0
			if !more {
				break
			}
		}
		*cur = Cursor{}
	}
}

type shardResult struct {
	index  int
	loader *BatchLoader
	err    error
}

// prefetcher owns the single background goroutine that opens shards. Its
// results channel has room for exactly one shard, and a new shard is only
// requested after the previous result was received.
type prefetcher struct {
	files   []string
	cfg     LoaderConfig
	reqs    chan int
	results chan shardResult
	pending bool
}

func newPrefetcher(files []string, cfg LoaderConfig) *prefetcher {
	p := &prefetcher{
		files:   files,
		cfg:     cfg,
		reqs:    make(chan int),
		results: make(chan shardResult, 1),
	}
	go p.run()
	return p
}

func (p *prefetcher) run() {
	for idx := range p.reqs {
		p.results <- p.load(idx)
	}
}

func (p *prefetcher) load(idx int) shardResult {
	path := p.files[idx%len(p.files)]
	opts := p.cfg.Shard
	opts.Seed = shardSeed(p.cfg.Seed, idx)
	l, err := NewBatchLoader(path, p.cfg.BatchSize, p.cfg.Shuffle, p.cfg.NumWorkers, opts)
	if err != nil {
		var se *ShardError
		if !errors.As(err, &se) {
			err = &ShardError{Path: path, Err: err}
		}
	}
	return shardResult{index: idx, loader: l, err: err}
}

func (p *prefetcher) request(idx int) {
	if p.pending {
		panic("datasets: prefetch already in flight")
	}
	klog.V(2).Infof("Requesting %s", p.files[idx%len(p.files)])
	p.pending = true
	p.reqs <- idx
}

// await blocks until the requested shard is loaded or ctx is done.
func (p *prefetcher) await(ctx context.Context) (shardResult, error) {
	select {
	case r := <-p.results:
		p.pending = false
		return r, nil
	case <-ctx.Done():
		return shardResult{}, ctx.Err()
	}
}

// close stops the worker. A load in flight still runs to completion and its
// result is dropped.
func (p *prefetcher) close() {
	close(p.reqs)
}

func shardSeed(seed int64, idx int) int64 {
	if seed == 0 {
		return 0
	}
	// Distinct per shard and per pass in loop mode, never zero.
	s := seed + int64(idx+1)*0x5851f42d4c957f2d
	if s == 0 {
		s = 1
	}
	return s
}

// MultiShardLoader streams batches from a list of shard files and keeps its
// own Cursor across iterations. It is not safe for concurrent use.
type MultiShardLoader struct {
	cfg    LoaderConfig
	files  []string
	cursor Cursor

	// pull state for Yield
	next func() (*Batch, error, bool)
	stop func()
}

// NewMultiShardLoader copies files and, when cfg.Shuffle is set, shuffles the
// copy once.
func NewMultiShardLoader(files []string, cfg LoaderConfig) (*MultiShardLoader, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no shard files")
	}
	l := &MultiShardLoader{
		cfg:   cfg,
		files: append([]string(nil), files...),
	}
	if cfg.Shuffle {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		r := rand.New(rand.NewSource(seed))
		r.Shuffle(len(l.files), func(i, j int) { l.files[i], l.files[j] = l.files[j], l.files[i] })
	}
	return l, nil
}

// Files returns the shard order used by the loader.
func (l *MultiShardLoader) Files() []string { return append([]string(nil), l.files...) }

// Config returns the effective configuration.
func (l *MultiShardLoader) Config() LoaderConfig { return l.cfg }

// Cursor returns the current position.
func (l *MultiShardLoader) Cursor() Cursor { return l.cursor }

// SetCursor moves the loader to c, typically one saved by an earlier run.
// A cursor with a negative field is rejected and the position is unchanged.
func (l *MultiShardLoader) SetCursor(c Cursor) error {
	if err := c.validate(); err != nil {
		return err
	}
	l.stopPull()
	l.cursor = c
	return nil
}

// All streams batches from the current cursor. The sequence is finite unless
// the loader loops. Breaking out of the loop keeps the cursor where it is.
func (l *MultiShardLoader) All(ctx context.Context) iter.Seq2[*Batch, error] {
	return Stream(ctx, l.files, &l.cursor, l.cfg)
}

// Forward draws and discards count batches, then releases the loaded shards.
// The cursor is left where the last batch was drawn.
func (l *MultiShardLoader) Forward(ctx context.Context, count int) error {
	l.stopPull()
	if count > 0 {
		n := 0
		for _, err := range l.All(ctx) {
			if err != nil {
				return err
			}
			n++
			if n >= count {
				break
			}
		}
	}
	klog.V(1).Infof("Forwarded dataset to shard %d, sample %d", l.cursor.Shard, l.cursor.Sample)
	return nil
}

// Reset moves the cursor back to the start and releases any loaded shards.
func (l *MultiShardLoader) Reset() {
	l.stopPull()
	l.cursor = Cursor{}
}

// Name implements gomlx's train.Dataset.
func (l *MultiShardLoader) Name() string { return l.cfg.Name }

// Yield implements gomlx's train.Dataset. It returns io.EOF once a
// non-looping loader runs out of shards; the next call starts over.
func (l *MultiShardLoader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if l.next == nil {
		l.next, l.stop = iter.Pull2(l.All(context.Background()))
	}
	b, err, ok := l.next()
	if !ok {
		l.stopPull()
		return nil, nil, nil, io.EOF
	}
	if err != nil {
		l.stopPull()
		return nil, nil, nil, err
	}
	inputs, labels, err = b.ToGomlxTensors()
	return nil, inputs, labels, err
}

func (l *MultiShardLoader) stopPull() {
	if l.stop != nil {
		l.stop()
	}
	l.next, l.stop = nil, nil
}
