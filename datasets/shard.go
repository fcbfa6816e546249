package datasets

import (
	"math/rand"
	"slices"
	"time"

	"github.com/Noofbiz/bertShards/shardfile"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ShardOptions configures how a shard is opened and decoded.
type ShardOptions struct {
	// MaxSeqLength is the dense label length. Zero uses the input_ids width.
	MaxSeqLength int `yaml:"max_seq_length"`

	// MaxPredictions caps the masked token count. Zero uses the
	// masked_lm_positions width.
	MaxPredictions int `yaml:"max_predictions"`

	// UseMmap maps shard files instead of reading them.
	UseMmap bool `yaml:"use_mmap"`

	// Seed drives the intra-shard shuffle. Zero seeds from the clock.
	Seed int64 `yaml:"-"`

	// Guard runs before the shard is opened. A non-nil error aborts the open.
	Guard func() error `yaml:"-"`
}

// ShardDataset is one shard held fully in memory.
type ShardDataset struct {
	path string

	inputIDs    *shardfile.Column
	segmentIDs  *shardfile.Column
	inputMask   *shardfile.Column
	positions   *shardfile.Column
	maskedIDs   *shardfile.Column
	nextSentLbl *shardfile.Column

	maxSeqLength   int
	maxPredictions int
}

// OpenShard loads the shard at path. All failures are returned as
// *ShardError.
func OpenShard(path string, opts ShardOptions) (*ShardDataset, error) {
	ds, err := openShard(path, opts)
	if err != nil {
		return nil, &ShardError{Path: path, Err: err}
	}
	klog.V(2).Infof("Loaded %d samples from %s", ds.Len(), path)
	return ds, nil
}

func openShard(path string, opts ShardOptions) (*ShardDataset, error) {
	if opts.Guard != nil {
		if err := opts.Guard(); err != nil {
			return nil, errors.Wrap(err, "guard")
		}
	}

	f, err := shardfile.Read(path, shardfile.ReadOptions{UseMmap: opts.UseMmap})
	if err != nil {
		return nil, err
	}

	cols := make([]*shardfile.Column, len(ColumnNames))
	for i, name := range ColumnNames {
		if cols[i], err = f.Column(name); err != nil {
			return nil, err
		}
		if cols[i].Rows != cols[0].Rows {
			return nil, errors.Wrapf(shardfile.ErrShape, "column %q has %d rows, want %d", name, cols[i].Rows, cols[0].Rows)
		}
	}

	ds := &ShardDataset{
		path:           path,
		inputIDs:       cols[0],
		segmentIDs:     cols[1],
		inputMask:      cols[2],
		positions:      cols[3],
		maskedIDs:      cols[4],
		nextSentLbl:    cols[5],
		maxSeqLength:   opts.MaxSeqLength,
		maxPredictions: opts.MaxPredictions,
	}
	if ds.maxSeqLength == 0 {
		ds.maxSeqLength = ds.inputIDs.Width
	}
	if ds.maxPredictions == 0 {
		ds.maxPredictions = ds.positions.Width
	}

	for _, c := range []*shardfile.Column{ds.inputIDs, ds.segmentIDs, ds.inputMask} {
		if c.Width != ds.maxSeqLength {
			return nil, errors.Wrapf(shardfile.ErrShape, "column %q width %d, max sequence length %d", c.Name, c.Width, ds.maxSeqLength)
		}
	}
	if ds.maskedIDs.Width != ds.positions.Width {
		return nil, errors.Wrapf(shardfile.ErrShape, "masked ids width %d, masked positions width %d", ds.maskedIDs.Width, ds.positions.Width)
	}
	if ds.maxPredictions > ds.positions.Width {
		return nil, errors.Wrapf(shardfile.ErrShape, "max predictions %d exceeds masked positions width %d", ds.maxPredictions, ds.positions.Width)
	}
	if ds.nextSentLbl.Width != 1 {
		return nil, errors.Wrapf(shardfile.ErrShape, "next sentence label width %d, want 1", ds.nextSentLbl.Width)
	}
	return ds, nil
}

// Path returns the file the dataset was loaded from.
func (d *ShardDataset) Path() string { return d.path }

// Len returns the number of samples in the shard.
func (d *ShardDataset) Len() int { return d.inputIDs.Rows }

// MaxSeqLength returns the per-token field length.
func (d *ShardDataset) MaxSeqLength() int { return d.maxSeqLength }

// MaxPredictions returns the cap applied to the masked token count.
func (d *ShardDataset) MaxPredictions() int { return d.maxPredictions }

// Shuffle permutes the rows of every column with the same permutation.
// A zero seed uses the clock.
func (d *ShardDataset) Shuffle(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	perm := rand.New(rand.NewSource(seed)).Perm(d.Len())
	for _, c := range d.columns() {
		c.Permute(perm)
	}
}

func (d *ShardDataset) columns() []*shardfile.Column {
	return []*shardfile.Column{d.inputIDs, d.segmentIDs, d.inputMask, d.positions, d.maskedIDs, d.nextSentLbl}
}

// MaskedPositions returns the raw sparse positions of row i.
func (d *ShardDataset) MaskedPositions(i int) []int32 { return d.positions.Row(i) }

// Example returns sample i with its dense masked-LM labels.
func (d *ShardDataset) Example(i int) (Sample, error) {
	if i < 0 || i >= d.Len() {
		return Sample{}, errors.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	labels, err := BuildMaskedLMLabels(d.positions.Row(i), d.maskedIDs.Row(i), d.maxSeqLength, d.maxPredictions)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "%s row %d", d.path, i)
	}
	return Sample{
		InputIDs:          slices.Clone(d.inputIDs.Row(i)),
		SegmentIDs:        slices.Clone(d.segmentIDs.Row(i)),
		InputMask:         slices.Clone(d.inputMask.Row(i)),
		MaskedLMLabels:    labels,
		NextSentenceLabel: d.nextSentLbl.Data[i],
	}, nil
}

// Batch reads the given rows into a new Batch.
func (d *ShardDataset) Batch(indices []int) (*Batch, error) {
	b := newBatch(len(indices), d.maxSeqLength)
	for j, idx := range indices {
		if err := d.fillRow(b, j, idx); err != nil {
			return nil, err
		}
	}
	b.Shard = d.path
	return b, nil
}

// fillRow writes row i of the shard into slot j of b.
func (d *ShardDataset) fillRow(b *Batch, j, i int) error {
	if i < 0 || i >= d.Len() {
		return errors.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	lo, hi := j*b.SeqLength, (j+1)*b.SeqLength
	copy(b.InputIDs[lo:hi], d.inputIDs.Row(i))
	copy(b.SegmentIDs[lo:hi], d.segmentIDs.Row(i))
	copy(b.InputMask[lo:hi], d.inputMask.Row(i))
	if err := fillMaskedLMLabels(b.MaskedLMLabels[lo:hi], d.positions.Row(i), d.maskedIDs.Row(i), d.maxPredictions); err != nil {
		return errors.Wrapf(err, "%s row %d", d.path, i)
	}
	b.NextSentenceLabels[j] = d.nextSentLbl.Data[i]
	return nil
}
