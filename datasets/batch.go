package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Batch stores Size samples in flat contiguous buffers. The four per-token
// fields are row-major [Size, SeqLength]; NextSentenceLabels is [Size].
type Batch struct {
	Size      int
	SeqLength int

	InputIDs           []int32
	SegmentIDs         []int32
	InputMask          []int32
	MaskedLMLabels     []int32
	NextSentenceLabels []int32

	// Shard is the file the batch was read from.
	Shard string
	// ShardIndex is the loader cursor's shard index when the batch was
	// produced. It keeps counting past the end of the list in loop mode.
	ShardIndex int
}

func newBatch(size, seqLength int) *Batch {
	// One allocation backs all four token fields.
	n := size * seqLength
	buf := make([]int32, 4*n)
	return &Batch{
		Size:               size,
		SeqLength:          seqLength,
		InputIDs:           buf[0*n : 1*n : 1*n],
		SegmentIDs:         buf[1*n : 2*n : 2*n],
		InputMask:          buf[2*n : 3*n : 3*n],
		MaskedLMLabels:     buf[3*n : 4*n : 4*n],
		NextSentenceLabels: make([]int32, size),
	}
}

// Sample returns a view of sample j. The slices alias the batch buffers.
func (b *Batch) Sample(j int) Sample {
	lo, hi := j*b.SeqLength, (j+1)*b.SeqLength
	return Sample{
		InputIDs:          b.InputIDs[lo:hi],
		SegmentIDs:        b.SegmentIDs[lo:hi],
		InputMask:         b.InputMask[lo:hi],
		MaskedLMLabels:    b.MaskedLMLabels[lo:hi],
		NextSentenceLabel: b.NextSentenceLabels[j],
	}
}

// MakeBatchFlat packs samples into a Batch. All samples must have the same
// sequence length.
func MakeBatchFlat(samples []Sample) (*Batch, error) {
	if len(samples) == 0 {
		return newBatch(0, 0), nil
	}
	seqLen := len(samples[0].InputIDs)
	b := newBatch(len(samples), seqLen)
	for j, s := range samples {
		if len(s.InputIDs) != seqLen || len(s.SegmentIDs) != seqLen ||
			len(s.InputMask) != seqLen || len(s.MaskedLMLabels) != seqLen {
			return nil, errors.Errorf("inconsistent sequence length at sample %d: expected %d", j, seqLen)
		}
		lo := j * seqLen
		copy(b.InputIDs[lo:], s.InputIDs)
		copy(b.SegmentIDs[lo:], s.SegmentIDs)
		copy(b.InputMask[lo:], s.InputMask)
		copy(b.MaskedLMLabels[lo:], s.MaskedLMLabels)
		b.NextSentenceLabels[j] = s.NextSentenceLabel
	}
	return b, nil
}

// ToGomlxTensors converts the batch into gomlx tensors. Inputs are
// input_ids, segment_ids and input_mask, each [Size, SeqLength]; labels are
// the dense masked-LM labels [Size, SeqLength] and next-sentence labels
// [Size].
func (b *Batch) ToGomlxTensors() (inputs, labels []*tensors.Tensor, err error) {
	if len(b.InputIDs) != b.Size*b.SeqLength || len(b.NextSentenceLabels) != b.Size {
		return nil, nil, errors.Errorf("batch buffers do not match shape [%d, %d]", b.Size, b.SeqLength)
	}
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.InputIDs, b.Size, b.SeqLength),
		tensors.FromFlatDataAndDimensions(b.SegmentIDs, b.Size, b.SeqLength),
		tensors.FromFlatDataAndDimensions(b.InputMask, b.Size, b.SeqLength),
	}
	labels = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(b.MaskedLMLabels, b.Size, b.SeqLength),
		tensors.FromFlatDataAndDimensions(b.NextSentenceLabels, b.Size),
	}
	return inputs, labels, nil
}
