package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This file defines the types shared by the shard-backed datasets used for
// masked-language-model pre-training.
//
// Layout and intended usage:
//
// ShardDataset
//   - Loads one shard file (see package shardfile) wholesale into memory.
//   - Columns: input_ids, segment_ids, input_mask, masked_lm_positions,
//     masked_lm_ids, next_sentence_labels.
//   - Examples are returned as a 5-tuple Sample with the sparse masked
//     positions/ids replaced by a dense label vector.
//
// BatchLoader
//   - Wraps one ShardDataset and yields fixed-size batches in row order,
//     dropping the trailing partial batch.
//
// MultiShardLoader
//   - Streams batches over an ordered list of shards while the next shard is
//     loaded in the background. At most two shards are held in memory.
//   - Implements gomlx's train.Dataset contract (Name, Yield, Reset).

// Column names of a pre-training shard.
const (
	ColInputIDs           = "input_ids"
	ColSegmentIDs         = "segment_ids"
	ColInputMask          = "input_mask"
	ColMaskedLMPositions  = "masked_lm_positions"
	ColMaskedLMIDs        = "masked_lm_ids"
	ColNextSentenceLabels = "next_sentence_labels"
)

// ColumnNames lists the shard columns in storage order.
var ColumnNames = []string{
	ColInputIDs,
	ColSegmentIDs,
	ColInputMask,
	ColMaskedLMPositions,
	ColMaskedLMIDs,
	ColNextSentenceLabels,
}

// Dataset is implemented by ShardDataset.
type Dataset interface {
	Len() int
	Example(i int) (Sample, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)
}

// TrainDataset is gomlx's train.Dataset contract. Yield returns io.EOF at the
// end of an epoch.
type TrainDataset interface {
	Name() string
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
	Reset()
}

// Sample is the trainer-facing view of one shard row.
type Sample struct {
	InputIDs          []int32
	SegmentIDs        []int32
	InputMask         []int32
	MaskedLMLabels    []int32
	NextSentenceLabel int32
}

// ShardError reports a shard that could not be opened or decoded.
type ShardError struct {
	Path string
	Err  error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %s: %v", e.Path, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }
