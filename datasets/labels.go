package datasets

import "github.com/pkg/errors"

const (
	// IgnoreLabel marks a position that does not contribute to the loss.
	IgnoreLabel int32 = -1

	// PaddingPosition terminates the list of masked positions. It is also a
	// valid token index, so a real mask at position 0 cannot be told apart
	// from padding; the first occurrence always ends the list.
	PaddingPosition int32 = 0
)

// ErrPositionOutOfRange is returned when a masked position does not index
// into the sequence.
var ErrPositionOutOfRange = errors.New("masked position out of range")

// ErrSparseLength is returned when the sparse encoding is shorter than the
// number of masked tokens it claims.
var ErrSparseLength = errors.New("masked positions and ids shorter than masked token count")

// MaskedTokenCount returns the index of the first PaddingPosition among the
// first maxPredictions entries of positions, or maxPredictions if there is
// none.
func MaskedTokenCount(positions []int32, maxPredictions int) int {
	limit := min(maxPredictions, len(positions))
	for i := range limit {
		if positions[i] == PaddingPosition {
			return i
		}
	}
	return maxPredictions
}

// BuildMaskedLMLabels expands the sparse (position, id) encoding into a dense
// label vector of length maxSeqLength. Unmasked positions hold IgnoreLabel.
func BuildMaskedLMLabels(positions, ids []int32, maxSeqLength, maxPredictions int) ([]int32, error) {
	labels := make([]int32, maxSeqLength)
	if err := fillMaskedLMLabels(labels, positions, ids, maxPredictions); err != nil {
		return nil, err
	}
	return labels, nil
}

// fillMaskedLMLabels writes the dense labels into dst, whose length is the
// sequence length.
func fillMaskedLMLabels(dst, positions, ids []int32, maxPredictions int) error {
	for i := range dst {
		dst[i] = IgnoreLabel
	}
	n := MaskedTokenCount(positions, maxPredictions)
	if n > len(positions) || n > len(ids) {
		return errors.Wrapf(ErrSparseLength, "count %d, %d positions, %d ids", n, len(positions), len(ids))
	}
	for i := range n {
		p := positions[i]
		if p < 0 || int(p) >= len(dst) {
			return errors.Wrapf(ErrPositionOutOfRange, "position %d at index %d, sequence length %d", p, i, len(dst))
		}
		dst[p] = ids[i]
	}
	return nil
}
