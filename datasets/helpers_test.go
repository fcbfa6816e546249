package datasets

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/bertShards/shardfile"
)

const (
	testSeqLen   = 8
	testMaxPreds = 3
)

// shardRows builds n rows for shard tag s. Row r has input_ids[0] = s*1000+r
// and next_sentence_label = r, so a row stays identifiable after shuffling.
// Even rows mask positions {1, 4}; odd rows mask {2, 5, 7}.
func shardRows(s, n int) [][][]int32 {
	cols := make([][][]int32, len(ColumnNames))
	for r := range n {
		ids := make([]int32, testSeqLen)
		seg := make([]int32, testSeqLen)
		mask := make([]int32, testSeqLen)
		for k := range testSeqLen {
			ids[k] = int32(k)
			if k >= testSeqLen/2 {
				seg[k] = 1
			}
			mask[k] = 1
		}
		ids[0] = int32(s*1000 + r)

		var pos []int32
		if r%2 == 0 {
			pos = []int32{1, 4, 0}
		} else {
			pos = []int32{2, 5, 7}
		}
		mids := []int32{int32(r + 10), int32(r + 20), int32(r + 30)}

		cols[0] = append(cols[0], ids)
		cols[1] = append(cols[1], seg)
		cols[2] = append(cols[2], mask)
		cols[3] = append(cols[3], pos)
		cols[4] = append(cols[4], mids)
		cols[5] = append(cols[5], []int32{int32(r)})
	}
	return cols
}

// writeShard writes a shard with n rows tagged s and returns its path.
func writeShard(t *testing.T, dir string, s, n int) string {
	t.Helper()
	rows := shardRows(s, n)
	cols := make([]*shardfile.Column, len(ColumnNames))
	for i, name := range ColumnNames {
		c, err := shardfile.NewColumn(name, rows[i])
		if err != nil {
			t.Fatalf("failed to build column %s: %v", name, err)
		}
		if n == 0 {
			c.Width = 1
			if name == ColInputIDs || name == ColSegmentIDs || name == ColInputMask {
				c.Width = testSeqLen
			}
			if name == ColMaskedLMPositions || name == ColMaskedLMIDs {
				c.Width = testMaxPreds
			}
		}
		cols[i] = c
	}
	path := filepath.Join(dir, fmt.Sprintf("shard-%03d%s", s, shardfile.Ext))
	if err := shardfile.Write(path, cols, shardfile.WriteOptions{Codec: shardfile.CodecZstd}); err != nil {
		t.Fatalf("failed to write shard %s: %v", path, err)
	}
	return path
}

// shardTag recovers the shard tag and row of a sample written by writeShard.
func shardTag(s Sample) (shard, row int) {
	v := int(s.InputIDs[0])
	return v / 1000, v % 1000
}
