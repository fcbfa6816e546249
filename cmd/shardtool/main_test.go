package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCSV = `input_ids,segment_ids,input_mask,masked_lm_positions,masked_lm_ids,next_sentence_labels
101 7 8 102,0 0 1 1,1 1 1 1,1 2,900 901,1
101 9 102 0,0 0 0 0,1 1 1 0,2 0,902 0,0
101 5 6 102,0 0 1 1,1 1 1 1,3 0,903 0,1
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// packShards writes n shards built from sampleCSV into a temp directory.
func packShards(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "samples.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))

	var shards []string
	for i := range n {
		path := filepath.Join(dir, "part-"+string(rune('a'+i))+".bshd")
		out, err := run(t, "pack", csvPath, path)
		require.NoError(t, err)
		require.Contains(t, out, "Packed 3 samples")
		shards = append(shards, path)
	}
	return shards
}

func TestPackAndInspect(t *testing.T) {
	shards := packShards(t, 1)

	out, err := run(t, "inspect", shards[0])
	require.NoError(t, err)
	require.Contains(t, out, "3 samples")
	for _, col := range []string{"input_ids", "masked_lm_positions", "next_sentence_labels"} {
		require.Contains(t, out, col)
	}

	_, err = run(t, "pack", "missing.csv", filepath.Join(t.TempDir(), "x.bshd"))
	require.Error(t, err)
	_, err = run(t, "pack", "--codec", "lz4", "a.csv", "b.bshd")
	require.Error(t, err)
}

func TestStream(t *testing.T) {
	shards := packShards(t, 3)

	out, err := run(t, "stream", "--no-guard", "--batch-size", "2", shards[0], shards[1], shards[2])
	require.NoError(t, err)
	require.Contains(t, out, "Streamed 3 batches (6 samples)")
	require.Contains(t, out, "cursor at shard 0, sample 0")

	out, err = run(t, "stream", "--no-guard", "--batch-size", "1", "--forward", "4", shards[0], shards[1])
	require.NoError(t, err)
	require.Contains(t, out, "Forwarded 4 batches to shard 1, sample 1")
	require.Contains(t, out, "Streamed 3 batches")

	out, err = run(t, "stream", "--no-guard", "--loop", "--limit", "7", shards[0])
	require.NoError(t, err)
	require.Contains(t, out, "Streamed 7 batches")
	require.Contains(t, out, "cursor at shard 2, sample 1")

	_, err = run(t, "stream", "--no-guard", "--shard", "-1", shards[0])
	require.Error(t, err)
}

func TestStreamConfigFile(t *testing.T) {
	shards := packShards(t, 2)
	cfgPath := filepath.Join(t.TempDir(), "loader.yaml")
	cfg := "pattern: " + filepath.Join(filepath.Dir(shards[0]), "*.bshd") + "\nbatch_size: 3\nshuffle: true\nseed: 5\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := run(t, "stream", "--no-guard", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Streamed 2 batches (6 samples)")

	// Flags override the file.
	out, err = run(t, "stream", "--no-guard", "--config", cfgPath, "--batch-size", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Streamed 6 batches")

	_, err = run(t, "stream", "--no-guard")
	require.Error(t, err)
}

func TestPlot(t *testing.T) {
	shards := packShards(t, 1)
	png := filepath.Join(t.TempDir(), "out", "masked.png")

	out, err := run(t, "plot", "--no-guard", "--out", png, shards[0])
	require.NoError(t, err)
	require.Contains(t, out, "histogram of 3 samples")
	st, err := os.Stat(png)
	require.NoError(t, err)
	require.Positive(t, st.Size())
}

func TestPaddedRange(t *testing.T) {
	lo, hi := paddedRange([]float64{0, 10})
	require.InDelta(t, -0.6, lo, 1e-9)
	require.InDelta(t, 10.6, hi, 1e-9)

	lo, hi = paddedRange([]float64{3, 3})
	require.Equal(t, 2.0, lo)
	require.Equal(t, 4.0, hi)

	lo, hi = paddedRange(nil)
	require.Equal(t, -1.0, lo)
	require.Equal(t, 1.0, hi)
}

func TestEnv(t *testing.T) {
	t.Setenv("OMPI_COMM_WORLD_RANK", "3")
	t.Setenv("OMPI_COMM_WORLD_SIZE", "8")
	t.Setenv("AZ_BATCH_MASTER_NODE", "10.0.0.4:6000")
	// Registered so the values exported by --apply are restored.
	for _, key := range []string{"RANK", "WORLD_SIZE", "MASTER_ADDR", "MASTER_PORT", "NCCL_SOCKET_IFNAME"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	out, err := run(t, "env", "--master-port", "7000")
	require.NoError(t, err)
	require.Contains(t, out, "RANK=3\n")
	require.Contains(t, out, "WORLD_SIZE=8\n")
	require.Contains(t, out, "MASTER_ADDR=10.0.0.4\n")
	require.Contains(t, out, "MASTER_PORT=7000\n")
	require.True(t, strings.HasSuffix(out, "NCCL_SOCKET_IFNAME=^docker0,lo\n"))
	_, set := os.LookupEnv("MASTER_ADDR")
	require.False(t, set, "env without --apply must not export")

	_, err = run(t, "env", "--apply")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.4", os.Getenv("MASTER_ADDR"))
	require.Equal(t, "6105", os.Getenv("MASTER_PORT"))

	t.Setenv("AZ_BATCH_MASTER_NODE", "nohost")
	_, err = run(t, "env")
	require.Error(t, err)
}
