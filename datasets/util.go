package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Noofbiz/bertShards/shardfile"
	"github.com/pkg/errors"
)

// Glob returns the shard files matching pattern in lexical order.
func Glob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to glob pattern %s", pattern)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no shard files found matching pattern: %s", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// FindShardsInDir returns the shard files in dir.
func FindShardsInDir(dir string) ([]string, error) {
	return Glob(filepath.Join(dir, "*"+shardfile.Ext))
}

func parseInts(s string) ([]int32, error) {
	fields := strings.Fields(s)
	vals := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, err
		}
		vals[i] = int32(v)
	}
	return vals, nil
}

// ReadColumnsCSV reads pre-tokenized samples from a CSV file into shard
// columns. The header must name the six shard columns (any order, extra
// columns ignored); each cell holds space-separated integers.
func ReadColumnsCSV(path string) ([]*shardfile.Column, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, name := range ColumnNames {
		if _, ok := colIndex[name]; !ok {
			return nil, errors.Errorf("required column %q not found in CSV", name)
		}
	}

	rows := make([][][]int32, len(ColumnNames))
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read row %d", line)
		}
		line++
		for i, name := range ColumnNames {
			vals, err := parseInts(record[colIndex[name]])
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse %s on line %d", name, line)
			}
			rows[i] = append(rows[i], vals)
		}
	}

	cols := make([]*shardfile.Column, len(ColumnNames))
	for i, name := range ColumnNames {
		if cols[i], err = shardfile.NewColumn(name, rows[i]); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// PackCSV converts a CSV of samples into a shard file.
func PackCSV(csvPath, shardPath string, codec shardfile.Codec) (int, error) {
	cols, err := ReadColumnsCSV(csvPath)
	if err != nil {
		return 0, err
	}
	if err := shardfile.Write(shardPath, cols, shardfile.WriteOptions{Codec: codec}); err != nil {
		return 0, err
	}
	return cols[0].Rows, nil
}
