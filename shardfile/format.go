// Package shardfile reads and writes the on-disk shard format used for
// pre-tokenized training data.
//
// A shard holds a set of named int32 columns that all share the same row
// count. Each column stores Width values per row, so a sequence column of
// length 128 has Width 128 and a scalar column has Width 1. Payloads are
// little-endian and may be zstd-compressed per column.
//
// Layout:
//
//	magic   "BSHD"
//	version uint16
//	ncols   uint16
//	column  * ncols:
//	    nameLen uint16, name
//	    rows uint32, width uint32
//	    codec uint8, size uint64, crc uint32
//	    payload [size]byte
package shardfile

import (
	"github.com/pkg/errors"
)

const (
	// Version is the only format version written and accepted.
	Version = 1

	// Ext is the conventional file extension for shard files.
	Ext = ".bshd"

	headerSize       = 8
	columnFixedSize  = 4 + 4 + 1 + 8 + 4
	valueSize        = 4
	maxColumnNameLen = 1<<16 - 1
)

var magic = [4]byte{'B', 'S', 'H', 'D'}

// Codec selects how a column payload is stored.
type Codec uint8

const (
	// CodecRaw stores little-endian int32 values as-is.
	CodecRaw Codec = 0
	// CodecZstd stores the raw payload compressed with zstd.
	CodecZstd Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCodec maps a codec name ("raw", "zstd") to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "raw":
		return CodecRaw, nil
	case "zstd":
		return CodecZstd, nil
	}
	return 0, errors.Wrapf(ErrUnknownCodec, "codec %q", name)
}

var (
	ErrBadMagic           = errors.New("shardfile: bad magic")
	ErrUnsupportedVersion = errors.New("shardfile: unsupported version")
	ErrTruncated          = errors.New("shardfile: truncated file")
	ErrChecksum           = errors.New("shardfile: checksum mismatch")
	ErrUnknownCodec       = errors.New("shardfile: unknown codec")
	ErrDuplicateColumn    = errors.New("shardfile: duplicate column")
	ErrMissingColumn      = errors.New("shardfile: missing column")
	ErrShape              = errors.New("shardfile: column shape mismatch")
)

// Column is one named int32 column, stored row-major.
type Column struct {
	Name  string
	Rows  int
	Width int
	Data  []int32
}

// NewColumn builds a column from per-row slices. Every row must have the same
// length.
func NewColumn(name string, rows [][]int32) (*Column, error) {
	c := &Column{Name: name, Rows: len(rows)}
	if len(rows) == 0 {
		return c, nil
	}
	c.Width = len(rows[0])
	c.Data = make([]int32, 0, c.Rows*c.Width)
	for i, r := range rows {
		if len(r) != c.Width {
			return nil, errors.Wrapf(ErrShape, "column %q row %d has %d values, want %d", name, i, len(r), c.Width)
		}
		c.Data = append(c.Data, r...)
	}
	return c, nil
}

// Row returns the values of row i. The slice aliases the column data.
func (c *Column) Row(i int) []int32 {
	return c.Data[i*c.Width : (i+1)*c.Width]
}

// Permute reorders the rows of c so that new row i is old row perm[i].
func (c *Column) Permute(perm []int) {
	out := make([]int32, len(c.Data))
	for i, src := range perm {
		copy(out[i*c.Width:(i+1)*c.Width], c.Row(src))
	}
	c.Data = out
}

func (c *Column) validate() error {
	if c.Rows < 0 || c.Width < 0 || len(c.Data) != c.Rows*c.Width {
		return errors.Wrapf(ErrShape, "column %q has %d values for %dx%d", c.Name, len(c.Data), c.Rows, c.Width)
	}
	if len(c.Name) == 0 || len(c.Name) > maxColumnNameLen {
		return errors.Wrapf(ErrShape, "column name length %d", len(c.Name))
	}
	return nil
}

// File is a fully loaded shard.
type File struct {
	Path    string
	Columns []*Column
}

// Column returns the named column, or ErrMissingColumn.
func (f *File) Column(name string) (*Column, error) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrMissingColumn, "%s: %q", f.Path, name)
}

// Rows returns the row count shared by all columns, or 0 for an empty file.
func (f *File) Rows() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return f.Columns[0].Rows
}
