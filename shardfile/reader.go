package shardfile

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// ReadOptions controls how a shard is loaded.
type ReadOptions struct {
	// UseMmap maps the file read-only instead of copying it through read(2).
	// The mapping is released before Read returns; decoded columns never
	// alias it.
	UseMmap bool
}

// Read loads every column of the shard at path into memory.
func Read(path string, opts ReadOptions) (*File, error) {
	var (
		buf     []byte
		release func() error
		err     error
	)
	if opts.UseMmap {
		buf, release, err = mapFile(path)
	} else {
		buf, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if release != nil {
		defer release()
	}

	f, err := decode(buf)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	f.Path = path
	return f, nil
}

func decode(buf []byte) (*File, error) {
	if len(buf) < headerSize {
		return nil, ErrTruncated
	}
	if [4]byte(buf[:4]) != magic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	ncols := int(binary.LittleEndian.Uint16(buf[6:8]))

	var dec *zstd.Decoder
	defer func() {
		if dec != nil {
			dec.Close()
		}
	}()

	f := &File{Columns: make([]*Column, 0, ncols)}
	seen := make(map[string]bool, ncols)
	off := headerSize
	for range ncols {
		if len(buf)-off < 2 {
			return nil, ErrTruncated
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf)-off < nameLen+columnFixedSize {
			return nil, ErrTruncated
		}
		name := string(buf[off : off+nameLen])
		off += nameLen

		rows := int(binary.LittleEndian.Uint32(buf[off:]))
		width := int(binary.LittleEndian.Uint32(buf[off+4:]))
		codec := Codec(buf[off+8])
		size := binary.LittleEndian.Uint64(buf[off+9:])
		sum := binary.LittleEndian.Uint32(buf[off+17:])
		off += columnFixedSize
		if uint64(len(buf)-off) < size {
			return nil, errors.Wrapf(ErrTruncated, "column %q", name)
		}
		payload := buf[off : off+int(size)]
		off += int(size)

		if seen[name] {
			return nil, errors.Wrapf(ErrDuplicateColumn, "%q", name)
		}
		seen[name] = true

		var raw []byte
		switch codec {
		case CodecRaw:
			raw = payload
		case CodecZstd:
			if dec == nil {
				var err error
				if dec, err = zstd.NewReader(nil); err != nil {
					return nil, errors.Wrap(err, "create zstd decoder")
				}
			}
			var err error
			if raw, err = dec.DecodeAll(payload, nil); err != nil {
				return nil, errors.Wrapf(err, "decompress column %q", name)
			}
		default:
			return nil, errors.Wrapf(ErrUnknownCodec, "column %q codec %d", name, codec)
		}

		if crc32.ChecksumIEEE(raw) != sum {
			return nil, errors.Wrapf(ErrChecksum, "column %q", name)
		}
		if len(raw) != rows*width*valueSize {
			return nil, errors.Wrapf(ErrShape, "column %q has %d bytes for %dx%d", name, len(raw), rows, width)
		}
		if len(f.Columns) > 0 && rows != f.Columns[0].Rows {
			return nil, errors.Wrapf(ErrShape, "column %q has %d rows, column %q has %d",
				name, rows, f.Columns[0].Name, f.Columns[0].Rows)
		}

		f.Columns = append(f.Columns, &Column{
			Name:  name,
			Rows:  rows,
			Width: width,
			Data:  decodeValues(raw),
		})
	}
	return f, nil
}

func decodeValues(raw []byte) []int32 {
	vals := make([]int32, len(raw)/valueSize)
	for i := range vals {
		vals[i] = int32(binary.LittleEndian.Uint32(raw[i*valueSize:]))
	}
	return vals
}
