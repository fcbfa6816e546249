package shardfile

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// WriteOptions controls how a shard is written.
type WriteOptions struct {
	Codec Codec
}

// Write stores cols at path. The file is written to a temporary sibling and
// renamed into place, so readers never observe a partial shard.
func Write(path string, cols []*Column, opts WriteOptions) (err error) {
	if len(cols) > 1<<16-1 {
		return errors.Wrapf(ErrShape, "%d columns", len(cols))
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if err := c.validate(); err != nil {
			return err
		}
		if seen[c.Name] {
			return errors.Wrapf(ErrDuplicateColumn, "%q", c.Name)
		}
		seen[c.Name] = true
		if c.Rows != cols[0].Rows {
			return errors.Wrapf(ErrShape, "column %q has %d rows, column %q has %d",
				c.Name, c.Rows, cols[0].Name, cols[0].Rows)
		}
	}

	var enc *zstd.Encoder
	switch opts.Codec {
	case CodecRaw:
	case CodecZstd:
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return errors.Wrap(err, "create zstd encoder")
		}
		defer enc.Close()
	default:
		return errors.Wrapf(ErrUnknownCodec, "codec %d", opts.Codec)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], Version)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(cols)))
	if _, err = w.Write(hdr[:]); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	for _, c := range cols {
		raw := encodeValues(c.Data)
		payload := raw
		if enc != nil {
			payload = enc.EncodeAll(raw, nil)
		}

		desc := make([]byte, 2+len(c.Name)+columnFixedSize)
		binary.LittleEndian.PutUint16(desc[0:2], uint16(len(c.Name)))
		off := 2 + copy(desc[2:], c.Name)
		binary.LittleEndian.PutUint32(desc[off:], uint32(c.Rows))
		binary.LittleEndian.PutUint32(desc[off+4:], uint32(c.Width))
		desc[off+8] = byte(opts.Codec)
		binary.LittleEndian.PutUint64(desc[off+9:], uint64(len(payload)))
		binary.LittleEndian.PutUint32(desc[off+17:], crc32.ChecksumIEEE(raw))

		if _, err = w.Write(desc); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
		if _, err = w.Write(payload); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
	}

	if err = w.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename %s", path)
	}
	return nil
}

func encodeValues(vals []int32) []byte {
	buf := make([]byte, len(vals)*valueSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*valueSize:], uint32(v))
	}
	return buf
}
