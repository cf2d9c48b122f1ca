package snapshot

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor wraps a snapshot payload stream. Snapshots are self-describing:
// the compressor's stable name is stored in the header, so changing the
// default never breaks older files.
type Compressor interface {
	// Compress wraps w; the returned writer must be closed to flush.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps r.
	Decompress(r io.Reader) (io.Reader, error)

	// Name is the stable identifier stored in snapshot headers.
	Name() string
}

// ByName returns a built-in compressor by its stable name.
func ByName(name string) (Compressor, bool) {
	switch name {
	case "none":
		return None{}, true
	case "lz4":
		return LZ4{}, true
	case "zstd":
		return Zstd{}, true
	default:
		return nil, false
	}
}

// None passes the payload through uncompressed.
type None struct{}

// Compress implements Compressor.
func (None) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

// Decompress implements Compressor.
func (None) Decompress(r io.Reader) (io.Reader, error) { return r, nil }

// Name implements Compressor.
func (None) Name() string { return "none" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// LZ4 compresses with the LZ4 frame format: fast with moderate ratios,
// a good default for local snapshots.
type LZ4 struct{}

// Compress implements Compressor.
func (LZ4) Compress(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

// Decompress implements Compressor.
func (LZ4) Decompress(r io.Reader) (io.Reader, error) {
	return lz4.NewReader(r), nil
}

// Name implements Compressor.
func (LZ4) Name() string { return "lz4" }

// Zstd compresses with zstandard: better ratios than LZ4 at some CPU cost,
// preferable when snapshots travel over the network.
type Zstd struct{}

// Compress implements Compressor.
func (Zstd) Compress(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd writer: %w", err)
	}
	return enc, nil
}

// Decompress implements Compressor.
func (Zstd) Decompress(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd reader: %w", err)
	}
	return dec.IOReadCloser(), nil
}

// Name implements Compressor.
func (Zstd) Name() string { return "zstd" }
