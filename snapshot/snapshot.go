// Package snapshot persists a memory-store catalog to a compact binary file
// and restores it: header, compressed sections for tracks, fingerprints and
// hash bins.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/unexpectedexception/findsimilar/bitvec"
	"github.com/unexpectedexception/findsimilar/model"
	"github.com/unexpectedexception/findsimilar/store"
)

var magic = [4]byte{'F', 'S', 'N', 'P'}

const formatVersion = 1

// Options configure snapshot writing.
type Options struct {
	// Compression selects the payload compressor by stable name:
	// "none", "lz4" or "zstd".
	Compression string
}

// DefaultOptions are the snapshot defaults.
var DefaultOptions = Options{
	Compression: "lz4",
}

// Save writes the catalog snapshot of ms to w.
func Save(w io.Writer, ms *store.MemoryStore, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	comp, ok := ByName(opts.Compression)
	if !ok {
		return fmt.Errorf("snapshot: unknown compression %q", opts.Compression)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(formatVersion)); err != nil {
		return err
	}
	if err := writeString(bw, comp.Name()); err != nil {
		return err
	}

	cw, err := comp.Compress(bw)
	if err != nil {
		return err
	}
	if err := writePayload(cw, ms.Snapshot()); err != nil {
		_ = cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("snapshot: flush compressor: %w", err)
	}

	return bw.Flush()
}

// SaveFile writes the snapshot to a temporary file and renames it into
// place, so a crash mid-write never leaves a truncated snapshot behind.
func SaveFile(path string, ms *store.MemoryStore, optFns ...func(o *Options)) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", tmp, err)
	}

	if err := Save(f, ms, optFns...); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores a memory store from a snapshot stream.
func Load(r io.Reader) (*store.MemoryStore, error) {
	br := bufio.NewReader(r)

	var gotMagic [4]byte
	if _, err := io.ReadFull(br, gotMagic[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("snapshot: bad magic %q", gotMagic)
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("snapshot: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", version)
	}

	name, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read compression name: %w", err)
	}
	comp, ok := ByName(name)
	if !ok {
		return nil, fmt.Errorf("snapshot: unknown compression %q", name)
	}

	cr, err := comp.Decompress(br)
	if err != nil {
		return nil, err
	}
	data, err := readPayload(cr)
	if err != nil {
		return nil, err
	}

	ms, err := store.NewMemoryStoreFromSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: restore: %w", err)
	}
	return ms, nil
}

// LoadFile restores a memory store from a snapshot file.
func LoadFile(path string) (*store.MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

func writePayload(w io.Writer, data store.SnapshotData) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(data.Tracks))); err != nil {
		return err
	}
	for _, t := range data.Tracks {
		if err := binary.Write(bw, binary.LittleEndian, uint32(t.ID)); err != nil {
			return err
		}
		if err := writeString(bw, t.Artist); err != nil {
			return err
		}
		if err := writeString(bw, t.Title); err != nil {
			return err
		}
		if err := writeString(bw, t.Album); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(t.DurationMs)); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(data.Fingerprints))); err != nil {
		return err
	}
	for _, fp := range data.Fingerprints {
		if err := binary.Write(bw, binary.LittleEndian, uint32(fp.ID)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(fp.TrackID)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(fp.SequenceNo)); err != nil {
			return err
		}
		bits, err := fp.Bits.MarshalBinary()
		if err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(bits))); err != nil {
			return err
		}
		if _, err := bw.Write(bits); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(data.HashBins))); err != nil {
		return err
	}
	for _, bin := range data.HashBins {
		if err := binary.Write(bw, binary.LittleEndian, uint8(bin.Table)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, bin.Key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(bin.TrackID)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(bin.FingerprintID)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// preallocCount caps a section's initial slice capacity. Section counts
// come from an untrusted header; slices grow via append past the cap, so a
// corrupt count fails on decode instead of forcing a huge allocation.
func preallocCount(count uint32) int {
	const maxPrealloc = 1 << 16
	if count > maxPrealloc {
		return maxPrealloc
	}
	return int(count)
}

func readPayload(r io.Reader) (store.SnapshotData, error) {
	br := bufio.NewReader(r)
	var data store.SnapshotData

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return data, fmt.Errorf("snapshot: read track count: %w", err)
	}
	data.Tracks = make([]model.Track, 0, preallocCount(count))
	for i := uint32(0); i < count; i++ {
		var id, duration uint32
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return data, fmt.Errorf("snapshot: read track %d: %w", i, err)
		}
		artist, err := readString(br)
		if err != nil {
			return data, fmt.Errorf("snapshot: read track %d: %w", i, err)
		}
		title, err := readString(br)
		if err != nil {
			return data, fmt.Errorf("snapshot: read track %d: %w", i, err)
		}
		album, err := readString(br)
		if err != nil {
			return data, fmt.Errorf("snapshot: read track %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &duration); err != nil {
			return data, fmt.Errorf("snapshot: read track %d: %w", i, err)
		}
		data.Tracks = append(data.Tracks, model.Track{
			ID:         model.TrackID(id),
			Artist:     artist,
			Title:      title,
			Album:      album,
			DurationMs: int(duration),
		})
	}

	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return data, fmt.Errorf("snapshot: read fingerprint count: %w", err)
	}
	data.Fingerprints = make([]model.Fingerprint, 0, preallocCount(count))
	for i := uint32(0); i < count; i++ {
		var id, trackID, seq, bitsLen uint32
		if err := binary.Read(br, binary.LittleEndian, &id); err != nil {
			return data, fmt.Errorf("snapshot: read fingerprint %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &trackID); err != nil {
			return data, fmt.Errorf("snapshot: read fingerprint %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &seq); err != nil {
			return data, fmt.Errorf("snapshot: read fingerprint %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &bitsLen); err != nil {
			return data, fmt.Errorf("snapshot: read fingerprint %d: %w", i, err)
		}
		// CopyN grows the buffer only as bytes actually arrive, so a
		// lying length fails at EOF instead of allocating up front.
		var blob bytes.Buffer
		if _, err := io.CopyN(&blob, br, int64(bitsLen)); err != nil {
			return data, fmt.Errorf("snapshot: read fingerprint %d bits: %w", i, err)
		}
		bits := &bitvec.Vector{}
		if err := bits.UnmarshalBinary(blob.Bytes()); err != nil {
			return data, fmt.Errorf("snapshot: fingerprint %d: %w", i, err)
		}
		data.Fingerprints = append(data.Fingerprints, model.Fingerprint{
			ID:         model.FingerprintID(id),
			TrackID:    model.TrackID(trackID),
			SequenceNo: int(seq),
			Bits:       bits,
		})
	}

	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return data, fmt.Errorf("snapshot: read hash bin count: %w", err)
	}
	data.HashBins = make([]model.HashBin, 0, preallocCount(count))
	for i := uint32(0); i < count; i++ {
		var table uint8
		var key uint64
		var trackID, fpID uint32
		if err := binary.Read(br, binary.LittleEndian, &table); err != nil {
			return data, fmt.Errorf("snapshot: read hash bin %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &key); err != nil {
			return data, fmt.Errorf("snapshot: read hash bin %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &trackID); err != nil {
			return data, fmt.Errorf("snapshot: read hash bin %d: %w", i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, &fpID); err != nil {
			return data, fmt.Errorf("snapshot: read hash bin %d: %w", i, err)
		}
		data.HashBins = append(data.HashBins, model.HashBin{
			Table:         int(table),
			Key:           key,
			TrackID:       model.TrackID(trackID),
			FingerprintID: model.FingerprintID(fpID),
		})
	}

	return data, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
