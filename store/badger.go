package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/unexpectedexception/findsimilar/bitvec"
	"github.com/unexpectedexception/findsimilar/model"
)

// Key prefixes. Hash bins are addressed by (table, key, fingerprint) so a
// bucket lookup is a single prefix scan.
const (
	prefixTrack     = 't' // t + trackID(4)            -> track metadata
	prefixFp        = 'f' // f + fpID(4)               -> fingerprint
	prefixBin       = 'h' // h + table(1) + key(8) + fpID(4) -> trackID(4)
	prefixTrackFps  = 'F' // F + trackID(4) + fpID(4)  -> nil
	prefixTrackBins = 'b' // b + trackID(4)            -> bin list
)

// BadgerStore is a disk-backed Store on top of an embedded Badger key-value
// database. Each bulk insert runs in a single Badger transaction, which
// gives the per-call atomicity the engine relies on.
type BadgerStore struct {
	db       *badger.DB
	trackSeq *badger.Sequence
	fpSeq    *badger.Sequence
}

// NewBadgerStore opens (or creates) a store rooted at dir.
func NewBadgerStore(dir string, optFns ...func(o *badger.Options)) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %s: %w", dir, err)
	}

	trackSeq, err := db.GetSequence([]byte("!seq:track"), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: track sequence: %w", err)
	}
	fpSeq, err := db.GetSequence([]byte("!seq:fp"), 1024)
	if err != nil {
		_ = trackSeq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("store: fingerprint sequence: %w", err)
	}

	return &BadgerStore{db: db, trackSeq: trackSeq, fpSeq: fpSeq}, nil
}

// InsertTrack implements Store.
func (s *BadgerStore) InsertTrack(ctx context.Context, t model.Track) (model.TrackID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := s.trackSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("store: next track id: %w", err)
	}
	t.ID = model.TrackID(n + 1) // keep 0 as the unassigned sentinel

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(trackKey(t.ID), encodeTrack(t))
	})
	if err != nil {
		return 0, fmt.Errorf("store: insert track: %w", err)
	}
	return t.ID, nil
}

// InsertFingerprints implements Store.
func (s *BadgerStore) InsertFingerprints(ctx context.Context, fps []model.Fingerprint) ([]model.FingerprintID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]model.FingerprintID, len(fps))
	for i := range ids {
		n, err := s.fpSeq.Next()
		if err != nil {
			return nil, fmt.Errorf("store: next fingerprint id: %w", err)
		}
		ids[i] = model.FingerprintID(n + 1)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for i, fp := range fps {
			fp.ID = ids[i]
			encoded, err := encodeFingerprint(fp)
			if err != nil {
				return err
			}
			if err := txn.Set(fpKey(fp.ID), encoded); err != nil {
				return err
			}
			if err := txn.Set(trackFpKey(fp.TrackID, fp.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: insert fingerprints: %w", err)
	}
	return ids, nil
}

// InsertHashBins implements Store.
func (s *BadgerStore) InsertHashBins(ctx context.Context, bins []model.HashBin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(bins) == 0 {
		return nil
	}

	byTrack := make(map[model.TrackID][]model.HashBin)
	for _, bin := range bins {
		byTrack[bin.TrackID] = append(byTrack[bin.TrackID], bin)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		var trackID [4]byte
		for _, bin := range bins {
			binary.BigEndian.PutUint32(trackID[:], uint32(bin.TrackID))
			if err := txn.Set(binKey(bin.Table, bin.Key, bin.FingerprintID), trackID[:]); err != nil {
				return err
			}
		}
		// Per-track back-references so DeleteTrack can find its bins.
		for id, trackBins := range byTrack {
			existing, err := getValue(txn, trackBinsKey(id))
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(trackBinsKey(id), appendBinRefs(existing, trackBins)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: insert hash bins: %w", err)
	}
	return nil
}

// TracksByID implements Store.
func (s *BadgerStore) TracksByID(ctx context.Context, ids []model.TrackID) (map[model.TrackID]model.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[model.TrackID]model.Track, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			val, err := getValue(txn, trackKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			t, err := decodeTrack(id, val)
			if err != nil {
				return err
			}
			out[id] = t
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read tracks: %w", err)
	}
	return out, nil
}

// FingerprintsByID implements Store.
func (s *BadgerStore) FingerprintsByID(ctx context.Context, ids []model.FingerprintID) (map[model.FingerprintID]model.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[model.FingerprintID]model.Fingerprint, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			val, err := getValue(txn, fpKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			fp, err := decodeFingerprint(id, val)
			if err != nil {
				return err
			}
			out[id] = fp
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read fingerprints: %w", err)
	}
	return out, nil
}

// LookupHashBin implements Store.
func (s *BadgerStore) LookupHashBin(ctx context.Context, table int, key uint64) ([]model.HashBin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := binPrefix(table, key)
	var bins []model.HashBin
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			fpID := model.FingerprintID(binary.BigEndian.Uint32(k[len(k)-4:]))

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) != 4 {
				return fmt.Errorf("corrupt hash bin value: %d bytes", len(val))
			}
			bins = append(bins, model.HashBin{
				Table:         table,
				Key:           key,
				TrackID:       model.TrackID(binary.BigEndian.Uint32(val)),
				FingerprintID: fpID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: lookup hash bin: %w", err)
	}
	return bins, nil
}

// DeleteTrack implements Store.
func (s *BadgerStore) DeleteTrack(ctx context.Context, id model.TrackID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(trackKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		// Hash bins via the per-track back-reference list.
		refs, err := getValue(txn, trackBinsKey(id))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		for _, bin := range decodeBinRefs(id, refs) {
			if err := txn.Delete(binKey(bin.Table, bin.Key, bin.FingerprintID)); err != nil {
				return err
			}
		}
		if err := txn.Delete(trackBinsKey(id)); err != nil {
			return err
		}

		// Fingerprints via the track->fingerprint index.
		prefix := trackFpPrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var fpKeys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			fpID := model.FingerprintID(binary.BigEndian.Uint32(k[len(k)-4:]))
			fpKeys = append(fpKeys, k, fpKey(fpID))
		}
		for _, k := range fpKeys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		return txn.Delete(trackKey(id))
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: delete track %d: %w", id, err)
	}
	return nil
}

// Stats implements Store. It scans key prefixes; intended for diagnostics,
// not the hot path.
func (s *BadgerStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		stats.Tracks = countPrefix(txn, []byte{prefixTrack})
		stats.Fingerprints = countPrefix(txn, []byte{prefixFp})
		stats.HashBins = countPrefix(txn, []byte{prefixBin})
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return stats, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	_ = s.trackSeq.Release()
	_ = s.fpSeq.Release()
	return s.db.Close()
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var n int
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Key builders.

func trackKey(id model.TrackID) []byte {
	k := make([]byte, 5)
	k[0] = prefixTrack
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k
}

func fpKey(id model.FingerprintID) []byte {
	k := make([]byte, 5)
	k[0] = prefixFp
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k
}

func binPrefix(table int, key uint64) []byte {
	k := make([]byte, 10)
	k[0] = prefixBin
	k[1] = byte(table)
	binary.BigEndian.PutUint64(k[2:], key)
	return k
}

func binKey(table int, key uint64, fpID model.FingerprintID) []byte {
	k := make([]byte, 14)
	copy(k, binPrefix(table, key))
	binary.BigEndian.PutUint32(k[10:], uint32(fpID))
	return k
}

func trackFpPrefix(id model.TrackID) []byte {
	k := make([]byte, 5)
	k[0] = prefixTrackFps
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k
}

func trackFpKey(trackID model.TrackID, fpID model.FingerprintID) []byte {
	k := make([]byte, 9)
	copy(k, trackFpPrefix(trackID))
	binary.BigEndian.PutUint32(k[5:], uint32(fpID))
	return k
}

func trackBinsKey(id model.TrackID) []byte {
	k := make([]byte, 5)
	k[0] = prefixTrackBins
	binary.BigEndian.PutUint32(k[1:], uint32(id))
	return k
}

// Value encodings.

func encodeTrack(t model.Track) []byte {
	buf := make([]byte, 0, 12+len(t.Artist)+len(t.Title)+len(t.Album))
	buf = appendString(buf, t.Artist)
	buf = appendString(buf, t.Title)
	buf = appendString(buf, t.Album)
	buf = binary.BigEndian.AppendUint32(buf, uint32(t.DurationMs))
	return buf
}

func decodeTrack(id model.TrackID, data []byte) (model.Track, error) {
	t := model.Track{ID: id}
	var err error
	if t.Artist, data, err = readString(data); err != nil {
		return t, fmt.Errorf("corrupt track %d: %w", id, err)
	}
	if t.Title, data, err = readString(data); err != nil {
		return t, fmt.Errorf("corrupt track %d: %w", id, err)
	}
	if t.Album, data, err = readString(data); err != nil {
		return t, fmt.Errorf("corrupt track %d: %w", id, err)
	}
	if len(data) != 4 {
		return t, fmt.Errorf("corrupt track %d: trailing %d bytes", id, len(data))
	}
	t.DurationMs = int(binary.BigEndian.Uint32(data))
	return t, nil
}

func encodeFingerprint(fp model.Fingerprint) ([]byte, error) {
	bits, err := fp.Bits.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 8+len(bits))
	buf = binary.BigEndian.AppendUint32(buf, uint32(fp.TrackID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(fp.SequenceNo))
	return append(buf, bits...), nil
}

func decodeFingerprint(id model.FingerprintID, data []byte) (model.Fingerprint, error) {
	if len(data) < 8 {
		return model.Fingerprint{}, fmt.Errorf("corrupt fingerprint %d: %d bytes", id, len(data))
	}
	fp := model.Fingerprint{
		ID:         id,
		TrackID:    model.TrackID(binary.BigEndian.Uint32(data)),
		SequenceNo: int(binary.BigEndian.Uint32(data[4:])),
		Bits:       &bitvec.Vector{},
	}
	if err := fp.Bits.UnmarshalBinary(data[8:]); err != nil {
		return model.Fingerprint{}, fmt.Errorf("corrupt fingerprint %d: %w", id, err)
	}
	return fp, nil
}

// appendBinRefs appends 13-byte (table, key, fingerprint) entries to an
// existing back-reference list.
func appendBinRefs(existing []byte, bins []model.HashBin) []byte {
	out := make([]byte, len(existing), len(existing)+13*len(bins))
	copy(out, existing)
	for _, bin := range bins {
		out = append(out, byte(bin.Table))
		out = binary.BigEndian.AppendUint64(out, bin.Key)
		out = binary.BigEndian.AppendUint32(out, uint32(bin.FingerprintID))
	}
	return out
}

func decodeBinRefs(trackID model.TrackID, data []byte) []model.HashBin {
	bins := make([]model.HashBin, 0, len(data)/13)
	for len(data) >= 13 {
		bins = append(bins, model.HashBin{
			Table:         int(data[0]),
			Key:           binary.BigEndian.Uint64(data[1:]),
			TrackID:       trackID,
			FingerprintID: model.FingerprintID(binary.BigEndian.Uint32(data[9:])),
		})
		data = data[13:]
	}
	return bins
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("truncated string header")
	}
	n := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if len(data) < n {
		return "", nil, fmt.Errorf("truncated string body")
	}
	return string(data[:n]), data[n:], nil
}
