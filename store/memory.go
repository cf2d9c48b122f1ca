package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/unexpectedexception/findsimilar/model"
)

// bucketKey addresses one LSH bucket: (table, 64-bit key).
type bucketKey struct {
	table int
	key   uint64
}

// MemoryStore is an in-memory Store. Bucket posting lists are Roaring
// bitmaps of fingerprint IDs, which keeps lookups cheap for hot buckets
// shared by many fingerprints.
type MemoryStore struct {
	mu        sync.RWMutex
	tracks    map[model.TrackID]model.Track
	fps       map[model.FingerprintID]model.Fingerprint
	trackFps  map[model.TrackID][]model.FingerprintID
	buckets   map[bucketKey]*roaring.Bitmap
	trackBins map[model.TrackID][]model.HashBin
	binCount  int
	nextTrack uint32
	nextFp    uint32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks:    make(map[model.TrackID]model.Track),
		fps:       make(map[model.FingerprintID]model.Fingerprint),
		trackFps:  make(map[model.TrackID][]model.FingerprintID),
		buckets:   make(map[bucketKey]*roaring.Bitmap),
		trackBins: make(map[model.TrackID][]model.HashBin),
	}
}

// InsertTrack implements Store.
func (s *MemoryStore) InsertTrack(_ context.Context, t model.Track) (model.TrackID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTrack++
	t.ID = model.TrackID(s.nextTrack)
	s.tracks[t.ID] = t
	return t.ID, nil
}

// InsertFingerprints implements Store.
func (s *MemoryStore) InsertFingerprints(_ context.Context, fps []model.Fingerprint) ([]model.FingerprintID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]model.FingerprintID, len(fps))
	for i, fp := range fps {
		if _, ok := s.tracks[fp.TrackID]; !ok {
			return nil, fmt.Errorf("%w: track %d", ErrNotFound, fp.TrackID)
		}
		s.nextFp++
		fp.ID = model.FingerprintID(s.nextFp)
		s.fps[fp.ID] = fp
		s.trackFps[fp.TrackID] = append(s.trackFps[fp.TrackID], fp.ID)
		ids[i] = fp.ID
	}
	return ids, nil
}

// InsertHashBins implements Store.
func (s *MemoryStore) InsertHashBins(_ context.Context, bins []model.HashBin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bin := range bins {
		if _, ok := s.fps[bin.FingerprintID]; !ok {
			return fmt.Errorf("%w: fingerprint %d", ErrNotFound, bin.FingerprintID)
		}
	}
	for _, bin := range bins {
		bk := bucketKey{table: bin.Table, key: bin.Key}
		bm, ok := s.buckets[bk]
		if !ok {
			bm = roaring.New()
			s.buckets[bk] = bm
		}
		bm.Add(uint32(bin.FingerprintID))
		s.trackBins[bin.TrackID] = append(s.trackBins[bin.TrackID], bin)
		s.binCount++
	}
	return nil
}

// TracksByID implements Store.
func (s *MemoryStore) TracksByID(_ context.Context, ids []model.TrackID) (map[model.TrackID]model.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.TrackID]model.Track, len(ids))
	for _, id := range ids {
		if t, ok := s.tracks[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

// FingerprintsByID implements Store.
func (s *MemoryStore) FingerprintsByID(_ context.Context, ids []model.FingerprintID) (map[model.FingerprintID]model.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.FingerprintID]model.Fingerprint, len(ids))
	for _, id := range ids {
		if fp, ok := s.fps[id]; ok {
			out[id] = fp
		}
	}
	return out, nil
}

// LookupHashBin implements Store.
func (s *MemoryStore) LookupHashBin(_ context.Context, table int, key uint64) ([]model.HashBin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.buckets[bucketKey{table: table, key: key}]
	if !ok {
		return nil, nil
	}

	bins := make([]model.HashBin, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		fpID := model.FingerprintID(it.Next())
		fp, ok := s.fps[fpID]
		if !ok {
			continue
		}
		bins = append(bins, model.HashBin{
			Table:         table,
			Key:           key,
			TrackID:       fp.TrackID,
			FingerprintID: fpID,
		})
	}
	return bins, nil
}

// DeleteTrack implements Store.
func (s *MemoryStore) DeleteTrack(_ context.Context, id model.TrackID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[id]; !ok {
		return ErrNotFound
	}

	for _, bin := range s.trackBins[id] {
		bk := bucketKey{table: bin.Table, key: bin.Key}
		if bm, ok := s.buckets[bk]; ok {
			bm.Remove(uint32(bin.FingerprintID))
			if bm.IsEmpty() {
				delete(s.buckets, bk)
			}
		}
		s.binCount--
	}
	for _, fpID := range s.trackFps[id] {
		delete(s.fps, fpID)
	}

	delete(s.trackBins, id)
	delete(s.trackFps, id)
	delete(s.tracks, id)
	return nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Tracks:       len(s.tracks),
		Fingerprints: len(s.fps),
		HashBins:     s.binCount,
	}, nil
}

// Close implements Store. It is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// SnapshotData is a serializable dump of a MemoryStore's contents.
type SnapshotData struct {
	Tracks       []model.Track
	Fingerprints []model.Fingerprint
	HashBins     []model.HashBin
}

// Snapshot returns a consistent dump of the store, ordered by ID so that
// snapshots of equal catalogs are byte-identical after encoding.
func (s *MemoryStore) Snapshot() SnapshotData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := SnapshotData{
		Tracks:       make([]model.Track, 0, len(s.tracks)),
		Fingerprints: make([]model.Fingerprint, 0, len(s.fps)),
		HashBins:     make([]model.HashBin, 0, s.binCount),
	}
	for _, t := range s.tracks {
		data.Tracks = append(data.Tracks, t)
	}
	sort.Slice(data.Tracks, func(i, j int) bool { return data.Tracks[i].ID < data.Tracks[j].ID })

	for _, fp := range s.fps {
		data.Fingerprints = append(data.Fingerprints, fp)
	}
	sort.Slice(data.Fingerprints, func(i, j int) bool { return data.Fingerprints[i].ID < data.Fingerprints[j].ID })

	trackIDs := make([]model.TrackID, 0, len(s.trackBins))
	for id := range s.trackBins {
		trackIDs = append(trackIDs, id)
	}
	sort.Slice(trackIDs, func(i, j int) bool { return trackIDs[i] < trackIDs[j] })
	for _, id := range trackIDs {
		data.HashBins = append(data.HashBins, s.trackBins[id]...)
	}

	return data
}

// NewMemoryStoreFromSnapshot rebuilds a store from a snapshot dump.
func NewMemoryStoreFromSnapshot(data SnapshotData) (*MemoryStore, error) {
	s := NewMemoryStore()

	for _, t := range data.Tracks {
		if t.ID == 0 {
			return nil, fmt.Errorf("store: snapshot track with zero ID")
		}
		s.tracks[t.ID] = t
		if uint32(t.ID) > s.nextTrack {
			s.nextTrack = uint32(t.ID)
		}
	}
	for _, fp := range data.Fingerprints {
		if _, ok := s.tracks[fp.TrackID]; !ok {
			return nil, fmt.Errorf("store: snapshot fingerprint %d references unknown track %d", fp.ID, fp.TrackID)
		}
		s.fps[fp.ID] = fp
		s.trackFps[fp.TrackID] = append(s.trackFps[fp.TrackID], fp.ID)
		if uint32(fp.ID) > s.nextFp {
			s.nextFp = uint32(fp.ID)
		}
	}
	if err := s.InsertHashBins(context.Background(), data.HashBins); err != nil {
		return nil, err
	}

	return s, nil
}
