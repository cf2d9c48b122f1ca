package findsimilar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/unexpectedexception/findsimilar/audio"
	"github.com/unexpectedexception/findsimilar/engine"
	"github.com/unexpectedexception/findsimilar/fingerprint"
	"github.com/unexpectedexception/findsimilar/minhash"
	"github.com/unexpectedexception/findsimilar/model"
	"github.com/unexpectedexception/findsimilar/snapshot"
	"github.com/unexpectedexception/findsimilar/store"
)

// FindSimilar is an audio track identification catalog. Tracks are inserted
// as wavelet fingerprints indexed under locality-sensitive hash buckets, and
// queried with short audio clips that return ranked approximate matches.
type FindSimilar struct {
	store       store.Store
	pipeline    *fingerprint.Pipeline
	mh          *minhash.MinHash
	coordinator *engine.Coordinator
	opts        options
}

// New creates a FindSimilar instance on top of the given store.
//
// The fingerprint pipeline, the permutation table and the LSH layout are
// validated against each other here; a mismatch returns ErrInvalidConfig
// wrapped around the detail.
func New(s store.Store, optFns ...Option) (*FindSimilar, error) {
	o := applyOptions(optFns)

	pipeline, err := fingerprint.New(o.fingerprintOptFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	perms := o.permutations
	if perms == nil {
		perms, err = minhash.Generate(o.hashTables*o.hashKeys, pipeline.BitLength(), o.permutationSeed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	mh, err := minhash.New(perms, o.hashTables, o.hashKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	coordinator, err := engine.New(s, pipeline, mh, func(e *engine.Options) {
		e.ThresholdTables = o.thresholdTables
		e.MaxConcurrency = o.workers
		e.InsertLimit = o.insertLimit
	})
	if err != nil {
		return nil, translateError(err)
	}

	return &FindSimilar{
		store:       s,
		pipeline:    pipeline,
		mh:          mh,
		coordinator: coordinator,
		opts:        o,
	}, nil
}

// NewFromSnapshotFile loads a catalog snapshot into a MemoryStore and
// creates a FindSimilar instance on top of it. The configured permutation
// table must be the one the snapshot was built with; use
// VerifyPermutationChecksum to assert that.
func NewFromSnapshotFile(path string, optFns ...Option) (*FindSimilar, error) {
	ms, err := snapshot.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(ms, optFns...)
}

// Insert fingerprints the given audio samples and stores the track.
// Samples must be mono at the pipeline's sample rate.
//
// It returns the assigned track id and the number of fingerprints stored.
// On partial failure the track is rolled back and never becomes queryable.
func (fs *FindSimilar) Insert(ctx context.Context, track model.Track, samples []float64) (model.TrackID, int, error) {
	start := time.Now()
	trackID, n, err := fs.coordinator.Insert(ctx, track, samples)
	err = translateError(err)
	fs.opts.metricsCollector.RecordInsert(n, time.Since(start), err)
	fs.opts.logger.LogInsert(ctx, uint32(trackID), n, err)
	return trackID, n, err
}

// InsertFile decodes a WAV file and inserts it as a track. The audio is
// resampled to the pipeline's sample rate.
func (fs *FindSimilar) InsertFile(ctx context.Context, track model.Track, path string, optFns ...func(o *audio.Options)) (model.TrackID, int, error) {
	start := time.Now()
	trackID, n, err := fs.insertFile(ctx, track, path, optFns)
	err = translateError(err)
	fs.opts.metricsCollector.RecordInsert(n, time.Since(start), err)
	fs.opts.logger.LogInsert(ctx, uint32(trackID), n, err)
	return trackID, n, err
}

func (fs *FindSimilar) insertFile(ctx context.Context, track model.Track, path string, optFns []func(o *audio.Options)) (model.TrackID, int, error) {
	res, err := fs.pipeline.FromFile(path, optFns...)
	if err != nil {
		return 0, 0, err
	}
	return fs.coordinator.InsertFingerprints(ctx, track, res.Fingerprints)
}

// InsertBlob fetches a WAV blob from the configured blob store and inserts
// it as a track. Requires WithBlobStore.
func (fs *FindSimilar) InsertBlob(ctx context.Context, track model.Track, name string, optFns ...func(o *audio.Options)) (model.TrackID, int, error) {
	start := time.Now()
	trackID, n, err := fs.insertBlob(ctx, track, name, optFns)
	err = translateError(err)
	fs.opts.metricsCollector.RecordInsert(n, time.Since(start), err)
	fs.opts.logger.LogInsert(ctx, uint32(trackID), n, err)
	return trackID, n, err
}

func (fs *FindSimilar) insertBlob(ctx context.Context, track model.Track, name string, optFns []func(o *audio.Options)) (model.TrackID, int, error) {
	samples, err := fs.decodeBlob(ctx, name, optFns)
	if err != nil {
		return 0, 0, err
	}
	return fs.coordinator.Insert(ctx, track, samples)
}

func (fs *FindSimilar) decodeBlob(ctx context.Context, name string, optFns []func(o *audio.Options)) ([]float64, error) {
	if fs.opts.blobs == nil {
		return nil, ErrNoBlobStore
	}

	rc, err := fs.opts.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The WAV decoder needs a seeker, so the blob is buffered in memory.
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	withRate := append([]func(o *audio.Options){func(o *audio.Options) {
		o.TargetSampleRate = fs.pipeline.SampleRate()
	}}, optFns...)

	samples, _, err := audio.Decode(bytes.NewReader(raw), withRate...)
	return samples, err
}

// BatchItem is one track to ingest from a WAV file.
type BatchItem = engine.BatchItem

// BatchResult reports one batch item's outcome. Results are positionally
// aligned with the submitted items.
type BatchResult = engine.BatchResult

// InsertBatch ingests WAV files with bounded concurrency, honoring the
// configured rate limit. A failed item never aborts its siblings.
func (fs *FindSimilar) InsertBatch(ctx context.Context, items []BatchItem) []BatchResult {
	start := time.Now()
	results := fs.coordinator.InsertBatch(ctx, items)

	failed := 0
	for i := range results {
		results[i].Err = translateError(results[i].Err)
		if results[i].Err != nil {
			failed++
		}
	}
	fs.opts.metricsCollector.RecordBatchInsert(len(items), failed, time.Since(start))
	fs.opts.logger.LogBatchInsert(ctx, len(items), failed)
	return results
}

// Query fingerprints the given audio samples and returns catalog matches
// ranked best first. Samples must be mono at the pipeline's sample rate.
// A clip too short to produce a fingerprint returns an empty result.
func (fs *FindSimilar) Query(ctx context.Context, samples []float64) ([]model.Match, error) {
	start := time.Now()
	matches, err := fs.coordinator.Search(ctx, samples)
	err = translateError(err)
	fs.opts.metricsCollector.RecordQuery(len(matches), time.Since(start), err)
	fs.opts.logger.LogQuery(ctx, len(matches), time.Since(start), err)
	return matches, err
}

// QueryFile decodes a WAV file and queries the catalog with it. Offset and
// duration options select a sub-clip of the file.
//
// Example, recognize ten seconds starting one minute in:
//
//	matches, err := fs.QueryFile(ctx, "clip.wav", func(o *audio.Options) {
//	    o.Offset = time.Minute
//	    o.Duration = 10 * time.Second
//	})
func (fs *FindSimilar) QueryFile(ctx context.Context, path string, optFns ...func(o *audio.Options)) ([]model.Match, error) {
	start := time.Now()
	matches, err := fs.queryFile(ctx, path, optFns)
	err = translateError(err)
	fs.opts.metricsCollector.RecordQuery(len(matches), time.Since(start), err)
	fs.opts.logger.LogQuery(ctx, len(matches), time.Since(start), err)
	return matches, err
}

func (fs *FindSimilar) queryFile(ctx context.Context, path string, optFns []func(o *audio.Options)) ([]model.Match, error) {
	res, err := fs.pipeline.FromFile(path, optFns...)
	if err != nil {
		return nil, err
	}
	return fs.coordinator.SearchFingerprints(ctx, res.Fingerprints)
}

// Stats reports catalog sizes.
func (fs *FindSimilar) Stats(ctx context.Context) (store.Stats, error) {
	stats, err := fs.coordinator.Stats(ctx)
	return stats, translateError(err)
}

// Permutations exposes the active permutation table, e.g. for persisting it
// next to the catalog with its Save method.
func (fs *FindSimilar) Permutations() *minhash.Permutations {
	return fs.mh.Permutations()
}

// VerifyPermutationChecksum asserts that the active permutation table
// matches a checksum recorded when the catalog was created. A mismatch
// means every stored signature disagrees with fresh ones, which corrupts
// query results silently; verify at startup.
func (fs *FindSimilar) VerifyPermutationChecksum(expected uint64) error {
	actual := fs.Permutations().Checksum()
	if actual != expected {
		return &ErrPermutationChecksum{Expected: expected, Actual: actual}
	}
	return nil
}

// SaveSnapshot writes the catalog to a snapshot file. Only memory-backed
// stores support snapshots; persistent stores carry their own durability.
func (fs *FindSimilar) SaveSnapshot(ctx context.Context, path string, optFns ...func(o *snapshot.Options)) error {
	start := time.Now()
	err := fs.saveSnapshot(path, optFns)
	fs.opts.metricsCollector.RecordSnapshot(time.Since(start), err)
	fs.opts.logger.LogSnapshot(ctx, path, err)
	return err
}

func (fs *FindSimilar) saveSnapshot(path string, optFns []func(o *snapshot.Options)) error {
	ms, ok := fs.store.(*store.MemoryStore)
	if !ok {
		return fmt.Errorf("%w: %T", ErrSnapshotUnsupported, fs.store)
	}
	return snapshot.SaveFile(path, ms, optFns...)
}

// Close releases the underlying store.
func (fs *FindSimilar) Close() error {
	return fs.store.Close()
}
