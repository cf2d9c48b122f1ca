// Package store defines the persistence contract of the catalog (tracks,
// fingerprints and LSH hash bins) and provides in-memory and disk-backed
// implementations.
package store

import (
	"context"
	"errors"

	"github.com/unexpectedexception/findsimilar/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Stats summarizes the catalog size.
type Stats struct {
	Tracks       int
	Fingerprints int
	HashBins     int
}

// Store persists the catalog. Implementations must guarantee per-call
// atomicity of each bulk insert; cross-call transaction discipline belongs
// to the caller (see engine.Coordinator's compensation on partial failure).
//
// Implementations must be safe for concurrent use.
type Store interface {
	// InsertTrack persists track metadata and returns the assigned ID.
	InsertTrack(ctx context.Context, t model.Track) (model.TrackID, error)

	// InsertFingerprints persists the fingerprints in one call, assigning
	// IDs in input order. Every fingerprint must carry its TrackID and
	// SequenceNo.
	InsertFingerprints(ctx context.Context, fps []model.Fingerprint) ([]model.FingerprintID, error)

	// InsertHashBins persists all hash bins in one call.
	InsertHashBins(ctx context.Context, bins []model.HashBin) error

	// TracksByID reads track metadata. Missing IDs are absent from the
	// result, not an error.
	TracksByID(ctx context.Context, ids []model.TrackID) (map[model.TrackID]model.Track, error)

	// FingerprintsByID reads stored fingerprints. Missing IDs are absent
	// from the result, not an error.
	FingerprintsByID(ctx context.Context, ids []model.FingerprintID) (map[model.FingerprintID]model.Fingerprint, error)

	// LookupHashBin returns every hash bin sharing the exact (table, key).
	LookupHashBin(ctx context.Context, table int, key uint64) ([]model.HashBin, error)

	// DeleteTrack removes a track together with all its fingerprints and
	// hash bins. Returns ErrNotFound if the track does not exist.
	DeleteTrack(ctx context.Context, id model.TrackID) error

	// Stats returns catalog counters.
	Stats(ctx context.Context) (Stats, error)

	// Close releases underlying resources.
	Close() error
}
