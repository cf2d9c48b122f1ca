package findsimilar

import (
	"errors"
	"fmt"

	"github.com/unexpectedexception/findsimilar/engine"
	"github.com/unexpectedexception/findsimilar/store"
)

var (
	// ErrNotFound is returned when a track or fingerprint is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned at construction when the fingerprint,
	// Min-Hash and engine settings disagree.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoBlobStore is returned by blob-backed operations when no blob
	// store was configured.
	ErrNoBlobStore = errors.New("no blob store configured")

	// ErrSnapshotUnsupported is returned when a snapshot is requested for
	// a store that does not support it.
	ErrSnapshotUnsupported = errors.New("store does not support snapshots")
)

// ErrPermutationChecksum indicates that a loaded permutation table does not
// match the one the catalog was built with.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrPermutationChecksum struct {
	Expected uint64
	Actual   uint64
	cause    error
}

func (e *ErrPermutationChecksum) Error() string {
	return fmt.Sprintf("permutation checksum mismatch: expected %#x, got %#x", e.Expected, e.Actual)
}

func (e *ErrPermutationChecksum) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, engine.ErrConfigMismatch) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return err
}
