// Package blobstore abstracts access to immutable data blobs such as audio
// files and catalog snapshots behind a small interface with local-filesystem
// and S3-compatible object-storage implementations.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. Implementations must
// return errors that satisfy errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// BlobStore reads and writes named immutable blobs.
type BlobStore interface {
	// Open opens a blob for reading. The caller must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Put stores a blob under name, replacing any previous content.
	// size is the number of bytes in r; pass -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error
}
