package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements BlobStore against any S3-compatible object store
// (MinIO, AWS S3, Ceph RGW, ...).
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioOptions configure the connection.
type MinioOptions struct {
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
}

// NewMinioStore connects to an S3-compatible endpoint.
func NewMinioStore(endpoint, bucket string, optFns ...func(o *MinioOptions)) (*MinioStore, error) {
	opts := MinioOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: connect %s: %w", endpoint, err)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// NewMinioStoreFromClient wraps an existing client; useful for tests and
// custom credential setups.
func NewMinioStoreFromClient(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// Open implements BlobStore.
func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}
	// GetObject is lazy; surface missing objects on Open, not first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateMinioError(err)
	}
	return obj, nil
}

// Put implements BlobStore.
func (s *MinioStore) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{})
	if err != nil {
		return translateMinioError(err)
	}
	return nil
}

func translateMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", ErrNotFound, resp.Key)
	}
	return err
}
