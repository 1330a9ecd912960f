package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store serves rule bundles out of a MinIO / S3-compatible bucket. Objects
// are keyed "<prefix><bundle-id>.json".
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the bundle bucket. Unlike artifact sinks, the bucket is a
// distribution source and must already exist.
func New(ctx context.Context, endpoint, region, bucket, prefix, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bundle bucket %q not found", bucket)
	}

	return &Store{client: cli, bucket: bucket, prefix: prefix}, nil
}

// FetchBundle downloads the raw bundle object.
func (s *Store) FetchBundle(ctx context.Context, bundleID string) ([]byte, error) {
	key := s.prefix + bundleID + ".json"
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read bundle object %s: %w", key, err)
	}
	return data, nil
}

// Check implements the health-checker contract: the bucket must be
// reachable.
func (s *Store) Check(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bundle bucket %q not found", s.bucket)
	}
	return nil
}
