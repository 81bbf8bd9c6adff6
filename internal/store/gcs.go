package store

import (
	"context"
	"errors"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

const gcsTimeout = 30 * time.Second

// GCSStore is a Cloud Storage-backed implementation of Store.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a new GCSStore with the specified bucket. Credentials come
// from the environment (GOOGLE_APPLICATION_CREDENTIALS or metadata server).
func NewGCS(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
	}, nil
}

// Put uploads data to the object named key.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// Get downloads the object named key.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsTimeout)
	defer cancel()

	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// Bucket returns the bucket name, for logging.
func (s *GCSStore) Bucket() string {
	return s.bucket
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
