// Package gcs archives loader reports in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the bucket and upload tuning.
type Config struct {
	Bucket string
	// ChunkSize overrides the client's resumable upload chunk size when > 0.
	ChunkSize int
}

// BlobStore writes loader reports to a GCS bucket.
type BlobStore struct {
	client    *storage.Client
	bucket    string
	chunkSize int
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, chunkSize: cfg.ChunkSize}, nil
}

// PutObject uploads r as key and returns its gs:// URI. The object only
// becomes visible once the upload completes.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	name, err := objectName(key)
	if err != nil {
		return "", err
	}

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if s.chunkSize > 0 {
		w.ChunkSize = s.chunkSize
	}
	if _, err := io.Copy(w, r); err != nil {
		// Closing after a failed copy aborts the upload; its error adds nothing.
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// objectName normalizes key to a slash-separated object name without a
// leading slash.
func objectName(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("path is required")
	}
	name := strings.TrimPrefix(path.Clean("/"+key), "/")
	if name == "" {
		return "", fmt.Errorf("invalid object path %q", key)
	}
	return name, nil
}
