// Package storage selects the blob store that archives loader reports.
package storage

import (
	"context"
	"fmt"
	"io"

	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/config"
	"github.com/JakeFAU/model-catalog/internal/storage/gcs"
	"github.com/JakeFAU/model-catalog/internal/storage/local"
	"github.com/JakeFAU/model-catalog/internal/storage/memory"
)

// BlobStore persists an object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Open builds the blob store named by cfg.Backend. It returns a nil store for
// the "none" backend. The returned close func is never nil.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return memory.NewBlobStore(), noop, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local blob store: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create GCS client: %w", err)
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close GCS client", zap.Error(err))
			}
		}
		// Fail fast on a missing bucket or missing permissions.
		if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
			closeClient()
			return nil, noop, fmt.Errorf("get GCS bucket %q attributes: %w", cfg.Bucket, err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, ChunkSize: cfg.ChunkSize})
		if err != nil {
			closeClient()
			return nil, noop, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, closeClient, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
