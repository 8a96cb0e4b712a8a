// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/catalog"
	"github.com/JakeFAU/model-catalog/internal/config"
	"github.com/JakeFAU/model-catalog/internal/publisher"
	"github.com/JakeFAU/model-catalog/internal/publisher/pubsub"
	"github.com/JakeFAU/model-catalog/internal/storage"
	"github.com/JakeFAU/model-catalog/internal/storage/memory"
	"github.com/JakeFAU/model-catalog/internal/storage/postgres"
)

// App holds the shared services for one command invocation. Services are
// built on first use so each command only connects to what it needs.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	mu      sync.Mutex
	closers []func()
}

// New creates an App for cfg.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// CatalogStore opens the store named by database.backend. A Postgres store
// must pass the schema probe before it is returned.
func (a *App) CatalogStore(ctx context.Context) (catalog.Store, error) {
	switch a.cfg.Database.Backend {
	case "memory":
		a.logger.Info("using in-memory catalog store; data is lost on exit")
		return memory.NewCatalogStore(), nil
	case "postgres", "":
		a.logger.Info("connecting to postgres")
		store, err := postgres.NewCatalogStore(ctx, postgres.CatalogStoreConfig{
			DSN: a.cfg.Database.DSN,
			Tables: postgres.Tables{
				Models:   a.cfg.Database.ModelsTable,
				Hardware: a.cfg.Database.HardwareTable,
			},
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open catalog store: %w", err)
		}
		if err := store.VerifySchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("table verification failed: %w", err)
		}
		a.logger.Info("verified catalog tables",
			zap.String("models_table", a.cfg.Database.ModelsTable),
			zap.String("hardware_table", a.cfg.Database.HardwareTable),
		)
		a.onClose(store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", a.cfg.Database.Backend)
	}
}

// BlobStore opens the report archive; it is nil when archiving is disabled.
func (a *App) BlobStore(ctx context.Context) (storage.BlobStore, error) {
	store, closeFn, err := storage.Open(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, err //nolint:wrapcheck // storage.Open already names the backend
	}
	a.onClose(closeFn)
	if store == nil {
		a.logger.Info("report archiving disabled")
	} else {
		a.logger.Info("report archiving enabled", zap.String("backend", a.cfg.Storage.Backend))
	}
	return store, nil
}

// Publisher connects to Pub/Sub; it is nil when no topic is configured.
func (a *App) Publisher(ctx context.Context) (publisher.Publisher, error) {
	if !a.cfg.PublishEnabled() {
		a.logger.Info("upsert notifications disabled")
		return nil, nil
	}
	pub, err := pubsub.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	a.logger.Info("publishing upsert notifications", zap.String("topic", a.cfg.PubSub.TopicName))
	a.onClose(func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("error closing pubsub publisher", zap.Error(err))
		}
	})
	return pub, nil
}

// Close releases services in reverse order of creation and flushes the logger.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	// Sync fails on stdout/stderr on some platforms; nothing useful to do about it.
	_ = a.logger.Sync()
}

func (a *App) onClose(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}
