// Package loader fetches model metadata from the hub, writes a CSV report,
// upserts each model into the catalog and announces the change.
package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/catalog"
	"github.com/JakeFAU/model-catalog/internal/hub"
	"github.com/JakeFAU/model-catalog/internal/metrics"
	"github.com/JakeFAU/model-catalog/internal/publisher"
	"github.com/JakeFAU/model-catalog/internal/storage"
)

var errEmptyModelID = errors.New("could not parse a model id from target")

// ModelFetcher retrieves hub metadata for one model.
type ModelFetcher interface {
	FetchModel(ctx context.Context, modelID string) (hub.ModelInfo, error)
}

// ModelStore persists catalog rows.
type ModelStore interface {
	UpsertModel(ctx context.Context, m catalog.Model) error
}

// Clock supplies upsert timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator names loader runs.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the collaborators of a Loader. Blobs and Publisher are optional.
type Deps struct {
	Fetcher   ModelFetcher
	Store     ModelStore
	Blobs     storage.BlobStore
	Publisher publisher.Publisher
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// Options tune report and notification output.
type Options struct {
	Topic             string
	ReportPrefix      string
	ReportContentType string
	ReadmeMaxChars    int
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Processed    int
	Succeeded    int
	Failed       int
	UpsertFailed int
	ReportURI    string
}

// Loader runs batches sequentially.
type Loader struct {
	deps Deps
	opts Options
}

// New validates deps and builds a Loader.
func New(deps Deps, opts Options) (*Loader, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("loader: fetcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("loader: store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("loader: clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("loader: id generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.ReportContentType == "" {
		opts.ReportContentType = "text/csv; charset=utf-8"
	}
	metrics.Init()
	return &Loader{deps: deps, opts: opts}, nil
}

// Run processes targets in order and streams the report to out. Item
// failures are recorded in the report; only cancellation and report I/O
// errors end the run early.
func (l *Loader) Run(ctx context.Context, targets []string, out io.Writer) (Summary, error) {
	runID, err := l.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	sum := Summary{RunID: runID}
	logger := l.deps.Logger.With(zap.String("run_id", runID))
	logger.Info("loader run started", zap.Int("targets", len(targets)))

	var archive bytes.Buffer
	w := csv.NewWriter(io.MultiWriter(out, &archive))
	// RFC 4180 line endings.
	w.UseCRLF = true
	if err := writeRow(w, CSVHeader); err != nil {
		return sum, err
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			l.finish(logger, sum, err)
			return sum, fmt.Errorf("loader canceled: %w", err)
		}
		row, err := l.processOne(ctx, logger, runID, target, &sum)
		if err != nil {
			l.finish(logger, sum, err)
			return sum, fmt.Errorf("loader canceled: %w", err)
		}
		sum.Processed++
		if err := writeRow(w, row); err != nil {
			return sum, err
		}
	}

	if l.deps.Blobs != nil {
		key := path.Join(l.opts.ReportPrefix, runID+".csv")
		uri, err := l.deps.Blobs.PutObject(ctx, key, l.opts.ReportContentType, bytes.NewReader(archive.Bytes()))
		if err != nil {
			l.finish(logger, sum, err)
			return sum, fmt.Errorf("archive report: %w", err)
		}
		sum.ReportURI = uri
	}

	l.finish(logger, sum, nil)
	return sum, nil
}

// processOne returns the report row for target. The error is non-nil only
// when ctx ended while the item was in flight.
func (l *Loader) processOne(
	ctx context.Context,
	logger *zap.Logger,
	runID, target string,
	sum *Summary,
) ([]string, error) {
	modelID := ParseModelID(target)
	if modelID == "" {
		sum.Failed++
		logger.Error("invalid target", zap.String("target", target), zap.Error(errEmptyModelID))
		return ErrorRow(target, errEmptyModelID), nil
	}

	logger.Info("processing model", zap.String("model_id", modelID))
	info, err := l.deps.Fetcher.FetchModel(ctx, modelID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		sum.Failed++
		logger.Error("fetch model failed", zap.String("model_id", modelID), zap.Error(err))
		return ErrorRow(modelID, err), nil
	}

	rec := Normalize(modelID, info, l.opts.ReadmeMaxChars)
	sum.Succeeded++

	now := l.deps.Clock.Now().UTC()
	if err := l.deps.Store.UpsertModel(ctx, rec.Model(now)); err != nil {
		sum.UpsertFailed++
		metrics.ObserveUpsert("error")
		logger.Error("upsert model failed", zap.String("model_id", modelID), zap.Error(err))
		return rec.Row(), nil
	}
	metrics.ObserveUpsert("ok")
	logger.Info("model upserted", zap.String("model_id", modelID))
	l.publish(ctx, logger, publisher.ModelUpserted{ModelID: modelID, UpdatedAt: now, RunID: runID})
	return rec.Row(), nil
}

func (l *Loader) publish(ctx context.Context, logger *zap.Logger, ev publisher.ModelUpserted) {
	if l.deps.Publisher == nil {
		return
	}
	id, err := l.deps.Publisher.Publish(ctx, l.opts.Topic, ev)
	if err != nil {
		logger.Warn("publish model upsert failed", zap.String("model_id", ev.ModelID), zap.Error(err))
		return
	}
	logger.Debug("published model upsert", zap.String("model_id", ev.ModelID), zap.String("message_id", id))
}

func (l *Loader) finish(logger *zap.Logger, sum Summary, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case sum.Failed > 0 || sum.UpsertFailed > 0:
		outcome = "partial"
	}
	metrics.ObserveLoad(outcome, sum.Succeeded, sum.Failed)
	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("upsert_failed", sum.UpsertFailed),
		zap.String("report_uri", sum.ReportURI),
	}
	if err != nil {
		logger.Error("loader run ended early", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("loader run finished", fields...)
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}
