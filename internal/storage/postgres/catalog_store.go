// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/model-catalog/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const modelColumns = `model_id, author, downloads, likes, tags, pipeline_tag, description,
	model_type, last_modified, readme, updated_at`

const hardwareColumns = `id, name, type, manufacturer, memory, performance_score, price,
	description, specs`

// Tables names the tables backing the catalog.
type Tables struct {
	Models   string
	Hardware string
}

// CatalogStoreConfig controls the Postgres connection pool used for catalog rows.
type CatalogStoreConfig struct {
	DSN             string
	Tables          Tables
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// CatalogStore implements catalog.Store on Postgres.
type CatalogStore struct {
	pool   pool
	tables Tables
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore creates a Postgres-backed CatalogStore using the provided config.
func NewCatalogStore(ctx context.Context, cfg CatalogStoreConfig) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	tables, err := resolveTables(cfg.Tables)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: p, tables: tables}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool, tables Tables) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	resolved, err := resolveTables(tables)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: p, tables: resolved}, nil
}

func resolveTables(t Tables) (Tables, error) {
	if t.Models == "" {
		t.Models = "models"
	}
	if t.Hardware == "" {
		t.Hardware = "hardware"
	}
	for _, name := range []string{t.Models, t.Hardware} {
		if !validTableName.MatchString(name) {
			return Tables{}, fmt.Errorf("invalid table name %q", name)
		}
	}
	return t, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *CatalogStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// VerifySchema confirms the models table can be queried.
func (s *CatalogStore) VerifySchema(ctx context.Context) error {
	query := fmt.Sprintf(`SELECT model_id FROM %s LIMIT 1`, s.tables.Models)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("verify table %s: %w", s.tables.Models, err)
	}
	return nil
}

// GetModel retrieves a single model by its ID.
func (s *CatalogStore) GetModel(ctx context.Context, modelID string) (catalog.Model, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE model_id = $1`, modelColumns, s.tables.Models)
	m, err := scanModel(s.pool.QueryRow(ctx, query, modelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Model{}, catalog.ErrNotFound
		}
		return catalog.Model{}, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ListModels retrieves a page of models, optionally filtered by author.
func (s *CatalogStore) ListModels(ctx context.Context, filter catalog.ModelFilter) ([]catalog.Model, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE ($1::text IS NULL OR author = $1)
		ORDER BY model_id
		LIMIT $2 OFFSET $3`, modelColumns, s.tables.Models)
	rows, err := s.pool.Query(ctx, query, filter.Author, filter.Page.Limit, filter.Page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return collectModels(rows)
}

// SearchModels runs a case-insensitive substring match on one column.
func (s *CatalogStore) SearchModels(ctx context.Context, q catalog.SearchQuery) ([]catalog.Model, error) {
	if !catalog.SearchableField(q.Field) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrInvalidField, q.Field)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE %s ILIKE $1
		ORDER BY model_id
		LIMIT $2 OFFSET $3`, modelColumns, s.tables.Models, q.Field)
	rows, err := s.pool.Query(ctx, query, catalog.LikePattern(q.Term), q.Page.Limit, q.Page.Offset)
	if err != nil {
		return nil, fmt.Errorf("search models: %w", err)
	}
	return collectModels(rows)
}

// GetModelsByIDs retrieves every model whose ID is in ids.
func (s *CatalogStore) GetModelsByIDs(ctx context.Context, ids []string) ([]catalog.Model, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE model_id = ANY($1)`, modelColumns, s.tables.Models)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("batch get models: %w", err)
	}
	return collectModels(rows)
}

// UpsertModel inserts or replaces a model keyed by model_id.
func (s *CatalogStore) UpsertModel(ctx context.Context, m catalog.Model) error {
	if m.ModelID == "" {
		return fmt.Errorf("model id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	model_id,
	author,
	downloads,
	likes,
	tags,
	pipeline_tag,
	description,
	model_type,
	last_modified,
	readme,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (model_id) DO UPDATE SET
	author = EXCLUDED.author,
	downloads = EXCLUDED.downloads,
	likes = EXCLUDED.likes,
	tags = EXCLUDED.tags,
	pipeline_tag = EXCLUDED.pipeline_tag,
	description = EXCLUDED.description,
	model_type = EXCLUDED.model_type,
	last_modified = EXCLUDED.last_modified,
	readme = EXCLUDED.readme,
	updated_at = EXCLUDED.updated_at`, s.tables.Models)

	args := []any{
		m.ModelID,
		m.Author,
		m.Downloads,
		m.Likes,
		m.Tags,
		m.PipelineTag,
		m.Description,
		m.ModelType,
		m.LastModified,
		m.Readme,
		m.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

// ListHardware retrieves a page of hardware rows matching the filter.
func (s *CatalogStore) ListHardware(ctx context.Context, filter catalog.HardwareFilter) ([]catalog.Hardware, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE ($1::text IS NULL OR type = $1)
		AND ($2::text IS NULL OR manufacturer = $2)
		AND ($3::bigint IS NULL OR memory >= $3)
		ORDER BY name
		LIMIT $4 OFFSET $5`, hardwareColumns, s.tables.Hardware)
	rows, err := s.pool.Query(
		ctx,
		query,
		filter.Type,
		filter.Manufacturer,
		filter.MinMemory,
		filter.Page.Limit,
		filter.Page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list hardware: %w", err)
	}
	defer rows.Close()

	out := []catalog.Hardware{}
	for rows.Next() {
		var h catalog.Hardware
		if err := rows.Scan(
			&h.ID,
			&h.Name,
			&h.Type,
			&h.Manufacturer,
			&h.Memory,
			&h.PerformanceScore,
			&h.Price,
			&h.Description,
			&h.Specs,
		); err != nil {
			return nil, fmt.Errorf("scan hardware row: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hardware rows: %w", err)
	}
	return out, nil
}

// HardwareTypes lists the distinct hardware types.
func (s *CatalogStore) HardwareTypes(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT type FROM %s
		WHERE type IS NOT NULL
		ORDER BY type`, s.tables.Hardware)
	return s.distinct(ctx, query, "hardware types")
}

// HardwareManufacturers lists the distinct, non-empty manufacturers.
func (s *CatalogStore) HardwareManufacturers(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT manufacturer FROM %s
		WHERE manufacturer IS NOT NULL AND manufacturer <> ''
		ORDER BY manufacturer`, s.tables.Hardware)
	return s.distinct(ctx, query, "hardware manufacturers")
}

func (s *CatalogStore) distinct(ctx context.Context, query, what string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

func scanModel(row pgx.Row) (catalog.Model, error) {
	var m catalog.Model
	err := row.Scan(
		&m.ModelID,
		&m.Author,
		&m.Downloads,
		&m.Likes,
		&m.Tags,
		&m.PipelineTag,
		&m.Description,
		&m.ModelType,
		&m.LastModified,
		&m.Readme,
		&m.UpdatedAt,
	)
	if err != nil {
		return catalog.Model{}, err //nolint:wrapcheck // callers wrap with context
	}
	return m, nil
}

func collectModels(rows pgx.Rows) ([]catalog.Model, error) {
	defer rows.Close()

	out := []catalog.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model rows: %w", err)
	}
	return out, nil
}
