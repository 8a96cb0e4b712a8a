package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/model-catalog/internal/catalog"
)

var modelCols = []string{
	"model_id", "author", "downloads", "likes", "tags", "pipeline_tag",
	"description", "model_type", "last_modified", "readme", "updated_at",
}

func ptr[T any](v T) *T { return &v }

func newMockStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCatalogStoreWithPool(mock, Tables{})
	require.NoError(t, err)
	return store, mock
}

func modelRow(rows *pgxmock.Rows, id string, author *string) *pgxmock.Rows {
	updated := time.Unix(1700000000, 0).UTC()
	return rows.AddRow(
		id,
		author,
		ptr(int64(42)),
		ptr(int64(7)),
		[]string{"text-generation", "llama"},
		ptr("text-generation"),
		nil,
		ptr("llama"),
		ptr("2024-01-02 03:04:05"),
		ptr("readme"),
		&updated,
	)
}

func TestNewCatalogStoreWithPoolValidatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCatalogStoreWithPool(nil, Tables{})
	require.Error(t, err)

	_, err = NewCatalogStoreWithPool(mock, Tables{Models: "models; drop"})
	require.Error(t, err)

	store, err := NewCatalogStoreWithPool(mock, Tables{Hardware: "gpu_catalog"})
	require.NoError(t, err)
	require.Equal(t, "models", store.tables.Models)
	require.Equal(t, "gpu_catalog", store.tables.Hardware)
}

func TestNewCatalogStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewCatalogStore(context.Background(), CatalogStoreConfig{})
	require.Error(t, err)
}

func TestGetModelReturnsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM models WHERE model_id = $1")).
		WithArgs("meta-llama/Llama-2-7b").
		WillReturnRows(modelRow(pgxmock.NewRows(modelCols), "meta-llama/Llama-2-7b", ptr("meta-llama")))

	m, err := store.GetModel(context.Background(), "meta-llama/Llama-2-7b")
	require.NoError(t, err)
	require.Equal(t, "meta-llama/Llama-2-7b", m.ModelID)
	require.Equal(t, "meta-llama", *m.Author)
	require.Equal(t, int64(42), *m.Downloads)
	require.Equal(t, []string{"text-generation", "llama"}, m.Tags)
	require.Nil(t, m.Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM models WHERE model_id = $1")).
		WithArgs("nobody/nothing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetModel(context.Background(), "nobody/nothing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListModelsAppliesAuthorAndPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	author := ptr("meta-llama")
	rows := pgxmock.NewRows(modelCols)
	modelRow(rows, "meta-llama/Llama-2-7b", author)
	modelRow(rows, "meta-llama/Llama-3.1-8B-Instruct", author)
	mock.ExpectQuery(regexp.QuoteMeta("($1::text IS NULL OR author = $1)")).
		WithArgs(author, 5, 10).
		WillReturnRows(rows)

	models, err := store.ListModels(context.Background(), catalog.ModelFilter{
		Author: author,
		Page:   catalog.Page{Limit: 5, Offset: 10},
	})
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListModelsWithoutAuthorReturnsEmptySlice(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("ORDER BY model_id").
		WithArgs((*string)(nil), 10, 0).
		WillReturnRows(pgxmock.NewRows(modelCols))

	models, err := store.ListModels(context.Background(), catalog.ModelFilter{
		Page: catalog.Page{Limit: 10},
	})
	require.NoError(t, err)
	require.NotNil(t, models)
	require.Empty(t, models)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListModelsWrapsQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM models").WillReturnError(errors.New("connection reset"))

	_, err := store.ListModels(context.Background(), catalog.ModelFilter{Page: catalog.Page{Limit: 10}})
	require.ErrorContains(t, err, "list models")
}

func TestSearchModelsUsesEscapedPattern(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE author ILIKE $1")).
		WithArgs(`%meta\_llama%`, 3, 0).
		WillReturnRows(modelRow(pgxmock.NewRows(modelCols), "meta-llama/Llama-2-7b", ptr("meta_llama")))

	models, err := store.SearchModels(context.Background(), catalog.SearchQuery{
		Term:  "meta_llama",
		Field: "author",
		Page:  catalog.Page{Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchModelsRejectsUnknownField(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	_, err := store.SearchModels(context.Background(), catalog.SearchQuery{
		Term:  "x",
		Field: "downloads) OR 1=1 --",
		Page:  catalog.Page{Limit: 3},
	})
	require.ErrorIs(t, err, catalog.ErrInvalidField)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelsByIDs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ids := []string{"a/one", "b/two"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE model_id = ANY($1)")).
		WithArgs(ids).
		WillReturnRows(modelRow(pgxmock.NewRows(modelCols), "b/two", nil))

	models, err := store.GetModelsByIDs(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Nil(t, models[0].Author)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetModelsByIDsSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	models, err := store.GetModelsByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, models)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertModel(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	m := catalog.Model{
		ModelID:      "hexgrad/Kokoro-82M",
		Author:       ptr("hexgrad"),
		Downloads:    ptr(int64(100)),
		Likes:        ptr(int64(5)),
		Tags:         []string{"tts"},
		PipelineTag:  ptr("text-to-speech"),
		Description:  ptr(""),
		ModelType:    ptr(""),
		LastModified: ptr("2025-01-01 00:00:00"),
		Readme:       ptr("Kokoro"),
		UpdatedAt:    &now,
	}
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (model_id) DO UPDATE")).
		WithArgs(
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
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertModel(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertModelRequiresID(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	require.Error(t, store.UpsertModel(context.Background(), catalog.Model{}))
}

func TestListHardwareAppliesFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	hwType := ptr("GPU")
	maker := ptr("NVIDIA")
	minMem := ptr(int64(32))
	cols := []string{
		"id", "name", "type", "manufacturer", "memory", "performance_score",
		"price", "description", "specs",
	}
	mock.ExpectQuery(regexp.QuoteMeta("($3::bigint IS NULL OR memory >= $3)")).
		WithArgs(hwType, maker, minMem, 10, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(1),
			"H100",
			"GPU",
			ptr("NVIDIA"),
			ptr(int64(80)),
			ptr(98.5),
			nil,
			ptr("Hopper"),
			map[string]any{"tdp_watts": float64(700)},
		))

	hw, err := store.ListHardware(context.Background(), catalog.HardwareFilter{
		Type:         hwType,
		Manufacturer: maker,
		MinMemory:    minMem,
		Page:         catalog.Page{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, hw, 1)
	require.Equal(t, "H100", hw[0].Name)
	require.Equal(t, int64(80), *hw[0].Memory)
	require.Nil(t, hw[0].Price)
	require.Equal(t, float64(700), hw[0].Specs["tdp_watts"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHardwareTypesAndManufacturers(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT type FROM hardware")).
		WillReturnRows(pgxmock.NewRows([]string{"type"}).AddRow("CPU").AddRow("GPU"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT manufacturer FROM hardware")).
		WillReturnRows(pgxmock.NewRows([]string{"manufacturer"}).AddRow("AMD").AddRow("NVIDIA"))

	types, err := store.HardwareTypes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"CPU", "GPU"}, types)

	makers, err := store.HardwareManufacturers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"AMD", "NVIDIA"}, makers)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifySchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("SELECT model_id FROM models LIMIT 1")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, store.VerifySchema(context.Background()))

	mock.ExpectExec("SELECT model_id FROM models").
		WillReturnError(errors.New(`relation "models" does not exist`))
	require.ErrorContains(t, store.VerifySchema(context.Background()), "verify table models")
	require.NoError(t, mock.ExpectationsWereMet())
}
