// Package catalog defines the model and hardware records served by the API
// and the repository contract the storage backends implement.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("catalog record not found")
	// ErrInvalidField signals a search on a column that is not searchable.
	ErrInvalidField = errors.New("field is not searchable")
)

// Model mirrors a row of the models table.
type Model struct {
	ModelID      string     `json:"model_id"`
	Author       *string    `json:"author"`
	Downloads    *int64     `json:"downloads"`
	Likes        *int64     `json:"likes"`
	Tags         []string   `json:"tags"`
	PipelineTag  *string    `json:"pipeline_tag"`
	Description  *string    `json:"description"`
	ModelType    *string    `json:"model_type"`
	LastModified *string    `json:"last_modified"`
	Readme       *string    `json:"readme"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// Hardware mirrors a row of the hardware table.
type Hardware struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	Manufacturer     *string        `json:"manufacturer"`
	Memory           *int64         `json:"memory"`
	PerformanceScore *float64       `json:"performance_score"`
	Price            *float64       `json:"price"`
	Description      *string        `json:"description"`
	Specs            map[string]any `json:"specs"`
}

// Page is an offset/limit window over an ordered result set.
type Page struct {
	Limit  int
	Offset int
}

// ModelFilter narrows ListModels. A nil Author lists every model.
type ModelFilter struct {
	Author *string
	Page   Page
}

// SearchQuery describes a case-insensitive substring search on one column.
type SearchQuery struct {
	Term  string
	Field string
	Page  Page
}

// HardwareFilter narrows ListHardware. Nil fields are not applied.
type HardwareFilter struct {
	Type         *string
	Manufacturer *string
	MinMemory    *int64
	Page         Page
}

// Store is the repository used by the API and the loader.
type Store interface {
	// GetModel loads a single model or returns ErrNotFound.
	GetModel(ctx context.Context, modelID string) (Model, error)
	// ListModels returns models ordered by model_id.
	ListModels(ctx context.Context, filter ModelFilter) ([]Model, error)
	// SearchModels returns models whose field contains the term, ignoring case.
	SearchModels(ctx context.Context, query SearchQuery) ([]Model, error)
	// GetModelsByIDs returns the models matching ids in no particular order.
	GetModelsByIDs(ctx context.Context, ids []string) ([]Model, error)
	// UpsertModel inserts the model or replaces the row with the same model_id.
	UpsertModel(ctx context.Context, model Model) error
	// ListHardware returns hardware ordered by name.
	ListHardware(ctx context.Context, filter HardwareFilter) ([]Hardware, error)
	// HardwareTypes returns the distinct hardware types, sorted.
	HardwareTypes(ctx context.Context) ([]string, error)
	// HardwareManufacturers returns the distinct non-empty manufacturers, sorted.
	HardwareManufacturers(ctx context.Context) ([]string, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close()
}
