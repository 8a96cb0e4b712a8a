// Package memory provides in-process storage implementations for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/model-catalog/internal/catalog"
)

// CatalogStore keeps models and hardware in maps and mirrors the filtering,
// ordering and paging of the Postgres store.
type CatalogStore struct {
	mu       sync.RWMutex
	models   map[string]catalog.Model
	hardware []catalog.Hardware
	nextHWID int64
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		models:   make(map[string]catalog.Model),
		nextHWID: 1,
	}
}

// GetModel returns the model with the given ID.
func (s *CatalogStore) GetModel(_ context.Context, modelID string) (catalog.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[modelID]
	if !ok {
		return catalog.Model{}, catalog.ErrNotFound
	}
	return cloneModel(m), nil
}

// ListModels returns a page of models ordered by ID.
func (s *CatalogStore) ListModels(_ context.Context, filter catalog.ModelFilter) ([]catalog.Model, error) {
	return s.selectModels(filter.Page, func(m catalog.Model) bool {
		return filter.Author == nil || (m.Author != nil && *m.Author == *filter.Author)
	}), nil
}

// SearchModels returns models whose field contains the term, ignoring case.
func (s *CatalogStore) SearchModels(_ context.Context, q catalog.SearchQuery) ([]catalog.Model, error) {
	if !catalog.SearchableField(q.Field) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrInvalidField, q.Field)
	}
	return s.selectModels(q.Page, func(m catalog.Model) bool {
		v, ok := textField(m, q.Field)
		return ok && catalog.MatchesTerm(v, q.Term)
	}), nil
}

// GetModelsByIDs returns every stored model whose ID appears in ids.
func (s *CatalogStore) GetModelsByIDs(_ context.Context, ids []string) ([]catalog.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(ids))
	out := []catalog.Model{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if m, ok := s.models[id]; ok {
			out = append(out, cloneModel(m))
		}
	}
	return out, nil
}

// UpsertModel stores the model, replacing any previous row with the same ID.
func (s *CatalogStore) UpsertModel(_ context.Context, m catalog.Model) error {
	if m.ModelID == "" {
		return fmt.Errorf("model id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[m.ModelID] = cloneModel(m)
	return nil
}

// PutHardware appends a hardware row and returns it with its assigned ID.
func (s *CatalogStore) PutHardware(h catalog.Hardware) catalog.Hardware {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = s.nextHWID
	s.nextHWID++
	s.hardware = append(s.hardware, h)
	return h
}

// ListHardware returns a page of hardware ordered by name.
func (s *CatalogStore) ListHardware(_ context.Context, filter catalog.HardwareFilter) ([]catalog.Hardware, error) {
	s.mu.RLock()
	matched := make([]catalog.Hardware, 0, len(s.hardware))
	for _, h := range s.hardware {
		if filter.Type != nil && h.Type != *filter.Type {
			continue
		}
		if filter.Manufacturer != nil && (h.Manufacturer == nil || *h.Manufacturer != *filter.Manufacturer) {
			continue
		}
		if filter.MinMemory != nil && (h.Memory == nil || *h.Memory < *filter.MinMemory) {
			continue
		}
		matched = append(matched, h)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return window(matched, filter.Page), nil
}

// HardwareTypes returns the distinct hardware types, sorted.
func (s *CatalogStore) HardwareTypes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]string, 0, len(s.hardware))
	for _, h := range s.hardware {
		values = append(values, h.Type)
	}
	return distinctSorted(values), nil
}

// HardwareManufacturers returns the distinct non-empty manufacturers, sorted.
func (s *CatalogStore) HardwareManufacturers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]string, 0, len(s.hardware))
	for _, h := range s.hardware {
		if h.Manufacturer != nil && *h.Manufacturer != "" {
			values = append(values, *h.Manufacturer)
		}
	}
	return distinctSorted(values), nil
}

// Ping always succeeds.
func (s *CatalogStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *CatalogStore) Close() {}

func (s *CatalogStore) selectModels(page catalog.Page, keep func(catalog.Model) bool) []catalog.Model {
	s.mu.RLock()
	matched := make([]catalog.Model, 0, len(s.models))
	for _, m := range s.models {
		if keep(m) {
			matched = append(matched, cloneModel(m))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ModelID < matched[j].ModelID })
	return window(matched, page)
}

func textField(m catalog.Model, field string) (string, bool) {
	var p *string
	switch field {
	case "model_id":
		return m.ModelID, true
	case "author":
		p = m.Author
	case "pipeline_tag":
		p = m.PipelineTag
	case "description":
		p = m.Description
	case "model_type":
		p = m.ModelType
	case "last_modified":
		p = m.LastModified
	case "readme":
		p = m.Readme
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

func window[T any](items []T, page catalog.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit >= 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func distinctSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := []string{}
	for _, v := range values {
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func cloneModel(m catalog.Model) catalog.Model {
	cp := m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	return cp
}
