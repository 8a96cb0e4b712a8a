package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/model-catalog/internal/catalog"
)

func parseLimitOffset(r *http.Request, def, maxLimit int) (catalog.Page, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return catalog.Page{}, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return catalog.Page{}, errors.New("invalid offset")
		}
		offset = val
	}
	return catalog.Page{Limit: limit, Offset: offset}, nil
}

// optionalString returns nil for a missing or blank query value.
func optionalString(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil
	}
	return &v
}

// parseMinMemory treats a missing value and 0 alike as no filter.
func parseMinMemory(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("min_memory"))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("invalid min_memory")
	}
	if val == 0 {
		return nil, nil
	}
	return &val, nil
}
