package catalog

import "strings"

var searchableFields = map[string]struct{}{
	"model_id":      {},
	"author":        {},
	"pipeline_tag":  {},
	"description":   {},
	"model_type":    {},
	"last_modified": {},
	"readme":        {},
}

// DefaultSearchField is used when a search names no field.
const DefaultSearchField = "model_id"

// SearchableField reports whether field names a text column of the models table.
func SearchableField(field string) bool {
	_, ok := searchableFields[field]
	return ok
}

// LikePattern wraps term for an ILIKE substring match. LIKE metacharacters in
// term are escaped so they match literally.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// BatchResult is the outcome of a batch lookup.
type BatchResult struct {
	Models   []Model
	NotFound []string
}

// OrderByRequest arranges found models in the order of ids. Ids without a
// match are reported in NotFound, also in request order. A duplicated id
// yields a duplicated entry.
func OrderByRequest(ids []string, found []Model) BatchResult {
	byID := make(map[string]Model, len(found))
	for _, m := range found {
		byID[m.ModelID] = m
	}
	res := BatchResult{
		Models:   make([]Model, 0, len(ids)),
		NotFound: []string{},
	}
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			res.Models = append(res.Models, m)
			continue
		}
		res.NotFound = append(res.NotFound, id)
	}
	return res
}

// MatchesTerm reports whether value contains term, ignoring case. It is the
// in-process equivalent of an ILIKE '%term%' match.
func MatchesTerm(value, term string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(term))
}
