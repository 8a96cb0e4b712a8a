package loader

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/model-catalog/internal/catalog"
	"github.com/JakeFAU/model-catalog/internal/hub"
)

// CSVHeader is the first row of every report.
var CSVHeader = []string{
	"model_id", "author", "downloads", "likes", "tags", "pipeline_tag",
	"description", "model_type", "last_modified", "readme",
}

const hubHostMarker = "huggingface.co/"

// ParseModelID extracts "owner/name" from a model URL or bare ID.
func ParseModelID(target string) string {
	if _, after, found := strings.Cut(target, hubHostMarker); found {
		target = after
	}
	return strings.Trim(target, "/")
}

// Record is one normalized report row; every field is a plain string.
type Record struct {
	ModelID      string
	Author       string
	Downloads    string
	Likes        string
	Tags         []string
	PipelineTag  string
	Description  string
	ModelType    string
	LastModified string
	Readme       string
}

// Normalize flattens hub metadata into report strings. readmeMax <= 0 keeps
// the README intact.
func Normalize(modelID string, info hub.ModelInfo, readmeMax int) Record {
	return Record{
		ModelID:      modelID,
		Author:       deref(info.Author),
		Downloads:    countString(info.Downloads),
		Likes:        countString(info.Likes),
		Tags:         append([]string(nil), info.Tags...),
		PipelineTag:  deref(info.PipelineTag),
		Description:  flatten(deref(info.Description)),
		ModelType:    deref(info.ModelType),
		LastModified: formatTimestamp(deref(info.LastModified)),
		Readme:       truncate(flatten(info.Readme), readmeMax),
	}
}

// Row renders the record in CSVHeader order.
func (r Record) Row() []string {
	return []string{
		r.ModelID,
		r.Author,
		r.Downloads,
		r.Likes,
		strings.Join(r.Tags, ", "),
		r.PipelineTag,
		r.Description,
		r.ModelType,
		r.LastModified,
		r.Readme,
	}
}

// Model converts the record into the row stored in the catalog.
func (r Record) Model(updatedAt time.Time) catalog.Model {
	return catalog.Model{
		ModelID:      r.ModelID,
		Author:       &r.Author,
		Downloads:    parseCount(r.Downloads),
		Likes:        parseCount(r.Likes),
		Tags:         append([]string{}, r.Tags...),
		PipelineTag:  &r.PipelineTag,
		Description:  &r.Description,
		ModelType:    &r.ModelType,
		LastModified: &r.LastModified,
		Readme:       &r.Readme,
		UpdatedAt:    &updatedAt,
	}
}

// ErrorRow is written in place of a record when an item fails.
func ErrorRow(modelID string, err error) []string {
	row := make([]string, len(CSVHeader))
	row[0] = modelID
	row[1] = "Error: " + err.Error()
	return row
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func countString(p *int64) string {
	if p == nil {
		return "0"
	}
	return strconv.FormatInt(*p, 10)
}

func parseCount(s string) *int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		n = 0
	}
	return &n
}

func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func formatTimestamp(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSuffix(strings.ReplaceAll(s, "T", " "), ".000Z")
}

// truncate keeps the first limit characters (runes, not bytes).
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
