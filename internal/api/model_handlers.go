package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/model-catalog/internal/catalog"
	"github.com/JakeFAU/model-catalog/internal/middleware"
)

type modelPage struct {
	Models []catalog.Model `json:"models"`
	Count  int             `json:"count"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

type batchRequest struct {
	IDs *[]string `json:"ids"`
}

type batchResponse struct {
	Models   []catalog.Model `json:"models"`
	Count    int             `json:"count"`
	NotFound []string        `json:"not_found"`
}

// getModel handles GET /model/{model_id}. IDs contain a slash, so the
// route is a wildcard.
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "*")
	// chi matches on RawPath when the request carried an encoded slash;
	// otherwise the param is already decoded.
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(modelID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid model id")
			return
		}
		modelID = decoded
	}
	modelID = strings.Trim(modelID, "/")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "model id is required")
		return
	}

	s.logger.Info("fetching model info", zap.String("model_id", modelID))
	ctx, cancel := s.queryContext(r)
	defer cancel()
	m, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("model not found", zap.String("model_id", modelID))
			writeError(w, http.StatusNotFound, fmt.Sprintf("Model %s not found", modelID))
			return
		}
		s.storeFailure(w, r, "failed to fetch model", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// listModels handles GET /models?author=&limit=&offset=.
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	page, err := parseLimitOffset(r, s.cfg.API.DefaultLimit, s.cfg.API.MaxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	models, err := s.store.ListModels(ctx, catalog.ModelFilter{
		Author: optionalString(r, "author"),
		Page:   page,
	})
	if err != nil {
		s.storeFailure(w, r, "failed to list models", err)
		return
	}
	writeJSON(w, http.StatusOK, newModelPage(models, page))
}

// searchModels handles GET /search?q=&field=&limit=&offset=.
func (s *Server) searchModels(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	field := strings.TrimSpace(r.URL.Query().Get("field"))
	if field == "" {
		field = catalog.DefaultSearchField
	}
	if !catalog.SearchableField(field) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid search field %q", field))
		return
	}
	page, err := parseLimitOffset(r, s.cfg.API.DefaultLimit, s.cfg.API.MaxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	models, err := s.store.SearchModels(ctx, catalog.SearchQuery{Term: term, Field: field, Page: page})
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.storeFailure(w, r, "failed to search models", err)
		return
	}
	writeJSON(w, http.StatusOK, newModelPage(models, page))
}

// batchModels handles POST /models/batch with {"ids": [...]}. Models come
// back in request order; unknown IDs are listed in not_found.
func (s *Server) batchModels(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IDs == nil {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	ids := *req.IDs
	if len(ids) > s.cfg.API.MaxBatchIDs {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("too many ids: %d (max %d)", len(ids), s.cfg.API.MaxBatchIDs))
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, batchResponse{Models: []catalog.Model{}, NotFound: []string{}})
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	found, err := s.store.GetModelsByIDs(ctx, ids)
	if err != nil {
		s.storeFailure(w, r, "failed to fetch models", err)
		return
	}
	res := catalog.OrderByRequest(ids, found)
	for _, id := range res.NotFound {
		s.logger.Warn("model not found",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("model_id", id),
		)
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Models:   res.Models,
		Count:    len(res.Models),
		NotFound: res.NotFound,
	})
}

func newModelPage(models []catalog.Model, page catalog.Page) modelPage {
	if models == nil {
		models = []catalog.Model{}
	}
	return modelPage{Models: models, Count: len(models), Offset: page.Offset, Limit: page.Limit}
}
