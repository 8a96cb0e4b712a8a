package api

import (
	"net/http"

	"github.com/JakeFAU/model-catalog/internal/catalog"
)

type hardwarePage struct {
	Hardware []catalog.Hardware `json:"hardware"`
	Count    int                `json:"count"`
	Offset   int                `json:"offset"`
	Limit    int                `json:"limit"`
}

// listHardware handles GET /hardware?type=&manufacturer=&min_memory=&limit=&offset=.
func (s *Server) listHardware(w http.ResponseWriter, r *http.Request) {
	page, err := parseLimitOffset(r, s.cfg.API.DefaultLimit, s.cfg.API.MaxLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minMemory, err := parseMinMemory(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	hw, err := s.store.ListHardware(ctx, catalog.HardwareFilter{
		Type:         optionalString(r, "type"),
		Manufacturer: optionalString(r, "manufacturer"),
		MinMemory:    minMemory,
		Page:         page,
	})
	if err != nil {
		s.storeFailure(w, r, "failed to list hardware", err)
		return
	}
	if hw == nil {
		hw = []catalog.Hardware{}
	}
	writeJSON(w, http.StatusOK, hardwarePage{Hardware: hw, Count: len(hw), Offset: page.Offset, Limit: page.Limit})
}

func (s *Server) hardwareTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()
	types, err := s.store.HardwareTypes(ctx)
	if err != nil {
		s.storeFailure(w, r, "failed to list hardware types", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"types": nonNil(types)})
}

func (s *Server) hardwareManufacturers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()
	makers, err := s.store.HardwareManufacturers(ctx)
	if err != nil {
		s.storeFailure(w, r, "failed to list manufacturers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"manufacturers": nonNil(makers)})
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
