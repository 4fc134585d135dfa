package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"gmaps-engine/internal/geo"
	"gmaps-engine/internal/job"
	"gmaps-engine/internal/locations"
)

type LocationsHandler struct {
	Catalog  func() *locations.Catalog
	Defaults func() job.Settings
}

type estimateReq struct {
	Locations locations.Selection `json:"locations"`
	Settings  job.Settings        `json:"settings"`
}

func (h LocationsHandler) catalog() *locations.Catalog {
	if h.Catalog == nil {
		return nil
	}
	return h.Catalog()
}

// List returns the whole catalog, or name matches when ?q= is given.
func (h LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	cat := h.catalog()
	if cat == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "no_catalog", "location catalog not loaded")
		return
	}
	q := r.URL.Query()
	if query := q.Get("q"); query != "" {
		include, _ := strconv.ParseBool(q.Get("include_districts"))
		writeJSON(w, cat.Search(query, include))
		return
	}
	writeJSON(w, cat)
}

func (h LocationsHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	s := req.Settings
	if h.Defaults != nil {
		s = s.WithDefaults(h.Defaults())
	}
	est, err := locations.EstimateRun(req.Locations, h.catalog(), locations.EstimateSettings{
		SearchTerms:   len(s.SearchTerms),
		RequestDelay:  s.Delay(),
		DefaultRadius: s.DefaultRadius,
		GridWidthKM:   s.GridWidthKM,
		GridHeightKM:  s.GridHeightKM,
		GridRadiusM:   s.GridRadiusM,
	})
	if err != nil {
		if errors.Is(err, geo.ErrInvalidArea) {
			WriteError(w, r, http.StatusBadRequest, "invalid_area", err.Error())
			return
		}
		WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, est)
}

func (h LocationsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req estimateReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	writeJSON(w, locations.Validate(req.Locations, h.catalog()))
}
