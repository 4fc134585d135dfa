package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"gmaps-engine/internal/job"
	"gmaps-engine/internal/places"
)

type ScraperHandler struct {
	Scraper     Scraper
	ValidateKey func(ctx context.Context, key string) error
}

type controlReq struct {
	Action string `json:"action"`
}

type apiKeyReq struct {
	APIKey string `json:"api_key"`
}

type apiKeyResp struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// writeJobError maps coordinator errors onto status codes.
func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *job.ControlError
	switch {
	case errors.Is(err, job.ErrInvalidSettings):
		WriteError(w, r, http.StatusBadRequest, "invalid_settings", err.Error())
	case errors.Is(err, job.ErrAlreadyRunning):
		WriteError(w, r, http.StatusConflict, "already_running", err.Error())
	case errors.As(err, &ce):
		WriteError(w, r, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, job.ErrUnknownOperation):
		WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Error().Str("component", "http").Str("request_id", RequestIDFrom(r.Context())).Err(err).Msg("scraper call failed")
		WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h ScraperHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req job.StartRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}

	if key := strings.TrimSpace(req.Settings.APIKey); key != "" && h.ValidateKey != nil {
		if err := h.ValidateKey(r.Context(), key); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_api_key", "Invalid API key: "+keyMessage(err))
			return
		}
	}

	id, err := h.Scraper.Start(r.Context(), req)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{
		"success":      true,
		"message":      "Scraping started successfully",
		"operation_id": id,
		"status":       job.StateRunning,
	})
}

func (h ScraperHandler) Control(w http.ResponseWriter, r *http.Request) {
	var req controlReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}

	var err error
	var msg string
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "pause":
		err, msg = h.Scraper.Pause(), "Scraping paused"
	case "resume":
		err, msg = h.Scraper.Resume(), "Scraping resumed"
	case "stop":
		err, msg = h.Scraper.Stop(), "Scraping stopped"
	default:
		WriteError(w, r, http.StatusBadRequest, "unknown_action", "Unknown action: "+req.Action)
		return
	}
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	st := h.Scraper.Status()
	writeJSON(w, map[string]any{
		"success": true,
		"message": msg,
		"action":  req.Action,
		"status":  st.Status,
	})
}

func (h ScraperHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Scraper.Status())
}

func (h ScraperHandler) Results(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Scraper.Results())
}

func (h ScraperHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.Scraper.History(r.Context(), limit)
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"operations": runs, "total": len(runs)})
}

func (h ScraperHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/scraper/operations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, r, http.StatusNotFound, "not_found", "operation not found")
		return
	}
	if err := h.Scraper.DeleteOperation(r.Context(), id); err != nil {
		if errors.Is(err, job.ErrUnknownOperation) {
			WriteError(w, r, http.StatusNotFound, "not_found", "Operation "+id+" not found or not active")
			return
		}
		writeJobError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": "Operation " + id + " cancelled successfully"})
}

func (h ScraperHandler) ValidateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeJSON(w, apiKeyResp{Valid: false, Message: "API key is required"})
		return
	}
	if h.ValidateKey == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "unavailable", "key validation not configured")
		return
	}
	if err := h.ValidateKey(r.Context(), key); err != nil {
		writeJSON(w, apiKeyResp{Valid: false, Message: keyMessage(err)})
		return
	}
	writeJSON(w, apiKeyResp{Valid: true, Message: "API key is valid"})
}

func keyMessage(err error) string {
	var ae *places.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
