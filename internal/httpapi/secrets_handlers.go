package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type SecretsHandler struct {
	SetPlacesKey func(key string) error
	// ValidateKey, when set, rejects keys the Places API refuses.
	ValidateKey func(ctx context.Context, key string) error
}

type setPlacesKeyReq struct {
	APIKey string `json:"api_key"`
}

func (h SecretsHandler) SetPlacesKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req setPlacesKeyReq
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		WriteError(w, r, http.StatusBadRequest, "missing_key", "api_key is required")
		return
	}
	if h.SetPlacesKey == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "unavailable", "keychain not configured")
		return
	}
	if h.ValidateKey != nil {
		if err := h.ValidateKey(r.Context(), key); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_api_key", "Invalid API key: "+keyMessage(err))
			return
		}
	}
	if err := h.SetPlacesKey(key); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store api key: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
