package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/phuslu/log"

	"gmaps-engine/internal/events"
	"gmaps-engine/internal/store"
)

type HealthHandler struct {
	Scraper Scraper
	Hub     *events.Hub
	Storage func(ctx context.Context) (store.Inventory, error)
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	}
	if h.Scraper != nil {
		out["scraper_status"] = h.Scraper.Status().Status
	}
	if h.Hub != nil {
		out["subscribers"] = h.Hub.Len()
	}
	if h.Storage != nil {
		inv, err := h.Storage(r.Context())
		if err != nil {
			// storage trouble is reported, the engine itself is still up
			log.Warn().Str("component", "httpapi").Err(err).Msg("describe storage")
			out["storage_error"] = err.Error()
		}
		out["storage"] = inv
	}
	writeJSON(w, out)
}
