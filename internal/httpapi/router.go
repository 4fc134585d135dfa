package httpapi

import "net/http"

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{Scraper: d.Scraper, Hub: d.Hub, Storage: d.Storage}.Health,
	}))

	// Scraper control plane
	sh := ScraperHandler{Scraper: d.Scraper, ValidateKey: d.ValidateKey}
	mux.HandleFunc("/scraper/start", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Start,
	}))
	mux.HandleFunc("/scraper/control", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Control,
	}))
	mux.HandleFunc("/scraper/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))
	mux.HandleFunc("/scraper/results", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Results,
	}))
	mux.HandleFunc("/scraper/operations/history", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.History,
	}))
	mux.HandleFunc("/scraper/operations/", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: sh.DeleteByPath, // expects /scraper/operations/{id}
	}))
	mux.HandleFunc("/scraper/validate-api-key", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.ValidateAPIKey,
	}))

	// Locations
	lh := LocationsHandler{Catalog: d.Catalog, Defaults: d.Defaults}
	mux.HandleFunc("/locations", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: lh.List,
	}))
	mux.HandleFunc("/locations/estimate", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: lh.Estimate,
	}))
	mux.HandleFunc("/locations/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: lh.Validate,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
		OnConfig:    d.OnConfig,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Validate,
	}))

	// Secrets
	sec := SecretsHandler{SetPlacesKey: d.SetPlacesKey, ValidateKey: d.ValidateKey}
	mux.HandleFunc("/api/secrets/places-key", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sec.SetPlacesKeyHandler,
	}))

	// Live streams
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))
	wh := &WSHandler{Hub: d.Hub, Scraper: d.Scraper}
	mux.HandleFunc("/ws", wh.Serve)

	return mux
}
