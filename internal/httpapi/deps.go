package httpapi

import (
	"context"
	"sync/atomic"

	"gmaps-engine/internal/config"
	"gmaps-engine/internal/events"
	"gmaps-engine/internal/job"
	"gmaps-engine/internal/locations"
	"gmaps-engine/internal/store"
)

// Scraper is the job control plane the handlers drive.
type Scraper interface {
	Start(ctx context.Context, req job.StartRequest) (string, error)
	Pause() error
	Resume() error
	Stop() error
	Status() job.Status
	Results() job.Results
	History(ctx context.Context, limit int) ([]store.Run, error)
	DeleteOperation(ctx context.Context, id string) error
}

type Deps struct {
	Hub     *events.Hub
	Scraper Scraper

	// Atomic stores
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
	// OnConfig runs after a PUT /config was saved and reloaded.
	OnConfig func(config.Config)

	Catalog  func() *locations.Catalog
	Defaults func() job.Settings

	// ValidateKey probes the Places API with key.
	ValidateKey  func(ctx context.Context, key string) error
	SetPlacesKey func(key string) error

	// Storage describes the active sink for /health.
	Storage func(ctx context.Context) (store.Inventory, error)
}
