package job

import (
	"context"
	"time"

	"gmaps-engine/internal/batch"
	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/normalize"
	"gmaps-engine/internal/places"
	"gmaps-engine/internal/search"
	"gmaps-engine/internal/store"
)

// Pipeline is what the worker drives for one run.
type Pipeline interface {
	Search(ctx context.Context, cp search.Checkpoint, t domain.Target, term string) (search.Result, error)
	Delay(ctx context.Context) error
	Close(ctx context.Context) error
}

// Run is handed to the factory when a worker starts.
type Run struct {
	OperationID string
	Settings    Settings
	Sleep       func(ctx context.Context, d time.Duration) error
	OnFlush     func(batch.FlushInfo)
}

type Factory interface {
	NewPipeline(ctx context.Context, run Run) (Pipeline, error)
}

type FactoryFunc func(ctx context.Context, run Run) (Pipeline, error)

func (f FactoryFunc) NewPipeline(ctx context.Context, run Run) (Pipeline, error) { return f(ctx, run) }

// PlacesFactory builds the production pipeline: Places client, fresh dedup scope,
// batch writer over Sink.
type PlacesFactory struct {
	Places     places.Config
	ResolveKey func() (string, error)
	Sink       store.Sink
	Enricher   search.Enricher
	Now        func() time.Time
}

func (f *PlacesFactory) NewPipeline(ctx context.Context, run Run) (Pipeline, error) {
	s := run.Settings

	cfg := f.Places
	cfg.APIKey = s.APIKey
	if cfg.APIKey == "" && f.ResolveKey != nil {
		key, err := f.ResolveKey()
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}
	cfg.MaxRetries = s.MaxRetries
	cfg.PageDelay = s.Delay()
	if s.Language != "" {
		cfg.Language = s.Language
	}
	if s.Region != "" {
		cfg.Region = s.Region
	}
	client, err := places.New(cfg)
	if err != nil {
		return nil, err
	}

	norm := normalize.New(normalize.NewScope(), f.Now)
	w := batch.NewWriter(f.Sink, batch.Options{Threshold: s.BatchSize, Now: f.Now, OnFlush: run.OnFlush})

	opts := []search.Option{}
	if run.Sleep != nil {
		opts = append(opts, search.WithSleep(run.Sleep))
	}
	if s.Enrich() && f.Enricher != nil {
		opts = append(opts, search.WithEnricher(f.Enricher))
	}
	return search.New(client, norm, w, search.Settings{
		Language:      cfg.Language,
		Region:        cfg.Region,
		DefaultRadius: s.DefaultRadius,
		RequestDelay:  s.Delay(),
		GridWidthKM:   s.GridWidthKM,
		GridHeightKM:  s.GridHeightKM,
		GridRadiusM:   s.GridRadiusM,
	}, opts...), nil
}
