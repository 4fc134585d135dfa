package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/phuslu/log"

	"gmaps-engine/internal/config"
	"gmaps-engine/internal/job"
	"gmaps-engine/internal/locations"
	"gmaps-engine/internal/places"
	"gmaps-engine/internal/ratelimit"
	"gmaps-engine/internal/store"
)

func setupLogger(c config.LogConfig) {
	var w log.Writer = &log.IOWriter{Writer: os.Stderr}
	if c.Console {
		w = &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true, QuoteString: true}
	}
	level := log.InfoLevel
	if c.Level != "" {
		level = log.ParseLevel(c.Level)
	}
	log.DefaultLogger = log.Logger{
		Level:      level,
		TimeFormat: "15:04:05",
		Writer:     w,
	}
}

func placesConfig(cfg config.Config, limiter *ratelimit.HostLimiter) places.Config {
	p := cfg.Places
	return places.Config{
		BaseURL:           p.BaseURL,
		Language:          p.Language,
		Region:            p.Region,
		RequestsPerSecond: p.RequestsPerSecond,
		Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
		MaxRetries:        p.MaxRetries,
		BackoffBase:       time.Duration(p.BackoffBaseMS) * time.Millisecond,
		PageLimit:         p.PageLimit,
		Limiter:           limiter,
	}
}

// jobDefaults fills start requests that leave settings out.
func jobDefaults(cfg config.Config) job.Settings {
	s := cfg.Scrape
	enrich := s.EnrichEmails
	return job.Settings{
		SearchTerms:   append([]string(nil), s.SearchTerms...),
		Language:      cfg.Places.Language,
		Region:        cfg.Places.Region,
		DefaultRadius: s.DefaultRadius,
		RequestDelay:  float64(s.RequestDelayMS) / 1000,
		MaxRetries:    cfg.Places.MaxRetries,
		BatchSize:     s.BatchSize,
		GridWidthKM:   s.Grid.WidthKM,
		GridHeightKM:  s.Grid.HeightKM,
		GridRadiusM:   s.Grid.RadiusMeters,
		EnrichEmails:  &enrich,
	}
}

func storageOptions(dataDir string, cfg config.Config) store.Options {
	st := cfg.Storage
	return store.Options{
		Type:         st.Type,
		OutputDir:    config.Resolve(dataDir, st.OutputDir),
		DynamoTable:  st.DynamoDB.Table,
		DynamoRegion: st.DynamoDB.Region,
		S3Bucket:     st.S3.Bucket,
		S3Prefix:     st.S3.Prefix,
		S3Region:     st.S3.Region,
	}
}

// catalogPath prefers the data dir copy and falls back to the shipped file.
func catalogPath(dataDir string, cfg config.Config) string {
	p := cfg.Locations.Path
	if p == "" {
		p = filepath.Join("config", "locations.json")
	}
	if filepath.IsAbs(p) {
		return p
	}
	if inData := filepath.Join(dataDir, p); fileExists(inData) {
		return inData
	}
	return p
}

func loadCatalog(dataDir string, cfg config.Config) *locations.Catalog {
	path := catalogPath(dataDir, cfg)
	cat, err := locations.Load(path)
	if err != nil {
		log.Warn().Str("component", "engine").Str("path", path).Err(err).Msg("location catalog unavailable")
		return &locations.Catalog{Cities: map[string]locations.City{}}
	}
	log.Info().Str("component", "engine").Str("path", path).
		Int("cities", cat.Metadata.TotalCities).Int("districts", cat.Metadata.TotalDistricts).
		Msg("location catalog loaded")
	return cat
}

// keyValidator probes the Places API with a throwaway client.
func keyValidator(cfg func() config.Config, limiter *ratelimit.HostLimiter) func(ctx context.Context, key string) error {
	return func(ctx context.Context, key string) error {
		pc := placesConfig(cfg(), limiter)
		pc.APIKey = key
		pc.MaxRetries = 1
		c, err := places.New(pc)
		if err != nil {
			return err
		}
		return c.Probe(ctx)
	}
}

// scheduledRun starts a run from the saved selection file unless one is active.
func scheduledRun(coord *job.Coordinator, selectionPath string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sel, err := locations.LoadSelection(selectionPath)
		if err != nil {
			return err
		}
		id, err := coord.Start(ctx, job.StartRequest{Selection: sel})
		if errors.Is(err, job.ErrAlreadyRunning) {
			log.Info().Str("component", "scheduler").Msg("skipping scheduled run, one is already active")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Str("component", "scheduler").Str("operation", id).Msg("scheduled run started")
		return nil
	}
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
