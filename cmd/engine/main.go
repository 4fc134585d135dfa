package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"gmaps-engine/internal/config"
	"gmaps-engine/internal/enrich"
	"gmaps-engine/internal/events"
	"gmaps-engine/internal/httpapi"
	"gmaps-engine/internal/job"
	"gmaps-engine/internal/locations"
	"gmaps-engine/internal/ratelimit"
	"gmaps-engine/internal/scheduler"
	"gmaps-engine/internal/secrets"
	"gmaps-engine/internal/store"
)

func main() {
	setupLogger(config.Default().Log)
	if err := run(); err != nil {
		log.Fatal().Str("component", "engine").Err(err).Msg("engine exited")
	}
}

func run() error {
	// Engine data dir: GMAPS_DATA_DIR if provided, else the working directory.
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	if err := config.LoadDotEnv(dataDir); err != nil {
		log.Warn().Str("component", "config").Err(err).Msg("ignoring unreadable .env")
	}

	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("another engine is already using %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		return fmt.Errorf("config bootstrap failed: %w", err)
	}

	// Load config and keep it reloadable
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		config.ApplyEnv(&cfg)
		cfg, vr := config.NormalizeAndValidate(cfg)
		for _, w := range vr.Warnings {
			log.Warn().Str("component", "config").Msg(w)
		}
		if !vr.OK() {
			return cfg, errors.New("config validation failed: " + vr.Errors[0])
		}
		return cfg, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", userCfgPath, err)
	}
	cfgVal.Store(cfg)
	currentCfg := func() config.Config { return cfgVal.Load().(config.Config) }
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath := filepath.Join(dataDir, "engine.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sink, err := store.NewSink(ctx, storageOptions(dataDir, cfg), db)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var catVal atomic.Value // stores *locations.Catalog
	catVal.Store(loadCatalog(dataDir, cfg))
	catalog := func() *locations.Catalog { return catVal.Load().(*locations.Catalog) }

	hub := events.NewHub()
	placesLimiter := ratelimit.NewHostLimiter(cfg.Places.RequestsPerSecond, 1)

	factory := &job.PlacesFactory{
		Places:     placesConfig(cfg, placesLimiter),
		ResolveKey: secrets.KeyResolver(func() string { return currentCfg().APIKeyFromEnv() }),
		Sink:       sink,
		Enricher:   enrich.NewEmailEnricher(nil, ratelimit.NewHostLimiter(1, 1)),
	}
	coord := job.NewCoordinator(job.Options{
		Factory:     factory,
		Catalog:     catalog,
		Defaults:    func() job.Settings { return jobDefaults(currentCfg()) },
		History:     store.NewRunStore(db),
		StopTimeout: time.Duration(cfg.App.StopTimeoutSeconds) * time.Second,
	})
	coord.AddObserver(events.JobObserver{Hub: hub})

	mux := httpapi.NewMux(httpapi.Deps{
		Hub:         hub,
		Scraper:     coord,
		CfgVal:      &cfgVal,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
		OnConfig: func(next config.Config) {
			setupLogger(next.Log)
			catVal.Store(loadCatalog(dataDir, next))
		},
		Catalog:      catalog,
		Defaults:     func() job.Settings { return jobDefaults(currentCfg()) },
		ValidateKey:  keyValidator(currentCfg, placesLimiter),
		SetPlacesKey: secrets.SetPlacesKey,
		Storage:      func(ctx context.Context) (store.Inventory, error) { return store.Describe(ctx, sink) },
	})

	token, err := randomToken(16)
	if err != nil {
		return err
	}
	tokenPath := filepath.Join(dataDir, "engine.token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return err
	}
	defer os.Remove(tokenPath)
	mux.HandleFunc("/shutdown", shutdownHandler(token, cancel))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.AccessLog, httpapi.Recover, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("component", "engine").Str("addr", "http://"+addr).Str("db", dbPath).
		Str("storage", sink.Name()).Msg("engine listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		coord.Shutdown(sctx)
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		// keeps idle SSE and websocket clients from timing out
		scheduler.Every(gctx, 30*time.Second, "heartbeat", func(context.Context) error {
			hub.Publish(events.MakeEvent("", events.TypeStatus, 1, coord.Status()))
			return nil
		})
		return nil
	})
	if cfg.Schedule.Enabled {
		selPath := config.Resolve(dataDir, cfg.Schedule.SelectionPath)
		g.Go(func() error {
			return scheduler.Cron(gctx, cfg.Schedule.Cron, "scheduled-run", scheduledRun(coord, selPath))
		})
	}

	err = g.Wait()
	log.Info().Str("component", "engine").Msg("engine stopped")
	return err
}
