package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Guilhem-Bonnet/subseek/internal/adapters/addic7ed"
	"github.com/Guilhem-Bonnet/subseek/internal/adapters/gestdown"
	"github.com/Guilhem-Bonnet/subseek/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/subseek/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/subseek/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/subseek/internal/app"
	"github.com/Guilhem-Bonnet/subseek/internal/buildinfo"
	"github.com/Guilhem-Bonnet/subseek/internal/catalogcache"
	"github.com/Guilhem-Bonnet/subseek/internal/config"
	"github.com/Guilhem-Bonnet/subseek/internal/domain"
	"github.com/Guilhem-Bonnet/subseek/internal/language"
	"github.com/Guilhem-Bonnet/subseek/internal/logging"
)

func main() {
	configPath := flag.String("config", envOr("SUBSEEK_CONFIG", "subseek.toml"), "Fichier de configuration TOML (optionnel)")
	addr := flag.String("addr", "", "Adresse d'écoute (ex: 127.0.0.1:8080), prioritaire sur la config")
	dbPath := flag.String("db", "", "Chemin SQLite (ex: subseek.db), prioritaire sur la config")
	flag.Parse()

	cfg, fromFile, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}

	logger, logCloser := logging.New(cfg.Log, "subseek-server", os.Stdout)
	defer func() { _ = logCloser.Close() }()
	log.Logger = logger

	logger.Info().
		Interface("build", buildinfo.Current()).
		Str("db", cfg.Server.DBPath).
		Bool("config_file", fromFile).
		Msg("starting")

	ctx := context.Background()
	db, err := sqlite.Open(ctx, cfg.Server.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open db")
	}
	defer func() { _ = db.Close() }()

	bus := memorybus.New()
	defer bus.Close()
	settingsRepo := sqlite.NewSettingsRepository(db.SQL)
	settingsSvc := app.NewSettingsService(settingsRepo, bus)

	current := domain.DefaultSettings()
	if s, err := settingsSvc.Get(ctx); err == nil {
		current = s
	} else {
		logger.Warn().Err(err).Msg("settings unavailable, using defaults")
	}
	if at, err := settingsRepo.UpdatedAt(ctx); err == nil && !at.IsZero() {
		logger.Info().Time("settings_updated_at", at).Msg("settings loaded")
	}

	// Limiteur global (partagé par tous les catalogues) + hook côté API settings.
	requestLimiter := app.NewDynamicLimiter(current.MaxConcurrentRequests)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	langs := language.New()
	searchOpts := app.SearchOptions{
		ShowPolicy:    catalogcache.Policy{Base: cfg.Cache.ShowTTL.Std(), Jitter: cfg.Cache.ShowJitter.Std()},
		ListingPolicy: catalogcache.Policy{Base: cfg.Cache.ListingTTL.Std(), Jitter: cfg.Cache.ListingJitter.Std()},
		Bus:           bus,
	}
	searchOpts.HideIncomplete = func(ctx context.Context) bool {
		s, err := settingsSvc.Get(ctx)
		return err == nil && s.HideIncomplete
	}

	registry := app.NewRegistry()

	if cfg.Addic7ed.Enabled {
		addic, err := addic7ed.New(addic7ed.Config{
			BaseURL:   cfg.Addic7ed.BaseURL,
			UserAgent: buildinfo.UserAgent(),
			Timeout:   cfg.Addic7ed.Timeout.Std(),
			Cooldown:  cfg.Addic7ed.LoginCooldown.Std(),
			Attempts:  cfg.Addic7ed.Attempts,
			Limiter:   requestLimiter,
		}, langs, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("addic7ed catalog")
		}
		// Identifiants initiaux, puis rechargés à chaque settings.updated.
		addic.Session().SetCredentials(current.Credentials())
		go addic.Session().Watch(shutdownCtx, bus, settingsSvc)

		registry.Register(&app.CatalogService{
			Search: app.NewSearchService(addic, langs, logger.With().Str("component", "search").Logger(), searchOpts),
			Fetch:  app.NewFetchService(addic, bus, logger.With().Str("component", "fetch").Logger()),
		})
	}

	if cfg.Gestdown.Enabled {
		gest, err := gestdown.New(gestdown.Config{
			BaseURL:  cfg.Gestdown.BaseURL,
			Timeout:  cfg.Gestdown.Timeout.Std(),
			Attempts: cfg.Gestdown.Attempts,
			Limiter:  requestLimiter,
		}, langs, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("gestdown catalog")
		}
		registry.Register(&app.CatalogService{
			Search: app.NewSearchService(gest, langs, logger.With().Str("component", "search").Logger(), searchOpts),
			Fetch:  app.NewFetchService(gest, bus, logger.With().Str("component", "fetch").Logger()),
		})
	}

	logger.Info().Strs("catalogs", registry.Names()).Int("max_concurrent_requests", requestLimiter.Limit()).Msg("catalogs ready")

	srv := httpapi.NewServer(logger, registry, settingsSvc, bus, requestLimiter, func(updated domain.Settings) {
		logger.Info().Interface("settings", updated.Redacted()).Msg("settings updated")
	}).WithRequestTimeout(cfg.Server.RequestTimeout.Std())

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server crashed")
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	logger.Info().Msg("bye")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
