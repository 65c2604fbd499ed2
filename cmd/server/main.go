package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcmrelay/mpps-proxy/internal/cache"
	"github.com/dcmrelay/mpps-proxy/internal/config"
	"github.com/dcmrelay/mpps-proxy/internal/database"
	"github.com/dcmrelay/mpps-proxy/internal/forwardrule"
	"github.com/dcmrelay/mpps-proxy/internal/httpapi"
	"github.com/dcmrelay/mpps-proxy/internal/mpps"
	"github.com/dcmrelay/mpps-proxy/internal/recovery"
	"github.com/dcmrelay/mpps-proxy/internal/spool"
	"github.com/dcmrelay/mpps-proxy/internal/store"
	"github.com/dcmrelay/mpps-proxy/internal/template"
	"github.com/dcmrelay/mpps-proxy/internal/transform"
	"github.com/dcmrelay/mpps-proxy/pkg/logger"
	"github.com/rs/zerolog/log"
)

// aeRuntime is what main wires up per configured Proxy AE: the pieces
// internal/mpps.Service needs, plus the evaluator that config reload
// updates and the admin HTTP API introspects.
type aeRuntime struct {
	ae        config.ProxyAEConfig
	evaluator *forwardrule.ConfigEvaluator
	service   *mpps.Service
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("starting mpps proxy")

	// Database connection backs the Spool Index and audit trail, both
	// observability-only mirrors of the filesystem spool (spec.md Design
	// Notes "Filesystem as queue"); unlike the teacher, a failed
	// connection here does not abort startup.
	var spoolIndexRepo *store.SpoolIndexRepository
	var indexer spool.Indexer
	if err := database.Connect(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}); err != nil {
		log.Warn().Err(err).Msg("spool index database unavailable, continuing with filesystem spool only")
	} else {
		defer database.Close()
		spoolIndexRepo = store.NewSpoolIndexRepository(database.DB)
		indexer = spoolIndexRepo
	}

	var bytesCache cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rc, err := cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		bytesCache = rc
		log.Info().Msg("redis template source cache initialized")
	} else {
		bytesCache = cache.NewMemoryCache()
		log.Info().Msg("memory template source cache initialized")
	}

	proxyAEs, err := config.LoadProxyAEs(cfg.ProxyAEConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load proxy AE configuration")
	}

	templates := template.NewCache(template.NewFileSource("."), bytesCache)
	writer := spool.NewWriter(indexer)
	transformer := transform.NewTransformer(writer, templates)
	sweeper := recovery.NewSweeper()

	runtimes := make(map[string]*aeRuntime, len(proxyAEs))
	evaluators := make(map[string]*forwardrule.ConfigEvaluator, len(proxyAEs))
	var sweepTargets []httpapi.SweepTarget
	var spoolRoots []string

	for _, ae := range proxyAEs {
		rules, err := ae.Rules()
		if err != nil {
			log.Fatal().Err(err).Str("ae_title", ae.AETitle).Msg("failed to parse forward rules")
		}
		eval := forwardrule.NewConfigEvaluator(rules)
		service := mpps.NewService(ae.Dirs(), eval, writer, transformer)

		runtimes[ae.AETitle] = &aeRuntime{ae: ae, evaluator: eval, service: service}
		evaluators[ae.AETitle] = eval

		dirs := ae.Dirs()
		sweepTargets = append(sweepTargets,
			httpapi.SweepTarget{Root: dirs.CStoreDir, Kind: recovery.RootCStore},
			httpapi.SweepTarget{Root: dirs.NCreateDir, Kind: recovery.RootNCreate},
			httpapi.SweepTarget{Root: dirs.NSetDir, Kind: recovery.RootNSet},
			httpapi.SweepTarget{Root: dirs.DoseSrDir, Kind: recovery.RootNCreate},
		)
		spoolRoots = append(spoolRoots, dirs.CStoreDir, dirs.NCreateDir, dirs.NSetDir, dirs.DoseSrDir)
		if dirs.NActionDir != "" {
			sweepTargets = append(sweepTargets, httpapi.SweepTarget{Root: dirs.NActionDir, Kind: recovery.RootNAction})
			spoolRoots = append(spoolRoots, dirs.NActionDir)
		}
		if dirs.NEventDir != "" {
			sweepTargets = append(sweepTargets, httpapi.SweepTarget{Root: dirs.NEventDir, Kind: recovery.RootNEvent})
			spoolRoots = append(spoolRoots, dirs.NEventDir)
		}
	}

	// Run the crash-recovery sweep once at startup (spec.md §4.5).
	for _, target := range sweepTargets {
		sweeper.Sweep(target.Root, target.Kind)
	}

	reload := func() error {
		freshAEs, err := config.LoadProxyAEs(cfg.ProxyAEConfigPath)
		if err != nil {
			return err
		}
		for _, ae := range freshAEs {
			rt, ok := runtimes[ae.AETitle]
			if !ok {
				log.Warn().Str("ae_title", ae.AETitle).Msg("reload: proxy AE added after startup is not picked up without a restart")
				continue
			}
			rules, err := ae.Rules()
			if err != nil {
				return fmt.Errorf("reload: proxy AE %s: %w", ae.AETitle, err)
			}
			rt.evaluator.Reload(rules)
		}
		log.Info().Int("ae_count", len(freshAEs)).Msg("reloaded forward rule configuration")
		return nil
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		DB:           database.DB,
		SpoolIndex:   spoolIndexRepo,
		Evaluators:   evaluators,
		Templates:    templates,
		Sweeper:      sweeper,
		SweepTargets: sweepTargets,
		SpoolRoots:   spoolRoots,
		Reload:       reload,
	})

	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Int("proxy_ae_count", len(runtimes)).Msg("admin server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	for _, target := range sweepTargets {
		sweeper.Sweep(target.Root, target.Kind)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("admin server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
