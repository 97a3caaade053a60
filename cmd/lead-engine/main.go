// Package main wires together the lead engine service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/api"
	"github.com/leadgrid/lead-engine/internal/clock/system"
	"github.com/leadgrid/lead-engine/internal/config"
	"github.com/leadgrid/lead-engine/internal/dedupe"
	"github.com/leadgrid/lead-engine/internal/engine"
	"github.com/leadgrid/lead-engine/internal/enrich"
	"github.com/leadgrid/lead-engine/internal/fetch"
	"github.com/leadgrid/lead-engine/internal/job"
	"github.com/leadgrid/lead-engine/internal/logging"
	"github.com/leadgrid/lead-engine/internal/scrape"
	"github.com/leadgrid/lead-engine/internal/score"
	"github.com/leadgrid/lead-engine/internal/store"
	"github.com/leadgrid/lead-engine/internal/store/memory"
	"github.com/leadgrid/lead-engine/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	runOnce := flag.Bool("run", false, "Run the configured scrape matrix once and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pg.Close()
		st = pg
	} else {
		logger.Warn("no db.dsn configured, using in-memory store")
		st = memory.New()
	}

	clock := system.New()
	scorer := score.NewWithWeights(clock, cfg.Scoring)
	client := fetch.New(cfg.FetchClientConfig(), logger.Named("fetch"))

	registry := scrape.NewRegistry(
		scrape.NewYellowPages(client, logger),
		scrape.NewBBB(client, logger),
		scrape.NewYelp(client, logger),
	)

	dedup := dedupe.New(st, scorer, clock, logger)
	orchestrator := enrich.NewOrchestrator(
		st, scorer, clock, logger,
		cfg.Enrichment.Concurrency,
		buildEnrichers(cfg.Enrichment.Modules, client, logger)...,
	)
	tracker := job.NewTracker()

	eng := engine.New(st, registry, dedup, orchestrator, tracker, clock, logger, engine.Config{
		Sources:     cfg.Targeting.Sources,
		Categories:  cfg.Targeting.Categories,
		States:      cfg.Targeting.States,
		Cities:      cfg.Targeting.Cities,
		MaxPages:    cfg.Scraping.MaxPages,
		Workers:     cfg.Scraping.Workers,
		EnrichLimit: cfg.Enrichment.BatchSize,
	})

	if *runOnce {
		if err := eng.Run(ctx); err != nil {
			logger.Fatal("run failed", zap.Error(err))
		}
		return
	}

	apiCfg := api.Config{}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	apiServer := api.NewServer(eng, tracker, st, logger, apiCfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildEnrichers instantiates the configured enrichment modules in order.
func buildEnrichers(modules []string, client *fetch.Client, logger *zap.Logger) []enrich.Enricher {
	available := map[string]enrich.Enricher{}
	for _, e := range []enrich.Enricher{
		enrich.NewWebsiteDiscovery(client, logger),
		enrich.NewTechStack(client, logger),
		enrich.NewSocial(client, logger),
		enrich.NewContact(client, logger),
		enrich.NewReviews(client, logger),
	} {
		available[e.Module()] = e
	}

	var out []enrich.Enricher
	for _, name := range modules {
		e, ok := available[name]
		if !ok {
			logger.Warn("unknown enrichment module in config", zap.String("module", name))
			continue
		}
		out = append(out, e)
	}
	return out
}
