package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taraworks/taravoice/internal/audit"
	"github.com/taraworks/taravoice/internal/config"
	"github.com/taraworks/taravoice/internal/enrich"
	"github.com/taraworks/taravoice/internal/httpapi"
	"github.com/taraworks/taravoice/internal/maintenance"
	"github.com/taraworks/taravoice/internal/observability"
	"github.com/taraworks/taravoice/internal/registry"
	"github.com/taraworks/taravoice/internal/relay"
	"github.com/taraworks/taravoice/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	auditStore, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("audit store init failed: %v", err)
	}
	defer auditStore.Close()

	geocoder := enrich.NewHTTPGeocoder(cfg.GeocodeBaseURL, cfg.GeocodeAPIKey)
	profile := enrich.NewProfileClient(cfg.ProfileBaseURL, cfg.ProfileClientID, cfg.ProfileClientSecret)
	if !profile.Configured() {
		log.Printf("profile api credentials not set; enrichment will degrade to geocode-only summaries")
	}
	fetcher := enrich.NewFetcher(geocoder, profile)

	connections := registry.New(metrics)

	manager := upstream.NewManager(upstream.Config{
		APIKey:         cfg.UpstreamAPIKey,
		URL:            cfg.UpstreamURL,
		Model:          cfg.UpstreamModel,
		DefaultVoice:   cfg.DefaultVoice,
		ReconnectDelay: cfg.ReconnectDelay,
	}, connections, metrics)
	defer manager.Close()
	manager.SetReconnectHook(func(attempt int) {
		if err := auditStore.UpstreamReconnect(context.Background(), attempt); err != nil {
			log.Printf("audit reconnect: %v", err)
		}
	})

	bridge := relay.New(manager, fetcher, connections, metrics, auditStore)

	api := httpapi.New(cfg, connections, bridge, manager, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	maintenance.StartKeepalive(runCtx, cfg.KeepaliveURL, cfg.KeepaliveInterval)
	maintenance.StartMediaJanitor(runCtx, cfg.MediaDirs, cfg.MediaMaxAge, cfg.MediaSweepInterval)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
