package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leozw/zoom-dashboard/internal/api"
	"github.com/leozw/zoom-dashboard/internal/api/handlers"
	"github.com/leozw/zoom-dashboard/internal/config"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/storage/postgres"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/leozw/zoom-dashboard/pkg/keycloak"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	metricsCollector := metrics.NewCollector(cfg.Mimir)

	// The archive mirror is optional; readiness follows it when configured
	var db handlers.Pinger
	if cfg.Database.URL != "" {
		conn, err := postgres.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer conn.Close()
		db = conn
	}

	zoomClient := zoom.NewClient(cfg.Zoom, logger, zoom.WithMetrics(metricsCollector))
	keycloakClient := keycloak.NewClient(cfg.Keycloak, logger)

	h := handlers.NewHandler(cfg.Archive.Dir, cfg.Archive.RetentionDays, zoomClient, db, metricsCollector, logger)
	server := api.NewServer(cfg.Server.Mode, h, keycloakClient, metricsCollector, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go metricsCollector.StartRemoteWrite(ctx, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
