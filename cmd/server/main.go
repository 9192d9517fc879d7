// Package main provides the API server entry point for the insider-trade scanner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/polytracker/scanner/internal/api"
	"github.com/polytracker/scanner/internal/app"
	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/scanner"
	"github.com/polytracker/scanner/internal/service"
)

func main() {
	withScheduler := flag.Bool("scheduler", false, "Also run the scan scheduler in this process")
	flag.Parse()

	fmt.Println("Polytracker API Server")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg)
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize scanner")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Error closing resources")
		}
	}()

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithMetrics(a.Metrics),
		api.WithHealthCheck(a.Store),
	}

	var scheduler *scanner.Scheduler
	if *withScheduler {
		scheduler, err = a.NewScheduler(false)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create scheduler")
		}
		if err := scheduler.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
		opts = append(opts, api.WithScanTrigger(scheduler))
	}

	server := api.NewServer(serverConfig,
		service.NewTrackingService(a.Store, logger),
		service.NewQueryService(a.Store),
		opts...)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"scheduler": *withScheduler,
	}).Info("Server started successfully")

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Scheduler did not stop cleanly")
		}
	}

	logger.Info("Server exited")
}
