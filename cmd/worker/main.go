// Package main provides the scan worker entry point for the insider-trade scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polytracker/scanner/internal/app"
	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/types"
)

func main() {
	var (
		once = flag.Bool("once", false, "Run a single scan and exit")
		mode = flag.String("mode", "", "Scan mode override: recent, full, tracked_wallets")
	)
	flag.Parse()

	fmt.Println("Polytracker Scan Worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mode != "" {
		parsed, ok := types.ParseScanMode(*mode)
		if !ok {
			log.Fatalf("Unknown scan mode: %s", *mode)
		}
		cfg.Scan.Mode = parsed
	}

	logger := app.NewLogger(cfg)
	logger.WithFields(cfg.Summary()).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	if *once {
		run, err := a.Orchestrator.Run(ctx, cfg.Scan.Mode, cfg.DetectionConfig())
		if err != nil {
			logger.WithError(err).Error("Scan failed")
			_ = a.Close()
			os.Exit(1)
		}
		logger.WithFields(map[string]interface{}{
			"runId":      run.ID,
			"status":     run.Status,
			"suspicious": run.SuspiciousFound,
			"alerts":     run.AlertsSent,
		}).Info("Single scan finished")
		return
	}

	scheduler, err := a.NewScheduler(true)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping scheduler...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}

	logger.Info("Worker stopped. Goodbye!")
}
