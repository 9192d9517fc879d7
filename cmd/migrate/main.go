// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/polytracker/scanner/internal/app"
	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/storage/migrations"
)

func main() {
	action := flag.String("action", "up", "Migration action: up, down, version")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(cfg, *action); err != nil {
		log.Fatalf("%s migration failed: %v", cfg.Database.Driver, err)
	}
}

func run(cfg *config.Config, action string) error {
	dialect, url := app.MigrationTarget(cfg)

	switch action {
	case "up":
		log.Printf("Running %s migrations...", dialect)
		if err := migrations.Up(dialect, url); err != nil {
			return err
		}
		log.Printf("%s migrations completed successfully", dialect)

	case "down":
		log.Printf("Rolling back %s migration...", dialect)
		if err := migrations.Down(dialect, url); err != nil {
			return err
		}
		log.Printf("%s migration rolled back successfully", dialect)

	case "version":
		version, dirty, err := migrations.Version(dialect, url)
		if err != nil {
			return err
		}
		log.Printf("Current %s migration version: %d (dirty: %v)", dialect, version, dirty)

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
