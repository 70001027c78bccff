package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/review"
	"github.com/ledgerline/ledgerline/internal/score"
	"github.com/ledgerline/ledgerline/internal/service"
	"github.com/ledgerline/ledgerline/internal/storage"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	// Get database path from config
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/ledgerline/ledgerline.db"
	}

	// Expand tilde and environment variables
	dbPath = config.ExpandPath(dbPath)

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initManager wires the full submit/review pipeline on top of a store.
func initManager(store service.Storage) (*review.Manager, error) {
	scoreCfg, err := config.LoadScoreConfig()
	if err != nil {
		return nil, err
	}
	voucherCfg, err := config.LoadVoucherConfig()
	if err != nil {
		return nil, err
	}

	scorer := score.NewScorer(store, scoreCfg)
	generator := voucher.NewGenerator(store, voucherCfg)
	return review.NewManager(store, scorer, generator, config.LoadReviewConfig()), nil
}

// parsePeriod turns --from/--to values into a half-open period. An empty
// --to means "through today".
func parsePeriod(from, to string) (service.Period, error) {
	var period service.Period

	if from == "" {
		return period, fmt.Errorf("--from is required (YYYY-MM-DD)")
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return period, fmt.Errorf("invalid --from date %q: %w", from, err)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	if to != "" {
		parsed, err := time.Parse("2006-01-02", to)
		if err != nil {
			return period, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		end = parsed.AddDate(0, 0, 1) // inclusive end date
	}

	period.Start = start
	period.End = end
	if !period.Start.Before(period.End) {
		return period, fmt.Errorf("--from must be before --to")
	}
	return period, nil
}
