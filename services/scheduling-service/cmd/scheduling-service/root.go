package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/himsog/himsog/libs/config"
	"github.com/himsog/himsog/libs/db"
	"github.com/himsog/himsog/libs/runtime"
	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/himsog/himsog/services/scheduling-service/internal/outbox"
	"github.com/himsog/himsog/services/scheduling-service/internal/storage"
	"github.com/himsog/himsog/services/scheduling-service/internal/wallclock"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	// version is set at build time with -ldflags "-X main.version=...".
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "scheduling-service",
	Short:         "Himsog appointment scheduling service.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (env HIMSOG_* overrides it)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newSweepCommand())
}

// app is the state every subcommand needs.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	pool   *db.Pool
	loc    *time.Location
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := wallclock.ParseOffset(cfg.Schedule.UTCOffset)
	if err != nil {
		return nil, fmt.Errorf("schedule.utc_offset: %w", err)
	}

	logger := runtime.NewLogger(cfg.Service.Name, runtime.LogOptions{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	pool, err := db.Open(ctx, db.Options{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, pool: pool, loc: loc}, nil
}

func (a *app) appointments(store lifecycle.Store) *lifecycle.Service {
	return lifecycle.NewService(store, lifecycle.Options{
		Location:       a.loc,
		Logger:         a.logger,
		SweepGrace:     a.cfg.Sweep.Grace,
		SweepBatchSize: a.cfg.Sweep.BatchSize,
		AutoComplete:   a.cfg.Sweep.AutoComplete,
	})
}

func (a *app) store() (*storage.Store, *outbox.Repository) {
	outboxRepo := outbox.NewRepository()
	return storage.NewStore(a.pool, outboxRepo), outboxRepo
}
