// Package sweeper runs the no-show sweep on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/himsog/himsog/services/scheduling-service/internal/lifecycle"
	"github.com/robfig/cron/v3"
)

type Sweeper interface {
	SweepNoShows(ctx context.Context, now time.Time) (lifecycle.SweepReport, error)
}

type Config struct {
	// Schedule is a standard five-field cron spec or a descriptor such as
	// "@every 5m".
	Schedule string
	// Timeout bounds one run. Zero means five minutes.
	Timeout time.Duration
}

type Runner struct {
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

func New(s Sweeper, logger *slog.Logger, cfg Config) (*Runner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	r := &Runner{sweeper: s, logger: logger, timeout: cfg.Timeout, now: time.Now}

	cl := cronLogger{logger: logger}
	r.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := r.cron.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for an
// in-flight sweep to finish.
func (r *Runner) Run(ctx context.Context) {
	r.cron.Start()
	r.logger.Info("no-show sweeper started", "entries", len(r.cron.Entries()))
	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Info("no-show sweeper stopped")
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("no-show sweep failed", "err", err)
	}
}

// RunOnce performs a single sweep at the current time.
func (r *Runner) RunOnce(ctx context.Context) (lifecycle.SweepReport, error) {
	return r.sweeper.SweepNoShows(ctx, r.now())
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
