// Package lifecycle owns appointment state. Every mutation runs in one store
// transaction together with its outbox event.
package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("himsog/lifecycle")

type Options struct {
	// Location is the provider-local fixed offset used to assemble instants.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger

	SweepGrace     time.Duration
	SweepBatchSize int
	// AutoComplete moves overdue CONFIRMED appointments to COMPLETED
	// instead of NO_SHOW.
	AutoComplete bool
}

type Service struct {
	store        Store
	loc          *time.Location
	now          func() time.Time
	logger       *slog.Logger
	grace        time.Duration
	batchSize    int
	autoComplete bool
}

func NewService(store Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SweepGrace < 0 {
		opts.SweepGrace = 0
	}
	if opts.SweepBatchSize <= 0 {
		opts.SweepBatchSize = 100
	}
	return &Service{
		store:        store,
		loc:          opts.Location,
		now:          opts.Now,
		logger:       opts.Logger,
		grace:        opts.SweepGrace,
		batchSize:    opts.SweepBatchSize,
		autoComplete: opts.AutoComplete,
	}
}

// Location is the offset the service assembles wall-clock input in.
func (s *Service) Location() *time.Location { return s.loc }
