package lifecycle

import (
	"context"
	"fmt"
	"time"

	otelx "github.com/himsog/himsog/libs/otel"
	"github.com/himsog/himsog/services/scheduling-service/internal/model"
)

type SweepReport struct {
	Scanned   int `json:"scanned"`
	NoShow    int `json:"noShow"`
	Completed int `json:"completed"`
}

// SweepNoShows closes PENDING and CONFIRMED appointments whose end plus the
// grace period is before now. Each batch commits on its own so a failure
// keeps the progress made so far.
func (s *Service) SweepNoShows(ctx context.Context, now time.Time) (report SweepReport, err error) {
	ctx, span := otelx.Start(ctx, tracer, "lifecycle.SweepNoShows")
	defer func() { otelx.Finish(span, err) }()

	cutoff := now.Add(-s.grace)
	for {
		var batch int
		err = s.store.ReadWrite(ctx, func(ctx context.Context, q Queries) error {
			due, err := q.DueForSweep(ctx, cutoff, s.batchSize)
			if err != nil {
				return fmt.Errorf("select overdue appointments: %w", err)
			}
			batch = len(due)
			for i := range due {
				appt := &due[i]
				eventType := EventNoShow
				if s.autoComplete && appt.Status == model.StatusConfirmed {
					appt.Status = model.StatusCompleted
					appt.CompletedAt = &now
					eventType = EventCompleted
				} else {
					appt.Status = model.StatusNoShow
				}
				if err := apply(ctx, q, appt, eventType, now); err != nil {
					return err
				}
			}
			for _, appt := range due {
				report.Scanned++
				if appt.Status == model.StatusCompleted {
					report.Completed++
				} else {
					report.NoShow++
				}
			}
			return nil
		})
		if err != nil {
			return report, err
		}
		if batch < s.batchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("no-show sweep finished", "scanned", report.Scanned, "no_show", report.NoShow, "completed", report.Completed)
	}
	return report, nil
}
