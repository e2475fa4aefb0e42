// Package sweeper marks booked occurrences whose slot has ended as no-shows.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/courtdesk/libs/otel"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
	"go.opentelemetry.io/otel/attribute"
)

type Occurrences interface {
	ListOccurrences(ctx context.Context, f venue.OccurrenceFilter) ([]model.Occurrence, error)
	MarkNoShow(ctx context.Context, t venue.Target) (model.Occurrence, error)
}

type Worker struct {
	occurrences Occurrences
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(occurrences Occurrences, logger *slog.Logger, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		occurrences: occurrences,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		now:         time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("no-show sweeper disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error("no-show sweep failed", "err", err)
			}
		}
	}
}

type Result struct {
	Marked  int
	Skipped int
}

// Sweep marks one batch. An occurrence that changed under it (checked in,
// cancelled, or raced by another sweeper) is skipped.
func (w *Worker) Sweep(ctx context.Context) (Result, error) {
	ctx, span := otelx.Tracer("sweeper").Start(ctx, "noshow.sweep")
	defer span.End()

	due, err := w.occurrences.ListOccurrences(ctx, venue.OccurrenceFilter{
		Status:     model.StatusBooked,
		EndsBefore: w.now(),
		Limit:      w.batchSize,
	})
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, o := range due {
		_, err := w.occurrences.MarkNoShow(ctx, venue.Target{OccurrenceID: o.ID, Version: o.Version})
		switch {
		case err == nil:
			res.Marked++
		case errors.Is(err, model.ErrConcurrentModification),
			errors.Is(err, model.ErrInvalidTransition),
			errors.Is(err, model.ErrTooEarly):
			res.Skipped++
		default:
			return res, err
		}
	}
	span.SetAttributes(attribute.Int("sweep.marked", res.Marked), attribute.Int("sweep.skipped", res.Skipped))
	if res.Marked > 0 || res.Skipped > 0 {
		w.logger.Info("no-show sweep", "marked", res.Marked, "skipped", res.Skipped)
	}
	return res, nil
}
