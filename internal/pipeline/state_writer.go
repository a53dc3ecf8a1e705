package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/logging"
)

// StateStore is the cache the writer flushes events into.
type StateStore interface {
	UpdateVehicleState(ctx context.Context, ev *domain.Event) error
}

// StateWriter drains broadcast events into the live-state cache. It batches
// on a short ticker so dashboards still feel real-time; a failed cache write
// is logged and dropped, never retried.
type StateWriter struct {
	ch    <-chan *domain.Event
	cache StateStore
	log   *slog.Logger
}

func NewStateWriter(log *slog.Logger, ch <-chan *domain.Event, cache StateStore) *StateWriter {
	return &StateWriter{ch: ch, cache: cache, log: log}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.Event, 0, 100)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.ch:
			if !ok {
				w.flush(ctx, batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= 100 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flush(context.Background(), batch)
			return
		}
	}
}

func (w *StateWriter) flush(ctx context.Context, batch []*domain.Event) {
	for _, ev := range batch {
		if err := w.cache.UpdateVehicleState(ctx, ev); err != nil {
			w.log.Warn("state cache update failed",
				slog.Int64("vehicle_id", ev.Reading.VehicleID),
				logging.Err(err),
			)
		}
	}
}
