// Package pipeline turns one incoming reading into a persisted reading,
// a persisted verdict, an optional maintenance record and a broadcast event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/escalation"
	"fleet-backend/internal/fusion"
	"fleet-backend/internal/logging"
	"fleet-backend/internal/metrics"
)

// Validation errors. Surfaced before anything is persisted.
var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrInvalidReading  = errors.New("invalid reading")
)

// Store is the persistence contract the pipeline consumes.
type Store interface {
	VehicleExists(ctx context.Context, vehicleID int64) (bool, error)
	InsertReading(ctx context.Context, r *domain.Reading) error
	// SaveVerdict persists the verdict and, when rec is non-nil, the
	// maintenance record atomically.
	SaveVerdict(ctx context.Context, v *domain.Verdict, rec *domain.MaintenanceRecord) error
}

// Broadcaster receives the completed event. Delivery is best-effort and must
// never block the pipeline.
type Broadcaster interface {
	Broadcast(ev *domain.Event)
}

// Result is the combined outcome of one ingest call.
type Result struct {
	Reading       *domain.Reading
	Verdict       *domain.Verdict
	MaintenanceID *int64
}

type Pipeline struct {
	store   Store
	engine  *fusion.Engine
	hub     Broadcaster
	stateCh chan<- *domain.Event
	log     *slog.Logger
}

// New wires the pipeline. stateCh feeds the live-state cache writer and may
// be nil when no cache is configured.
func New(log *slog.Logger, store Store, engine *fusion.Engine, hub Broadcaster, stateCh chan<- *domain.Event) *Pipeline {
	return &Pipeline{
		store:   store,
		engine:  engine,
		hub:     hub,
		stateCh: stateCh,
		log:     log,
	}
}

// Ingest runs one reading through validation, persistence, fusion,
// escalation and broadcast. Concurrent calls for different vehicles share no
// state beyond the storage layer; the verdict and its maintenance record
// commit together or not at all.
func (p *Pipeline) Ingest(ctx context.Context, r *domain.Reading) (*Result, error) {
	if !r.Finite() {
		metrics.ValidationFailures.Inc()
		return nil, fmt.Errorf("%w: non-finite sensor value", ErrInvalidReading)
	}

	exists, err := p.store.VehicleExists(ctx, r.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("vehicle check: %w", err)
	}
	if !exists {
		metrics.ValidationFailures.Inc()
		return nil, fmt.Errorf("%w: id %d", ErrVehicleNotFound, r.VehicleID)
	}

	if err := p.store.InsertReading(ctx, r); err != nil {
		metrics.PersistFailures.Inc()
		return nil, fmt.Errorf("persist reading: %w", err)
	}

	// A degraded or failing model registry yields the neutral prediction
	// here, never an error: ingestion availability outranks accuracy.
	pred := p.engine.Evaluate(ctx, r.Features())

	verdict := &domain.Verdict{
		ReadingID:  r.ID,
		VehicleID:  r.VehicleID,
		Failure:    pred.Failure,
		Confidence: pred.Confidence,
		Anomaly:    pred.Anomaly,
		IsoScore:   pred.IsoScore,
		Message:    pred.Message,
	}

	var rec *domain.MaintenanceRecord
	if d := escalation.Decide(pred); d.Create {
		rec = escalation.Record(r.VehicleID, d)
	}

	if err := p.store.SaveVerdict(ctx, verdict, rec); err != nil {
		// The reading is already committed and stays; the failure is
		// reported to the caller rather than retried.
		metrics.PersistFailures.Inc()
		p.log.Error("verdict persist failed, reading kept",
			slog.Int64("reading_id", r.ID),
			slog.Int64("vehicle_id", r.VehicleID),
			logging.Err(err),
		)
		return nil, fmt.Errorf("persist verdict: %w", err)
	}

	result := &Result{Reading: r, Verdict: verdict}
	if rec != nil {
		metrics.MaintenanceCreated.Inc()
		result.MaintenanceID = &rec.ID
	}

	ev := &domain.Event{Reading: r, Verdict: verdict, MaintenanceID: result.MaintenanceID}
	p.hub.Broadcast(ev)
	p.publishState(ev)

	metrics.ReadingsIngested.Inc()
	return result, nil
}

// publishState hands the event to the live-state cache writer without
// blocking; cache updates are droppable under backpressure.
func (p *Pipeline) publishState(ev *domain.Event) {
	if p.stateCh == nil {
		return
	}
	select {
	case p.stateCh <- ev:
	default:
		metrics.StateChannelDrops.Inc()
	}
}
