package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/fusion"
	"fleet-backend/internal/ml"
)

type fixedModels struct {
	inf ml.Inference
}

func (m fixedModels) Infer(_ context.Context, _ domain.Features) ml.Inference {
	return m.inf
}

// fakeStore records calls and assigns ids the way the real store does.
type fakeStore struct {
	vehicles map[int64]bool

	vehicleErr error
	readingErr error
	verdictErr error

	readings    []*domain.Reading
	verdicts    []*domain.Verdict
	maintenance []*domain.MaintenanceRecord

	nextID int64
}

func newFakeStore(vehicleIDs ...int64) *fakeStore {
	s := &fakeStore{vehicles: make(map[int64]bool)}
	for _, id := range vehicleIDs {
		s.vehicles[id] = true
	}
	return s
}

func (s *fakeStore) VehicleExists(_ context.Context, vehicleID int64) (bool, error) {
	if s.vehicleErr != nil {
		return false, s.vehicleErr
	}
	return s.vehicles[vehicleID], nil
}

func (s *fakeStore) InsertReading(_ context.Context, r *domain.Reading) error {
	if s.readingErr != nil {
		return s.readingErr
	}
	s.nextID++
	r.ID = s.nextID
	s.readings = append(s.readings, r)
	return nil
}

func (s *fakeStore) SaveVerdict(_ context.Context, v *domain.Verdict, rec *domain.MaintenanceRecord) error {
	if s.verdictErr != nil {
		return s.verdictErr
	}
	s.nextID++
	v.ID = s.nextID
	s.verdicts = append(s.verdicts, v)
	if rec != nil {
		s.nextID++
		rec.ID = s.nextID
		s.maintenance = append(s.maintenance, rec)
	}
	return nil
}

type fakeHub struct {
	events []*domain.Event
}

func (h *fakeHub) Broadcast(ev *domain.Event) {
	h.events = append(h.events, ev)
}

func newPipeline(store Store, inf ml.Inference) (*Pipeline, *fakeHub) {
	h := &fakeHub{}
	engine := fusion.NewEngine(fixedModels{inf: inf})
	return New(slog.Default(), store, engine, h, nil), h
}

func exampleReading() *domain.Reading {
	return &domain.Reading{
		VehicleID: 1,
		Speed:     60.0,
		Battery:   85.0,
		AccX:      0.1,
		AccY:      0.0,
		AccZ:      9.8,
		TempMotor: 70.0,
	}
}

func TestIngestEndToEnd(t *testing.T) {
	store := newFakeStore(1)
	p, h := newPipeline(store, ml.Inference{ClassLabel: 1, Probability: 0.85, Anomaly: true, IsoScore: -0.12})

	res, err := p.Ingest(context.Background(), exampleReading())
	require.NoError(t, err)

	assert.True(t, res.Verdict.Failure)
	assert.Equal(t, 0.85, res.Verdict.Confidence)
	assert.True(t, res.Verdict.Anomaly)
	assert.Equal(t, domain.MsgCritical, res.Verdict.Message)

	require.Len(t, store.readings, 1)
	require.Len(t, store.verdicts, 1)
	assert.Equal(t, store.readings[0].ID, store.verdicts[0].ReadingID)

	require.Len(t, store.maintenance, 1)
	rec := store.maintenance[0]
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.True(t, rec.PredictedByAI)
	assert.Equal(t, domain.SeverityHigh, rec.Severity)
	require.NotNil(t, res.MaintenanceID)
	assert.Equal(t, rec.ID, *res.MaintenanceID)

	require.Len(t, h.events, 1)
	assert.Equal(t, store.verdicts[0], h.events[0].Verdict)
	assert.Equal(t, store.readings[0], h.events[0].Reading)
}

func TestIngestMaintenanceThresholds(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		anomaly    bool
		created    bool
		severity   domain.MaintenanceSeverity
	}{
		{"low confidence", 0.4, false, false, ""},
		{"moderate confidence", 0.6, true, false, ""},
		{"exactly 0.7", 0.7, false, false, ""},
		{"high", 0.8, false, true, domain.SeverityHigh},
		{"critical", 0.95, true, true, domain.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(1)
			p, _ := newPipeline(store, ml.Inference{ClassLabel: 1, Probability: tt.confidence, Anomaly: tt.anomaly})

			res, err := p.Ingest(context.Background(), exampleReading())
			require.NoError(t, err)

			if !tt.created {
				assert.Empty(t, store.maintenance)
				assert.Nil(t, res.MaintenanceID)
				return
			}
			require.Len(t, store.maintenance, 1)
			assert.Equal(t, tt.severity, store.maintenance[0].Severity)
		})
	}
}

func TestIngestDegradedRegistry(t *testing.T) {
	store := newFakeStore(1)
	p, h := newPipeline(store, ml.Neutral)

	res, err := p.Ingest(context.Background(), exampleReading())
	require.NoError(t, err)

	assert.False(t, res.Verdict.Failure)
	assert.Equal(t, 0.0, res.Verdict.Confidence)
	assert.False(t, res.Verdict.Anomaly)
	assert.Equal(t, domain.MsgNormal, res.Verdict.Message)
	assert.Empty(t, store.maintenance)
	assert.Len(t, h.events, 1)
}

func TestIngestUnknownVehicle(t *testing.T) {
	store := newFakeStore(1)
	p, h := newPipeline(store, ml.Neutral)

	r := exampleReading()
	r.VehicleID = 99
	_, err := p.Ingest(context.Background(), r)

	assert.ErrorIs(t, err, ErrVehicleNotFound)
	assert.Empty(t, store.readings, "nothing may be persisted for an unknown vehicle")
	assert.Empty(t, h.events)
}

func TestIngestNonFiniteReading(t *testing.T) {
	store := newFakeStore(1)
	p, _ := newPipeline(store, ml.Neutral)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := exampleReading()
		r.TempMotor = bad
		_, err := p.Ingest(context.Background(), r)
		assert.ErrorIs(t, err, ErrInvalidReading)
	}
	assert.Empty(t, store.readings)
}

func TestIngestReadingPersistFailure(t *testing.T) {
	store := newFakeStore(1)
	store.readingErr = errors.New("db down")
	p, h := newPipeline(store, ml.Neutral)

	_, err := p.Ingest(context.Background(), exampleReading())

	require.Error(t, err)
	assert.Empty(t, store.verdicts, "fusion must not run when the reading was not stored")
	assert.Empty(t, h.events)
}

func TestIngestVerdictPersistFailureKeepsReading(t *testing.T) {
	store := newFakeStore(1)
	store.verdictErr = errors.New("tx aborted")
	p, h := newPipeline(store, ml.Inference{ClassLabel: 1, Probability: 0.85})

	_, err := p.Ingest(context.Background(), exampleReading())

	require.Error(t, err)
	assert.Len(t, store.readings, 1, "the committed reading stays")
	assert.Empty(t, store.maintenance)
	assert.Empty(t, h.events, "an unpersisted verdict must never be broadcast")
}

func TestIngestPublishesStateWithoutBlocking(t *testing.T) {
	store := newFakeStore(1)
	h := &fakeHub{}
	engine := fusion.NewEngine(fixedModels{inf: ml.Neutral})

	// Capacity 1 and no consumer: the second publish must drop, not block.
	stateCh := make(chan *domain.Event, 1)
	p := New(slog.Default(), store, engine, h, stateCh)

	for i := 0; i < 3; i++ {
		_, err := p.Ingest(context.Background(), exampleReading())
		require.NoError(t, err)
	}
	assert.Len(t, stateCh, 1)
}
