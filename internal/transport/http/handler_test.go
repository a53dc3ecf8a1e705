package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-backend/internal/auth"
	"fleet-backend/internal/config"
	"fleet-backend/internal/domain"
	"fleet-backend/internal/hub"
	"fleet-backend/internal/pipeline"
	"fleet-backend/internal/store"
)

type fakeIngestor struct {
	result *pipeline.Result
	err    error
	got    *domain.Reading
}

func (f *fakeIngestor) Ingest(_ context.Context, r *domain.Reading) (*pipeline.Result, error) {
	f.got = r
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReads struct {
	reading *domain.Reading
	verdict *domain.Verdict
}

func (f *fakeReads) VehicleExists(_ context.Context, vehicleID int64) (bool, error) {
	return vehicleID == 1, nil
}

func (f *fakeReads) LatestReading(_ context.Context, _ int64) (*domain.Reading, error) {
	if f.reading == nil {
		return nil, store.ErrNotFound
	}
	return f.reading, nil
}

func (f *fakeReads) LatestVerdict(_ context.Context, _ int64) (*domain.Verdict, error) {
	if f.verdict == nil {
		return nil, store.ErrNotFound
	}
	return f.verdict, nil
}

func healthy(_ context.Context) error { return nil }

func newTestHandler(t *testing.T, ing Ingestor, reads ReadStore) (*Handler, *hub.Hub) {
	t.Helper()
	h := hub.New(slog.Default(), 64, 16)
	t.Cleanup(h.Close)
	return NewHandler(slog.Default(), ing, reads, h, healthy, healthy, func() bool { return true }), h
}

func TestHandleIngest(t *testing.T) {
	maintenanceID := int64(7)
	ing := &fakeIngestor{result: &pipeline.Result{
		Reading: &domain.Reading{ID: 3, VehicleID: 1},
		Verdict: &domain.Verdict{
			ID: 4, ReadingID: 3, VehicleID: 1,
			Failure: true, Confidence: 0.85, Anomaly: true, IsoScore: -0.12,
			Message: domain.MsgCritical, Timestamp: time.Now().UTC(),
		},
		MaintenanceID: &maintenanceID,
	}}
	handler, _ := newTestHandler(t, ing, &fakeReads{})

	body := `{"vehicle_id":1,"speed":60.0,"battery":85.0,"acc_x":0.1,"acc_y":0.0,"acc_z":9.8,"temp_motor":70.0}`
	req := httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Routes(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(3), resp["sensor_data_id"])
	assert.Equal(t, float64(4), resp["prediction_id"])
	assert.Equal(t, true, resp["failure"])
	assert.Equal(t, 0.85, resp["confidence"])
	assert.Equal(t, domain.MsgCritical, resp["message"])
	assert.Equal(t, float64(7), resp["maintenance_id"])

	// Absent sensor fields take training defaults.
	req2 := httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{"vehicle_id":1}`))
	handler.Routes(nil).ServeHTTP(httptest.NewRecorder(), req2)
	assert.Equal(t, 100.0, ing.got.Battery)
	assert.Equal(t, 25.0, ing.got.TempMotor)
}

func TestHandleIngestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown vehicle", pipeline.ErrVehicleNotFound, http.StatusNotFound},
		{"invalid reading", pipeline.ErrInvalidReading, http.StatusBadRequest},
		{"storage failure", assertableErr("db gone"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(t, &fakeIngestor{err: tt.err}, &fakeReads{})
			req := httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{"vehicle_id":1}`))
			rec := httptest.NewRecorder()
			handler.Routes(nil).ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		handler, _ := newTestHandler(t, &fakeIngestor{}, &fakeReads{})
		req := httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()
		handler.Routes(nil).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

func newStaticAuth(t *testing.T, key string) *auth.Authenticator {
	t.Helper()
	return auth.NewAuthenticator(&config.Config{ValidAPIKeys: []string{key}, AuthCacheTTLSeconds: 60}, nil)
}

func TestLatestEndpoints(t *testing.T) {
	now := time.Now().UTC()
	reads := &fakeReads{
		reading: &domain.Reading{ID: 10, VehicleID: 1, Timestamp: now, Speed: 42},
		verdict: &domain.Verdict{ID: 11, ReadingID: 10, VehicleID: 1, Timestamp: now, Message: domain.MsgNormal},
	}
	handler, _ := newTestHandler(t, &fakeIngestor{}, reads)
	router := handler.Routes(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vehicles/1/latest-sensor", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sensor map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensor))
	assert.Equal(t, 42.0, sensor["speed"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vehicles/1/latest-prediction", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown vehicle is a 404 before any query runs.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vehicles/2/latest-sensor", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Known vehicle with no data yet.
	handler2, _ := newTestHandler(t, &fakeIngestor{}, &fakeReads{})
	rec = httptest.NewRecorder()
	handler2.Routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vehicles/1/latest-prediction", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	handler, h := newTestHandler(t, &fakeIngestor{}, &fakeReads{})

	srv := httptest.NewServer(handler.Routes(nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/vehicles"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Let the subscription register before broadcasting.
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&domain.Event{
		Reading: &domain.Reading{ID: 1, VehicleID: 1},
		Verdict: &domain.Verdict{ID: 2, ReadingID: 1, VehicleID: 1, Confidence: 0.85, Message: domain.MsgHighRisk},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, float64(1), got["sensor_data_id"])
	assert.Equal(t, float64(2), got["prediction_id"])
	assert.Equal(t, domain.MsgHighRisk, got["message"])
}

func TestAuthMiddleware(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeIngestor{result: &pipeline.Result{
		Reading: &domain.Reading{ID: 1, VehicleID: 1},
		Verdict: &domain.Verdict{ID: 1, VehicleID: 1, Message: domain.MsgNormal},
	}}, &fakeReads{})

	mw := NewAuthMiddleware(newStaticAuth(t, "good-key"))
	router := handler.Routes(mw)

	req := httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{"vehicle_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{"vehicle_id":1}`))
	req.Header.Set("X-API-Key", "bad-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/sensor-data", strings.NewReader(`{"vehicle_id":1}`))
	req.Header.Set("X-API-Key", "good-key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Read paths stay open without a key.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
