package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-backend/internal/config"
	"fleet-backend/internal/domain"
)

// ErrNotFound is returned by the latest-record read paths when a vehicle has
// no rows yet.
var ErrNotFound = errors.New("store: not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// VehicleExists checks the vehicle id against the vehicles table.
func (s *PostgresStore) VehicleExists(ctx context.Context, vehicleID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1)`,
		vehicleID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("vehicle lookup failed: %w", err)
	}
	return exists, nil
}

// InsertReading persists one reading and fills in its id and timestamps.
func (s *PostgresStore) InsertReading(ctx context.Context, r *domain.Reading) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sensor_data
			(vehicle_id, gps_lat, gps_lon, speed, battery,
			 acc_x, acc_y, acc_z, temp_motor, raw_payload)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, timestamp, received_at
	`,
		r.VehicleID,
		r.GPSLat,
		r.GPSLon,
		r.Speed,
		r.Battery,
		r.AccX,
		r.AccY,
		r.AccZ,
		r.TempMotor,
		rawOrNil(r.RawPayload),
	).Scan(&r.ID, &r.Timestamp, &r.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert reading failed: %w", err)
	}
	return nil
}

// SaveVerdict persists a verdict and, when rec is non-nil, its maintenance
// record in the same transaction. Either both rows commit or neither does.
func (s *PostgresStore) SaveVerdict(ctx context.Context, v *domain.Verdict, rec *domain.MaintenanceRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin verdict tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO predictions
			(sensor_data_id, vehicle_id, failure, confidence,
			 anomaly, iso_score, message)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, timestamp
	`,
		v.ReadingID,
		v.VehicleID,
		v.Failure,
		v.Confidence,
		v.Anomaly,
		v.IsoScore,
		v.Message,
	).Scan(&v.ID, &v.Timestamp)
	if err != nil {
		return fmt.Errorf("insert verdict failed: %w", err)
	}

	if rec != nil {
		err = tx.QueryRow(ctx, `
			INSERT INTO maintenance_logs
				(vehicle_id, issue_type, severity, predicted_by_ai, status, notes)
			VALUES
				($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`,
			rec.VehicleID,
			rec.IssueType,
			string(rec.Severity),
			rec.PredictedByAI,
			string(rec.Status),
			rec.Notes,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert maintenance record failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit verdict tx failed: %w", err)
	}
	return nil
}

// LatestReading returns the most recent reading for a vehicle.
func (s *PostgresStore) LatestReading(ctx context.Context, vehicleID int64) (*domain.Reading, error) {
	r := &domain.Reading{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, vehicle_id, timestamp, received_at, gps_lat, gps_lon,
		       speed, battery, acc_x, acc_y, acc_z, temp_motor, raw_payload
		FROM sensor_data
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, vehicleID).Scan(
		&r.ID, &r.VehicleID, &r.Timestamp, &r.ReceivedAt, &r.GPSLat, &r.GPSLon,
		&r.Speed, &r.Battery, &r.AccX, &r.AccY, &r.AccZ, &r.TempMotor,
		&r.RawPayload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading query failed: %w", err)
	}
	return r, nil
}

// LatestVerdict returns the most recent verdict for a vehicle.
func (s *PostgresStore) LatestVerdict(ctx context.Context, vehicleID int64) (*domain.Verdict, error) {
	v := &domain.Verdict{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, sensor_data_id, vehicle_id, timestamp,
		       failure, confidence, anomaly, iso_score, message
		FROM predictions
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, vehicleID).Scan(
		&v.ID, &v.ReadingID, &v.VehicleID, &v.Timestamp,
		&v.Failure, &v.Confidence, &v.Anomaly, &v.IsoScore, &v.Message,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest verdict query failed: %w", err)
	}
	return v, nil
}

// rawOrNil maps an empty payload to SQL NULL instead of an empty jsonb.
func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
