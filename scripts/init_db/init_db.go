package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "fleet_user"),
		getEnv("DB_PASSWORD", "fleet_password"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "fleet_backend"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1Extensions(ctx, conn)
	step2Vehicles(ctx, conn)
	step3SensorData(ctx, conn)
	step4Predictions(ctx, conn)
	step5Maintenance(ctx, conn)
	step6Indexes(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_fleet/seed_fleet.go")
}

func step1Extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

func step2Vehicles(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: vehicles table ──────────────────────")
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicles (
			id           BIGSERIAL   PRIMARY KEY,
			vehicle_name TEXT        NOT NULL UNIQUE,
			model        TEXT        NOT NULL,
			status       TEXT        NOT NULL DEFAULT 'active',
			last_seen    TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_vehicle_status CHECK (
				status IN ('active', 'inactive', 'maintenance')
			)
		);
	`, "vehicles table created")
}

func step3SensorData(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: sensor_data table ───────────────────")
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS sensor_data (
			id          BIGSERIAL        NOT NULL,
			vehicle_id  BIGINT           NOT NULL REFERENCES vehicles(id),

			-- Server-side timestamps; vehicle clocks drift.
			timestamp   TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			received_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			gps_lat     DOUBLE PRECISION,
			gps_lon     DOUBLE PRECISION,

			speed       DOUBLE PRECISION NOT NULL DEFAULT 0,
			battery     DOUBLE PRECISION NOT NULL DEFAULT 0,
			acc_x       DOUBLE PRECISION NOT NULL DEFAULT 0,
			acc_y       DOUBLE PRECISION NOT NULL DEFAULT 0,
			acc_z       DOUBLE PRECISION NOT NULL DEFAULT 0,
			temp_motor  DOUBLE PRECISION NOT NULL DEFAULT 0,

			-- Original JSON payload, kept for debugging and replay.
			raw_payload JSONB,

			PRIMARY KEY (id, timestamp)
		);
	`, "sensor_data table created")

	// Partition telemetry by time into 7-day chunks.
	execOrFatal(ctx, conn, `
		SELECT create_hypertable(
			'sensor_data',
			'timestamp',
			if_not_exists => TRUE
		);
	`, "sensor_data converted to hypertable")
}

func step4Predictions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: predictions table ───────────────────")
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS predictions (
			id             BIGSERIAL        PRIMARY KEY,
			sensor_data_id BIGINT           NOT NULL,
			vehicle_id     BIGINT           NOT NULL REFERENCES vehicles(id),
			timestamp      TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			failure        BOOLEAN          NOT NULL,
			confidence     DOUBLE PRECISION NOT NULL,
			anomaly        BOOLEAN          NOT NULL,
			iso_score      DOUBLE PRECISION NOT NULL,
			message        TEXT             NOT NULL,

			-- One verdict per reading.
			CONSTRAINT uq_prediction_reading UNIQUE (sensor_data_id)
		);
	`, "predictions table created")
}

func step5Maintenance(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: maintenance_logs table ──────────────")
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS maintenance_logs (
			id              BIGSERIAL   PRIMARY KEY,
			vehicle_id      BIGINT      NOT NULL REFERENCES vehicles(id),
			issue_type      TEXT        NOT NULL,
			severity        TEXT        NOT NULL DEFAULT 'medium',
			predicted_by_ai BOOLEAN     NOT NULL DEFAULT false,
			status          TEXT        NOT NULL DEFAULT 'pending',
			notes           TEXT        NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at     TIMESTAMPTZ,

			CONSTRAINT chk_severity CHECK (
				severity IN ('low', 'medium', 'high', 'critical')
			),
			CONSTRAINT chk_status CHECK (
				status IN ('pending', 'in_progress', 'resolved')
			)
		);
	`, "maintenance_logs table created")
}

func step6Indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_sensor_data_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_sensor_data_vehicle_time
				  ON sensor_data (vehicle_id, timestamp DESC);`,
			why: "query: latest reading per vehicle",
		},
		{
			name: "idx_predictions_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_predictions_vehicle_time
				  ON predictions (vehicle_id, timestamp DESC);`,
			why: "query: latest verdict per vehicle",
		},
		{
			name: "idx_maintenance_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_maintenance_vehicle
				  ON maintenance_logs (vehicle_id, created_at DESC);`,
			why: "query: maintenance history per vehicle",
		},
		{
			name: "idx_maintenance_open",
			sql: `CREATE INDEX IF NOT EXISTS idx_maintenance_open
				  ON maintenance_logs (vehicle_id, created_at DESC)
				  WHERE status <> 'resolved';`,
			why: "query: open work items only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
