package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet-backend/internal/config"
	"fleet-backend/internal/domain"
)

// telemetryChannel is the pub/sub channel external consumers (e.g. a
// separate serving tier) can follow for live verdict updates.
const telemetryChannel = "fleet:telemetry"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: cfg.StateTTL}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// UpdateVehicleState caches the latest reading and verdict for a vehicle and
// publishes the update on the telemetry channel. One pipelined round trip.
func (r *RedisStore) UpdateVehicleState(ctx context.Context, ev *domain.Event) error {
	state := map[string]interface{}{
		"vehicle_id":  ev.Reading.VehicleID,
		"speed":       ev.Reading.Speed,
		"battery":     ev.Reading.Battery,
		"temp_motor":  ev.Reading.TempMotor,
		"failure":     ev.Verdict.Failure,
		"confidence":  ev.Verdict.Confidence,
		"anomaly":     ev.Verdict.Anomaly,
		"iso_score":   ev.Verdict.IsoScore,
		"message":     ev.Verdict.Message,
		"timestamp":   ev.Reading.Timestamp.Unix(),
		"received_at": ev.Reading.ReceivedAt.Unix(),
	}
	if ev.Reading.GPSLat != nil {
		state["gps_lat"] = *ev.Reading.GPSLat
	}
	if ev.Reading.GPSLon != nil {
		state["gps_lon"] = *ev.Reading.GPSLon
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := fmt.Sprintf("vehicle:%d:state", ev.Reading.VehicleID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, state)
	pipe.Expire(ctx, stateKey, r.ttl)
	pipe.Publish(ctx, telemetryChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// GetAPIKey resolves a device API key to its fleet identifier. Empty string
// means unknown key.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("vehicle:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
