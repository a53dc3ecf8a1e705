package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	ctx := context.Background()

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getEnv("DB_USER", "fleet_user"),
		getEnv("DB_PASSWORD", "fleet_password"),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "fleet_backend"),
	)

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	client := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1Vehicles(ctx, conn)
	step2APIKeys(ctx, client)
	step3Verify(ctx, conn, client)

	fmt.Println("\n✅ Fleet seeded successfully")
	fmt.Println("   Run next: go run cmd/server/main.go")
}

func step1Vehicles(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Seeding vehicles ────────────────────")

	vehicles := []struct {
		name  string
		model string
	}{
		{"AV-DELIVERY-01", "Nuro R3"},
		{"AV-DELIVERY-02", "Nuro R3"},
		{"AV-SHUTTLE-01", "Navya Evo"},
		{"AV-TEST-01", "Test Bench"},
	}

	for _, v := range vehicles {
		var id int64
		err := conn.QueryRow(ctx, `
			INSERT INTO vehicles (vehicle_name, model)
			VALUES ($1, $2)
			ON CONFLICT (vehicle_name) DO UPDATE SET model = EXCLUDED.model
			RETURNING id
		`, v.name, v.model).Scan(&id)
		if err != nil {
			log.Fatalf("Failed to insert vehicle %s: %v", v.name, err)
		}
		fmt.Printf("  ✓ %-20s → id %d\n", v.name, id)
	}
}

func step2APIKeys(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Seeding API keys ────────────────────")

	// Key pattern: vehicle:auth:{api_key} → fleet_id
	// This is what the authenticator looks up at Level 2.
	apiKeys := map[string]string{
		"vehicle:auth:fleet_delivery_key": "fleet_delivery",
		"vehicle:auth:fleet_shuttle_key":  "fleet_shuttle",
		"vehicle:auth:test_key":           "test_fleet",
	}

	for key, fleetID := range apiKeys {
		if err := client.Set(ctx, key, fleetID, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-40s → %s\n", key, fleetID)
	}
}

func step3Verify(ctx context.Context, conn *pgx.Conn, client *redis.Client) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	var count int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&count); err != nil {
		log.Fatalf("Vehicle count failed: %v", err)
	}
	fmt.Printf("  ✓ %d vehicles in database\n", count)

	keys, err := client.Keys(ctx, "vehicle:auth:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d API keys in Redis\n", len(keys))

	val, err := client.Get(ctx, "vehicle:auth:test_key").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: vehicle:auth:test_key → %s\n", val)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
