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
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "fuelwatch_user"),
		dbGetEnv("DB_PASSWORD", "fuelwatch_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "fuelwatch"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	step1_sessions_table(ctx, conn)
	step2_fill_events_table(ctx, conn)
	step3_activity_log_table(ctx, conn)
	step4_indexes(ctx, conn)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
}

func step1_sessions_table(ctx context.Context, conn *pgx.Conn) {
	mustExec(ctx, conn, "operating_sessions table", `
		CREATE TABLE IF NOT EXISTS operating_sessions (
			id               UUID PRIMARY KEY,
			plate            TEXT NOT NULL,
			cost_code        TEXT NOT NULL DEFAULT '',
			company          TEXT NOT NULL DEFAULT '',
			session_date     DATE NOT NULL,
			start_time       TIMESTAMPTZ NOT NULL,
			end_time         TIMESTAMPTZ,
			opening_level    DOUBLE PRECISION,
			opening_pct      DOUBLE PRECISION,
			opening_temp     DOUBLE PRECISION,
			opening_volume   DOUBLE PRECISION,
			closing_level    DOUBLE PRECISION,
			closing_pct      DOUBLE PRECISION,
			closing_temp     DOUBLE PRECISION,
			closing_volume   DOUBLE PRECISION,
			total_usage      DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_filled     DOUBLE PRECISION NOT NULL DEFAULT 0,
			operating_hours  DOUBLE PRECISION NOT NULL DEFAULT 0,
			usage_per_hour   DOUBLE PRECISION NOT NULL DEFAULT 0,
			status           TEXT NOT NULL,
			notes            TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			CHECK (end_time IS NULL OR end_time >= start_time)
		)
	`)
}

func step2_fill_events_table(ctx context.Context, conn *pgx.Conn) {
	mustExec(ctx, conn, "fuel_fill_events table", `
		CREATE TABLE IF NOT EXISTS fuel_fill_events (
			id              UUID PRIMARY KEY,
			plate           TEXT NOT NULL,
			cost_code       TEXT NOT NULL DEFAULT '',
			company         TEXT NOT NULL DEFAULT '',
			session_id      TEXT NOT NULL DEFAULT '',
			fill_time       TIMESTAMPTZ NOT NULL,
			fuel_before     DOUBLE PRECISION NOT NULL,
			fuel_after      DOUBLE PRECISION NOT NULL,
			fill_amount     DOUBLE PRECISION NOT NULL CHECK (fill_amount > 0),
			method          TEXT NOT NULL,
			confidence      TEXT NOT NULL,
			combined        BOOLEAN NOT NULL DEFAULT FALSE,
			combined_count  INT NOT NULL DEFAULT 1,
			created_at      TIMESTAMPTZ NOT NULL
		)
	`)
}

func step3_activity_log_table(ctx context.Context, conn *pgx.Conn) {
	mustExec(ctx, conn, "activity_log table", `
		CREATE TABLE IF NOT EXISTS activity_log (
			id             UUID PRIMARY KEY,
			activity_type  TEXT NOT NULL,
			plate          TEXT NOT NULL,
			branch         TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			payload        JSONB,
			created_at     TIMESTAMPTZ NOT NULL
		)
	`)
}

func step4_indexes(ctx context.Context, conn *pgx.Conn) {
	mustExec(ctx, conn, "indexes", `
		CREATE INDEX IF NOT EXISTS idx_sessions_plate_start
			ON operating_sessions (plate, start_time);
		CREATE INDEX IF NOT EXISTS idx_fills_plate_time
			ON fuel_fill_events (plate, fill_time);
		CREATE INDEX IF NOT EXISTS idx_activity_plate_time
			ON activity_log (plate, created_at);
	`)
}

func step5_verify(ctx context.Context, conn *pgx.Conn) {
	for _, table := range []string{"operating_sessions", "fuel_fill_events", "activity_log"} {
		var count int
		err := conn.QueryRow(ctx,
			"SELECT count(*) FROM information_schema.tables WHERE table_name = $1", table,
		).Scan(&count)
		if err != nil || count == 0 {
			log.Fatalf("Verification failed for %s: %v", table, err)
		}
		fmt.Printf("✓ %s\n", table)
	}
}

func mustExec(ctx context.Context, conn *pgx.Conn, what, sql string) {
	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("Failed creating %s: %v", what, err)
	}
	fmt.Printf("✓ %s\n", what)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
