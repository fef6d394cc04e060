package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fuelwatch/ingestion/internal/config"
	"fuelwatch/ingestion/internal/domain"
)

// PostgresStore is the relational storage collaborator: sessions, fill
// events and the activity log. The core only needs insert, update-by-id
// and range queries; everything else lives with the reporting services.
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

func (s *PostgresStore) InsertSession(ctx context.Context, sess *domain.OperatingSession) error {
	query := `
		INSERT INTO operating_sessions
			(id, plate, cost_code, company, session_date, start_time, end_time,
			 opening_level, opening_pct, opening_temp, opening_volume,
			 closing_level, closing_pct, closing_temp, closing_volume,
			 total_usage, total_filled, operating_hours, usage_per_hour,
			 status, notes, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			 $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.Plate, sess.CostCode, sess.Company, sess.SessionDate,
		sess.StartTime, sess.EndTime,
		sess.OpeningLevel, sess.OpeningPct, sess.OpeningTemp, sess.OpeningVolume,
		sess.ClosingLevel, sess.ClosingPct, sess.ClosingTemp, sess.ClosingVolume,
		sess.TotalUsage, sess.TotalFilled, sess.OperatingHours, sess.UsagePerHour,
		string(sess.Status), sess.Notes, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *domain.OperatingSession) error {
	query := `
		UPDATE operating_sessions SET
			end_time = $2,
			closing_level = $3, closing_pct = $4, closing_temp = $5, closing_volume = $6,
			total_usage = $7, total_filled = $8,
			operating_hours = $9, usage_per_hour = $10,
			status = $11, notes = $12, updated_at = $13
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.EndTime,
		sess.ClosingLevel, sess.ClosingPct, sess.ClosingTemp, sess.ClosingVolume,
		sess.TotalUsage, sess.TotalFilled,
		sess.OperatingHours, sess.UsagePerHour,
		string(sess.Status), sess.Notes, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) InsertFillEvent(ctx context.Context, ev *domain.FuelFillEvent) error {
	query := `
		INSERT INTO fuel_fill_events
			(id, plate, cost_code, company, session_id, fill_time,
			 fuel_before, fuel_after, fill_amount,
			 method, confidence, combined, combined_count, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.Plate, ev.CostCode, ev.Company, ev.SessionID, ev.FillTime,
		ev.FuelBefore, ev.FuelAfter, ev.FillAmount,
		string(ev.Method), string(ev.Confidence), ev.Combined, ev.CombinedCount, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fill event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry *domain.ActivityLogEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}
	query := `
		INSERT INTO activity_log
			(id, activity_type, plate, branch, description, payload, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		entry.ID, string(entry.Type), entry.Plate, entry.Branch,
		entry.Description, payload, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity %s: %w", entry.ID, err)
	}
	return nil
}

// SessionsInRange returns sessions for one plate whose start falls in
// [from, to). Used by the reporting collaborators, not the hot path.
func (s *PostgresStore) SessionsInRange(ctx context.Context, plate string, from, to time.Time) ([]domain.OperatingSession, error) {
	query := `
		SELECT id, plate, cost_code, company, session_date, start_time, end_time,
		       opening_level, opening_pct, opening_temp, opening_volume,
		       closing_level, closing_pct, closing_temp, closing_volume,
		       total_usage, total_filled, operating_hours, usage_per_hour,
		       status, notes, created_at, updated_at
		FROM operating_sessions
		WHERE plate = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`
	rows, err := s.pool.Query(ctx, query, plate, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sessions for %s: %w", plate, err)
	}
	defer rows.Close()

	var out []domain.OperatingSession
	for rows.Next() {
		var sess domain.OperatingSession
		var status string
		if err := rows.Scan(
			&sess.ID, &sess.Plate, &sess.CostCode, &sess.Company, &sess.SessionDate,
			&sess.StartTime, &sess.EndTime,
			&sess.OpeningLevel, &sess.OpeningPct, &sess.OpeningTemp, &sess.OpeningVolume,
			&sess.ClosingLevel, &sess.ClosingPct, &sess.ClosingTemp, &sess.ClosingVolume,
			&sess.TotalUsage, &sess.TotalFilled, &sess.OperatingHours, &sess.UsagePerHour,
			&status, &sess.Notes, &sess.CreatedAt, &sess.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.Status = domain.SessionStatus(status)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FillEventsInRange returns fill events for one plate in [from, to).
func (s *PostgresStore) FillEventsInRange(ctx context.Context, plate string, from, to time.Time) ([]domain.FuelFillEvent, error) {
	query := `
		SELECT id, plate, cost_code, company, session_id, fill_time,
		       fuel_before, fuel_after, fill_amount,
		       method, confidence, combined, combined_count, created_at
		FROM fuel_fill_events
		WHERE plate = $1 AND fill_time >= $2 AND fill_time < $3
		ORDER BY fill_time
	`
	rows, err := s.pool.Query(ctx, query, plate, from, to)
	if err != nil {
		return nil, fmt.Errorf("query fill events for %s: %w", plate, err)
	}
	defer rows.Close()

	var out []domain.FuelFillEvent
	for rows.Next() {
		var ev domain.FuelFillEvent
		var method, conf string
		if err := rows.Scan(
			&ev.ID, &ev.Plate, &ev.CostCode, &ev.Company, &ev.SessionID, &ev.FillTime,
			&ev.FuelBefore, &ev.FuelAfter, &ev.FillAmount,
			&method, &conf, &ev.Combined, &ev.CombinedCount, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fill event row: %w", err)
		}
		ev.Method = domain.DetectionMethod(method)
		ev.Confidence = domain.Confidence(conf)
		out = append(out, ev)
	}
	return out, rows.Err()
}
