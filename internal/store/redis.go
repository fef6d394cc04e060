package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fuelwatch/ingestion/internal/config"
	"fuelwatch/ingestion/internal/domain"
)

// RedisStore holds the live per-vehicle snapshot (the resolver's
// cross-restart cache), fill-event dedup keys, and the activity publish
// channel for live consumers.
type RedisStore struct {
	client   *redis.Client
	dedupTTL time.Duration
}

const snapshotTTL = 24 * time.Hour

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

	return &RedisStore{
		client:   client,
		dedupTTL: time.Duration(cfg.FillDedupTTLSeconds) * time.Second,
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SnapshotVehicle writes the last-known probe reading for a plate.
func (r *RedisStore) SnapshotVehicle(ctx context.Context, snap *domain.VehicleSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	key := fmt.Sprintf("vehicle:%s:fuel", snap.Plate)
	if err := r.client.Set(ctx, key, payload, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("snapshot write for %s: %w", snap.Plate, err)
	}
	return nil
}

// LastSnapshot reads the cached probe reading for a plate. A missing key
// returns (nil, nil).
func (r *RedisStore) LastSnapshot(ctx context.Context, plate string) (*domain.VehicleSnapshot, error) {
	key := fmt.Sprintf("vehicle:%s:fuel", plate)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot read for %s: %w", plate, err)
	}
	var snap domain.VehicleSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", plate, err)
	}
	return &snap, nil
}

// CheckFillDedup reports whether a fill for this plate and time bucket
// was already persisted. Backstops replayed samples.
func (r *RedisStore) CheckFillDedup(ctx context.Context, plate string, fillTime time.Time) (bool, error) {
	key := fillDedupKey(plate, fillTime)
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("fill dedup check failed: %w", err)
	}
	return count > 0, nil
}

func (r *RedisStore) SetFillDedup(ctx context.Context, plate string, fillTime time.Time) error {
	return r.client.Set(ctx, fillDedupKey(plate, fillTime), "1", r.dedupTTL).Err()
}

func fillDedupKey(plate string, fillTime time.Time) string {
	return fmt.Sprintf("fill:%s:%d", plate, fillTime.Truncate(time.Minute).Unix())
}

// PublishActivity pushes an activity entry to live subscribers.
func (r *RedisStore) PublishActivity(ctx context.Context, entry *domain.ActivityLogEntry) error {
	payload, err := json.Marshal(map[string]interface{}{
		"id":          entry.ID,
		"type":        string(entry.Type),
		"plate":       entry.Plate,
		"branch":      entry.Branch,
		"description": entry.Description,
		"payload":     entry.Payload,
		"timestamp":   entry.Timestamp.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	channel := fmt.Sprintf("fleet:%s:activity", entry.Plate)
	return r.client.Publish(ctx, channel, payload).Err()
}
