package resolver

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/metrics"
)

type Source string

const (
	SourceAPI   Source = "api"
	SourceCache Source = "cache"
	SourceNone  Source = "none"
)

// Resolution is the tagged outcome of the fallback chain. SourceNone
// means both sources came up empty and the nulls are deliberate.
type Resolution struct {
	Source Source
	Level  *float64
	Pct    *float64
	Volume *float64
	Temp   *float64
	Branch string
}

// SnapshotCache reads the last-known probe values persisted for a plate.
// Backed by Redis in production; consulted only when in-memory state is
// empty (first sample for a plate after a restart).
type SnapshotCache interface {
	LastSnapshot(ctx context.Context, plate string) (*domain.VehicleSnapshot, error)
}

// Resolver fills in missing fuel data: vehicle-status API first, cached
// last-known values second, explicit nulls last.
type Resolver struct {
	api     *Client
	cache   SnapshotCache
	timeout time.Duration
}

func New(api *Client, cache SnapshotCache, timeout time.Duration) *Resolver {
	return &Resolver{api: api, cache: cache, timeout: timeout}
}

// Resolve runs the chain for one sample. API failures are logged and
// degrade to the next source; they never propagate as ingestion errors.
func (r *Resolver) Resolve(ctx context.Context, sample *domain.TelemetrySample, state *domain.VehicleState) Resolution {
	if r.api != nil {
		apiCtx, cancel := context.WithTimeout(ctx, r.timeout)
		records, err := r.api.Fetch(apiCtx)
		cancel()
		if err != nil {
			log.WithError(err).WithField("plate", sample.Plate).
				Warn("vehicle-status API unavailable, falling back to cache")
		} else if rec, ok := Match(records, sample.Quality, sample.Plate); ok {
			metrics.ResolverAPIHits.Add(1)
			return Resolution{
				Source: SourceAPI,
				Level:  rec.FuelLevel.Value,
				Pct:    rec.FuelPct.Value,
				Volume: rec.Volume.Value,
				Temp:   rec.FuelTemp.Value,
				Branch: rec.Branch,
			}
		}
	}

	if state != nil && (state.LastLevel != nil || state.LastPct != nil) {
		metrics.ResolverCacheHits.Add(1)
		return Resolution{
			Source: SourceCache,
			Level:  state.LastLevel,
			Pct:    state.LastPct,
			Temp:   state.LastTemp,
		}
	}

	if r.cache != nil {
		snap, err := r.cache.LastSnapshot(ctx, sample.Plate)
		if err != nil {
			log.WithError(err).WithField("plate", sample.Plate).
				Warn("snapshot cache lookup failed")
		} else if snap != nil && (snap.Level != nil || snap.Pct != nil) {
			metrics.ResolverCacheHits.Add(1)
			return Resolution{
				Source: SourceCache,
				Level:  snap.Level,
				Pct:    snap.Pct,
				Temp:   snap.Temp,
			}
		}
	}

	// Persisting nulls is the correct degraded outcome; log it so silent
	// zero-filling can never hide here.
	metrics.ResolverMisses.Add(1)
	log.WithFields(log.Fields{
		"plate":             sample.Plate,
		"resolution_source": SourceNone,
	}).Info("no fuel data from any source, keeping nulls")
	return Resolution{Source: SourceNone}
}

// Apply merges a resolution into a copy of the sample. No-op when the
// chain resolved nothing.
func Apply(sample *domain.TelemetrySample, res Resolution) *domain.TelemetrySample {
	if res.Source == SourceNone {
		return sample
	}
	level := res.Level
	if level == nil {
		level = res.Volume
	}
	return sample.WithFuel(level, res.Pct, res.Temp)
}
