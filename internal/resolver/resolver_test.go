package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelwatch/ingestion/internal/domain"
)

const statusBody = `[
	{"branch":"KDA 381X","quality":"10.20.1.11","fuel_probe_1_level":"140.5","fuel_probe_1_level_percentage":"70.2","fuel_probe_1_volume_in_tank":"138.9","fuel_probe_1_temperature":"24.1"},
	{"branch":"KDB 042Q","quality":"10.20.1.12","fuel_probe_1_level":"60.0","fuel_probe_1_level_percentage":"20.0","fuel_probe_1_volume_in_tank":"58.2","fuel_probe_1_temperature":"26.8"}
]`

func statusServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(statusBody))
	}))
}

func sample(plate, quality string) *domain.TelemetrySample {
	return &domain.TelemetrySample{Plate: plate, Quality: quality, ObservedAt: time.Now()}
}

func TestResolve_MatchByQuality(t *testing.T) {
	srv := statusServer(t)
	defer srv.Close()

	r := New(NewClient(srv.URL, time.Second), nil, time.Second)
	res := r.Resolve(context.Background(), sample("UNRELATED", "10.20.1.12"), &domain.VehicleState{})

	assert.Equal(t, SourceAPI, res.Source)
	require.NotNil(t, res.Level)
	assert.InDelta(t, 60.0, *res.Level, 0.001)
	assert.Equal(t, "KDB 042Q", res.Branch)
}

func TestResolve_FallsBackToBranchMatch(t *testing.T) {
	srv := statusServer(t)
	defer srv.Close()

	r := New(NewClient(srv.URL, time.Second), nil, time.Second)
	res := r.Resolve(context.Background(), sample("KDA 381X", "no-such-address"), &domain.VehicleState{})

	assert.Equal(t, SourceAPI, res.Source)
	require.NotNil(t, res.Level)
	assert.InDelta(t, 140.5, *res.Level, 0.001)
	require.NotNil(t, res.Volume)
	assert.InDelta(t, 138.9, *res.Volume, 0.001)
}

func TestResolve_APIErrorDegradesToStateCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	state := &domain.VehicleState{LastLevel: domain.Float(88.0), LastPct: domain.Float(44.0)}
	r := New(NewClient(srv.URL, time.Second), nil, time.Second)
	res := r.Resolve(context.Background(), sample("KDA 381X", "10.20.1.11"), state)

	assert.Equal(t, SourceCache, res.Source)
	require.NotNil(t, res.Level)
	assert.InDelta(t, 88.0, *res.Level, 0.001)
}

type fakeSnapshots struct {
	snap *domain.VehicleSnapshot
}

func (f *fakeSnapshots) LastSnapshot(_ context.Context, plate string) (*domain.VehicleSnapshot, error) {
	return f.snap, nil
}

func TestResolve_EmptyStateFallsBackToSnapshot(t *testing.T) {
	cache := &fakeSnapshots{snap: &domain.VehicleSnapshot{
		Plate: "KDA 381X",
		Level: domain.Float(51.5),
	}}
	r := New(nil, cache, time.Second)
	res := r.Resolve(context.Background(), sample("KDA 381X", ""), &domain.VehicleState{})

	assert.Equal(t, SourceCache, res.Source)
	require.NotNil(t, res.Level)
	assert.InDelta(t, 51.5, *res.Level, 0.001)
}

func TestResolve_NothingAvailableIsExplicitNone(t *testing.T) {
	r := New(nil, &fakeSnapshots{}, time.Second)
	res := r.Resolve(context.Background(), sample("KDA 381X", ""), &domain.VehicleState{})

	assert.Equal(t, SourceNone, res.Source)
	assert.Nil(t, res.Level)
	assert.Nil(t, res.Pct)
}

func TestResolve_TimeoutIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(statusBody))
	}))
	defer srv.Close()

	r := New(NewClient(srv.URL, 50*time.Millisecond), nil, 50*time.Millisecond)

	start := time.Now()
	res := r.Resolve(context.Background(), sample("KDA 381X", "10.20.1.11"), &domain.VehicleState{})
	elapsed := time.Since(start)

	assert.Equal(t, SourceNone, res.Source)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestApply_MergesResolutionIntoCopy(t *testing.T) {
	s := sample("KDA 381X", "")
	res := Resolution{Source: SourceAPI, Level: domain.Float(99.0), Pct: domain.Float(49.5)}

	resolved := Apply(s, res)

	require.NotNil(t, resolved.FuelLevel)
	assert.InDelta(t, 99.0, *resolved.FuelLevel, 0.001)
	assert.Nil(t, s.FuelLevel, "original sample must stay untouched")
}

func TestApply_VolumeBacksMissingLevel(t *testing.T) {
	s := sample("KDA 381X", "")
	res := Resolution{Source: SourceAPI, Volume: domain.Float(77.0)}

	resolved := Apply(s, res)

	require.NotNil(t, resolved.FuelLevel)
	assert.InDelta(t, 77.0, *resolved.FuelLevel, 0.001)
}

func TestApply_NoneIsNoOp(t *testing.T) {
	s := sample("KDA 381X", "")
	resolved := Apply(s, Resolution{Source: SourceNone})
	assert.Same(t, s, resolved)
	assert.False(t, resolved.HasFuelData())
}
