package fueling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelwatch/ingestion/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		MinLiters:       20,
		MinPctOfTank:    15,
		DefaultCapacity: 200,
		LevelWindow:     60 * time.Minute,
		MergeWindow:     10 * time.Minute,
		Company:         "Acme Quarries",
	}
}

func sampleAt(at time.Time, status domain.SampleStatus, level float64) *domain.TelemetrySample {
	return &domain.TelemetrySample{
		Plate:      "KDA 381X",
		Status:     status,
		FuelLevel:  domain.Float(level),
		ObservedAt: at,
	}
}

func runAll(d *Detector, samples ...*domain.TelemetrySample) []*domain.FuelFillEvent {
	var events []*domain.FuelFillEvent
	for _, s := range samples {
		events = append(events, d.Observe(s, "")...)
	}
	return append(events, d.Flush()...)
}

func TestStatusBasedFill_GoldenSequence(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	events := runAll(d,
		sampleAt(t0, domain.StatusEngineOn, 45.0),
		sampleAt(t0.Add(1*time.Minute), domain.StatusRunning, 43.2),
		sampleAt(t0.Add(2*time.Minute), domain.StatusPossibleFuelFill, 42.8),
		sampleAt(t0.Add(3*time.Minute), domain.StatusUnknown, 68.5),
		sampleAt(t0.Add(4*time.Minute), domain.StatusRunning, 67.8),
		sampleAt(t0.Add(5*time.Minute), domain.StatusEngineOff, 66.2),
	)

	require.Len(t, events, 1, "exactly one fill event for one fill episode")
	ev := events[0]
	assert.Equal(t, domain.MethodStatusBased, ev.Method)
	assert.Equal(t, domain.ConfidenceHigh, ev.Confidence)
	assert.InDelta(t, 25.7, ev.FillAmount, 0.001)
	assert.InDelta(t, 42.8, ev.FuelBefore, 0.001)
	assert.InDelta(t, 68.5, ev.FuelAfter, 0.001)
	assert.InDelta(t, ev.FuelAfter-ev.FuelBefore, ev.FillAmount, 0.0001)
}

func TestStatusBasedFill_NoResumptionNoEvent(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	// Level keeps dropping after the fill phrase: no fill happened.
	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 43.0),
		sampleAt(t0.Add(1*time.Minute), domain.StatusPossibleFuelFill, 42.8),
		sampleAt(t0.Add(2*time.Minute), domain.StatusRunning, 41.5),
		sampleAt(t0.Add(3*time.Minute), domain.StatusRunning, 41.0),
	)

	assert.Empty(t, events)
}

func TestLevelBasedFill_FiresAboveBothThresholds(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	// 100 -> 150 within 30 minutes: rise 50 > 20 L and > 15% of 200 L.
	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 100.0),
		sampleAt(t0.Add(30*time.Minute), domain.StatusRunning, 150.0),
	)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.MethodLevelBased, ev.Method)
	assert.Equal(t, domain.ConfidenceMedium, ev.Confidence)
	assert.InDelta(t, 50.0, ev.FillAmount, 0.001)
	assert.Greater(t, ev.FuelAfter, ev.FuelBefore)
}

func TestLevelBasedFill_BelowThresholdsNoEvent(t *testing.T) {
	tests := []struct {
		name   string
		levels []float64
	}{
		{"below absolute threshold", []float64{100.0, 118.0}},
		{"drop then small rise", []float64{100.0, 85.0, 103.0}},
		{"flat", []float64{100.0, 100.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(testConfig(), "KDA 381X")
			var samples []*domain.TelemetrySample
			for i, lv := range tt.levels {
				samples = append(samples, sampleAt(t0.Add(time.Duration(i)*5*time.Minute), domain.StatusRunning, lv))
			}
			assert.Empty(t, runAll(d, samples...))
		})
	}
}

func TestLevelBasedFill_RelativeThresholdUsesEstimatedCapacity(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	// Pct on the samples implies a 400 L tank, so 15% is 60 L and a
	// 50 L rise stays under the relative threshold.
	s1 := sampleAt(t0, domain.StatusRunning, 100.0)
	s1.FuelPct = domain.Float(25.0)
	s2 := sampleAt(t0.Add(10*time.Minute), domain.StatusRunning, 150.0)
	s2.FuelPct = domain.Float(37.5)

	assert.Empty(t, runAll(d, s1, s2))
}

func TestLevelBasedFill_OutsideWindowNoEvent(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 100.0),
		sampleAt(t0.Add(2*time.Hour), domain.StatusRunning, 180.0),
	)

	assert.Empty(t, events)
}

func TestLevelBasedFill_EngineBoundarySuppresses(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	// A jump across an engine-off/on boundary is not refueling.
	events := runAll(d,
		sampleAt(t0, domain.StatusEngineOff, 100.0),
		sampleAt(t0.Add(20*time.Minute), domain.StatusEngineOn, 170.0),
	)

	assert.Empty(t, events)
}

func TestMerge_AdjacentDetectionsCombinePreservingTotal(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	// Two qualifying rises 5 minutes apart: one combined event whose
	// amount is the sum of the constituents.
	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 100.0),
		sampleAt(t0.Add(5*time.Minute), domain.StatusRunning, 150.0),
		sampleAt(t0.Add(10*time.Minute), domain.StatusRunning, 200.0),
	)

	require.Len(t, events, 1)
	ev := events[0]
	assert.True(t, ev.Combined)
	assert.Equal(t, 2, ev.CombinedCount)
	assert.InDelta(t, 100.0, ev.FillAmount, 0.001)
	assert.Equal(t, t0, ev.FillTime, "combined event keeps the earliest start")
}

func TestMerge_StatusDetectionLiftsConfidence(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 100.0),
		sampleAt(t0.Add(5*time.Minute), domain.StatusRunning, 150.0),
		sampleAt(t0.Add(7*time.Minute), domain.StatusPossibleFuelFill, 150.0),
		sampleAt(t0.Add(9*time.Minute), domain.StatusRunning, 175.0),
	)

	require.Len(t, events, 1)
	ev := events[0]
	assert.True(t, ev.Combined)
	assert.Equal(t, domain.ConfidenceHigh, ev.Confidence)
	assert.InDelta(t, 75.0, ev.FillAmount, 0.001)
}

func TestDistantFillsStaySeparate(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	events := runAll(d,
		sampleAt(t0, domain.StatusRunning, 50.0),
		sampleAt(t0.Add(5*time.Minute), domain.StatusRunning, 110.0),
		sampleAt(t0.Add(45*time.Minute), domain.StatusRunning, 108.0),
		sampleAt(t0.Add(50*time.Minute), domain.StatusRunning, 170.0),
	)

	require.Len(t, events, 2)
	assert.False(t, events[0].Combined)
	assert.False(t, events[1].Combined)
	assert.InDelta(t, 60.0, events[0].FillAmount, 0.001)
	assert.InDelta(t, 62.0, events[1].FillAmount, 0.001)
}

func TestReplayedSampleProducesNoDuplicate(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	s1 := sampleAt(t0, domain.StatusRunning, 100.0)
	s2 := sampleAt(t0.Add(5*time.Minute), domain.StatusRunning, 150.0)

	events := runAll(d, s1, s2, s2)

	require.Len(t, events, 1)
	assert.InDelta(t, 50.0, events[0].FillAmount, 0.001)
	assert.False(t, events[0].Combined)
}

func TestOnDetectFiresPerRawDetection(t *testing.T) {
	d := NewDetector(testConfig(), "KDA 381X")

	var total float64
	var count int
	d.OnDetect = func(ev *domain.FuelFillEvent) {
		total += ev.FillAmount
		count++
	}

	runAll(d,
		sampleAt(t0, domain.StatusRunning, 100.0),
		sampleAt(t0.Add(5*time.Minute), domain.StatusRunning, 150.0),
		sampleAt(t0.Add(10*time.Minute), domain.StatusRunning, 200.0),
	)

	assert.Equal(t, 2, count)
	assert.InDelta(t, 100.0, total, 0.001)
}
