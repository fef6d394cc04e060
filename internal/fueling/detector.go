package fueling

import (
	"time"

	"github.com/google/uuid"

	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/metrics"
)

type Config struct {
	// A rise must clear both thresholds to count as a fill.
	MinLiters    float64
	MinPctOfTank float64

	// DefaultCapacity is used when the sample pair does not carry enough
	// data to estimate tank capacity from level and percentage.
	DefaultCapacity float64

	// LevelWindow bounds the sample pair a level-based detection may
	// span; MergeWindow bounds how far apart two detections can be and
	// still belong to the same fill episode.
	LevelWindow time.Duration
	MergeWindow time.Duration

	Company string
}

// Detector runs both fill heuristics for one vehicle. Owned by that
// vehicle's worker, so no locking. Detections are buffered briefly so
// temporally adjacent ones merge into a single combined event.
type Detector struct {
	cfg   Config
	plate string

	// OnDetect, when set, fires once per raw detection before merging.
	// The pipeline uses it to credit the open session's fill total at
	// the moment the rise happened.
	OnDetect func(*domain.FuelFillEvent)

	prev    *domain.TelemetrySample // last sample carrying a level
	armed   *armedFill
	pending *domain.FuelFillEvent

	// released holds events displaced by a newer pending detection
	// until the current Observe call returns them.
	released []*domain.FuelFillEvent
}

// armedFill marks a POSSIBLE FUEL FILL sample waiting for the level to
// resume; the fill amount is measured from the armed level.
type armedFill struct {
	level float64
	at    time.Time
}

func NewDetector(cfg Config, plate string) *Detector {
	return &Detector{cfg: cfg, plate: plate}
}

// Observe consumes one sample and returns any fill events that are final
// (past the merge window). Runs on every sample, whether or not the
// vehicle has an open session.
func (d *Detector) Observe(s *domain.TelemetrySample, branch string) []*domain.FuelFillEvent {
	ready := d.flushStale(s.ObservedAt)

	if s.FuelLevel == nil {
		// Nothing to compare; the armed marker survives until a sample
		// with a level arrives.
		return append(ready, d.takeReleased()...)
	}

	statusFired := false
	if d.armed != nil {
		if d.prev != nil && d.prev.FuelLevel != nil && *s.FuelLevel >= *d.prev.FuelLevel {
			amount := *s.FuelLevel - d.armed.level
			if amount > 0 {
				d.buffer(d.detection(d.armed.level, *s.FuelLevel, d.armed.at, s.ObservedAt,
					domain.MethodStatusBased, domain.ConfidenceHigh, branch))
				statusFired = true
			}
		}
		d.armed = nil
	}

	// Level-based detection on the consecutive pair, unless the
	// status-based detector already claimed this rise.
	if !statusFired && d.prev != nil && d.prev.FuelLevel != nil {
		d.observeLevelJump(s, branch)
	}

	if s.Status == domain.StatusPossibleFuelFill {
		d.armed = &armedFill{level: *s.FuelLevel, at: s.ObservedAt}
	}

	d.prev = s
	return append(ready, d.takeReleased()...)
}

func (d *Detector) takeReleased() []*domain.FuelFillEvent {
	out := d.released
	d.released = nil
	return out
}

// Flush releases anything still buffered. Called on worker shutdown.
func (d *Detector) Flush() []*domain.FuelFillEvent {
	out := d.takeReleased()
	if d.pending != nil {
		out = append(out, d.pending)
		d.pending = nil
	}
	return out
}

func (d *Detector) observeLevelJump(s *domain.TelemetrySample, branch string) {
	gap := s.ObservedAt.Sub(d.prev.ObservedAt)
	if gap < 0 || gap > d.cfg.LevelWindow {
		return
	}
	// A jump across an engine-off/on boundary reflects a vehicle-state
	// change, not refueling.
	if s.Status == domain.StatusEngineOn || d.prev.Status == domain.StatusEngineOff {
		return
	}

	rise := *s.FuelLevel - *d.prev.FuelLevel
	if rise <= d.cfg.MinLiters {
		return
	}
	if rise <= d.cfg.MinPctOfTank/100*d.capacity(s) {
		return
	}

	d.buffer(d.detection(*d.prev.FuelLevel, *s.FuelLevel, d.prev.ObservedAt, s.ObservedAt,
		domain.MethodLevelBased, domain.ConfidenceMedium, branch))
}

// capacity estimates tank size from a level/percentage pair when both
// are present, else falls back to the configured default.
func (d *Detector) capacity(s *domain.TelemetrySample) float64 {
	for _, c := range []*domain.TelemetrySample{s, d.prev} {
		if c != nil && c.FuelLevel != nil && c.FuelPct != nil && *c.FuelPct > 1 {
			return *c.FuelLevel / (*c.FuelPct / 100)
		}
	}
	return d.cfg.DefaultCapacity
}

func (d *Detector) detection(before, after float64, start, end time.Time,
	method domain.DetectionMethod, conf domain.Confidence, branch string) *domain.FuelFillEvent {
	code := branch
	if code == "" {
		code = d.plate
	}
	return &domain.FuelFillEvent{
		ID:            uuid.NewString(),
		Plate:         d.plate,
		CostCode:      code,
		Company:       d.cfg.Company,
		FillTime:      start,
		FuelBefore:    before,
		FuelAfter:     after,
		FillAmount:    after - before,
		Method:        method,
		Confidence:    conf,
		CombinedCount: 1,
		RangeStart:    start,
		RangeEnd:      end,
		CreatedAt:     time.Now(),
	}
}

// buffer merges a raw detection into the pending event. Overlapping time
// ranges describe the same underlying rise and are de-duplicated;
// adjacent ranges within the merge window are one fill episode and sum.
func (d *Detector) buffer(ev *domain.FuelFillEvent) {
	metrics.FillsDetected.Add(1)
	p := d.pending
	if p == nil {
		d.notify(ev)
		d.pending = ev
		return
	}

	if overlaps(p, ev) {
		// Same rise seen twice: keep the stronger detection's identity,
		// never sum.
		if confStronger(ev.Confidence, p.Confidence) {
			ev.CombinedCount = p.CombinedCount
			ev.Combined = p.Combined
			d.pending = ev
		}
		return
	}

	if ev.RangeStart.Sub(p.RangeEnd) <= d.cfg.MergeWindow {
		d.notify(ev)
		p.FillAmount += ev.FillAmount
		p.FuelAfter = ev.FuelAfter
		p.Confidence = p.Confidence.Higher(ev.Confidence)
		p.RangeEnd = ev.RangeEnd
		p.Combined = true
		p.CombinedCount++
		if p.SessionID == "" {
			p.SessionID = ev.SessionID
		}
		metrics.FillsCombined.Add(1)
		return
	}

	// Too far apart: distinct fills. The displaced one is returned by
	// the Observe call in progress.
	d.notify(ev)
	d.releaseAndHold(ev)
}

// notify fires the detection hook for a contributing detection.
// Overlap-dropped duplicates never reach it.
func (d *Detector) notify(ev *domain.FuelFillEvent) {
	if d.OnDetect != nil {
		d.OnDetect(ev)
	}
}

func (d *Detector) releaseAndHold(next *domain.FuelFillEvent) {
	prev := d.pending
	d.pending = next
	if prev != nil {
		d.released = append(d.released, prev)
	}
}

// flushStale releases the pending event once the merge window has
// passed without another detection joining it.
func (d *Detector) flushStale(now time.Time) []*domain.FuelFillEvent {
	var out []*domain.FuelFillEvent
	if d.pending != nil && now.Sub(d.pending.RangeEnd) > d.cfg.MergeWindow {
		out = append(out, d.pending)
		d.pending = nil
	}
	return out
}

func overlaps(a, b *domain.FuelFillEvent) bool {
	return a.RangeStart.Before(b.RangeEnd) && b.RangeStart.Before(a.RangeEnd)
}

func confStronger(a, b domain.Confidence) bool {
	return a.Higher(b) == a && a != b
}
