package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/fueling"
	"fuelwatch/ingestion/internal/resolver"
	"fuelwatch/ingestion/internal/session"
)

// SnapshotWriter makes the last-known probe reading visible outside the
// worker (Redis in production).
type SnapshotWriter interface {
	SnapshotVehicle(ctx context.Context, snap *domain.VehicleSnapshot) error
}

// vehicleWorker is the single sequential processing path for one plate.
// It exclusively owns the VehicleState and detector state, so sample
// handling needs no locks. Samples for the plate are processed strictly
// in arrival order.
type vehicleWorker struct {
	plate string
	ch    chan *domain.TelemetrySample

	state    *domain.VehicleState
	machine  *session.Machine
	detector *fueling.Detector
	resolver *resolver.Resolver
	emitter  *Emitter
	snaps    SnapshotWriter

	sweepEvery time.Duration
}

func (w *vehicleWorker) run() {
	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case s, ok := <-w.ch:
			if !ok {
				w.shutdown()
				return
			}
			w.process(s)

		case <-ticker.C:
			// Sessions whose close signal was lost get closed at the
			// ceiling instead of growing without bound.
			w.emitOutcome(w.machine.ForceClose(w.state, time.Now()), "")
		}
	}
}

func (w *vehicleWorker) process(s *domain.TelemetrySample) {
	ctx := context.Background()

	res := resolver.Resolution{Source: resolver.SourceNone}
	if !s.HasFuelData() && w.resolver != nil {
		res = w.resolver.Resolve(ctx, s, w.state)
		s = resolver.Apply(s, res)
	}

	// Detectors observe before the session transition: a fill whose
	// resumption sample is the engine-off sample itself still credits
	// the session it happened in, and a fill surfacing on the engine-on
	// sample stays a pre-session fill.
	fills := w.detector.Observe(s, res.Branch)

	out := w.machine.Apply(w.state, s, res.Branch)
	if out.Opened != nil && res.Volume != nil {
		out.Opened.OpeningVolume = res.Volume
	}
	w.emitOutcome(out, res.Branch)

	for _, ev := range fills {
		w.emitFill(ev)
	}

	w.writeSnapshot(ctx, s)
}

// shutdown flushes the detector's buffered detections when the queue
// closes, so a fill seen right before shutdown is not lost.
func (w *vehicleWorker) shutdown() {
	for _, ev := range w.detector.Flush() {
		w.emitFill(ev)
	}
	if w.state.Session != nil {
		// Leave the session OPEN; the next run picks it up or the
		// sweeper closes it at the ceiling.
		w.emitter.SessionUpdated(w.state.Session)
	}
}

func (w *vehicleWorker) emitOutcome(out session.Outcome, branch string) {
	if out.Opened != nil {
		w.emitter.SessionOpened(out.Opened)
	}
	if out.Updated != nil {
		w.emitter.SessionUpdated(out.Updated)
	}
	if out.Closed != nil {
		w.emitter.SessionClosed(out.Closed)
	}
	for _, entry := range out.Activities {
		w.emitter.Activity(entry)
	}
}

func (w *vehicleWorker) emitFill(ev *domain.FuelFillEvent) {
	w.emitter.FillDetected(ev)

	activityType := domain.ActivityFuelFillSessionStart
	if ev.SessionID != "" {
		activityType = domain.ActivityFuelFill
	}
	w.emitter.Activity(&domain.ActivityLogEntry{
		ID:          ev.ID,
		Type:        activityType,
		Plate:       ev.Plate,
		Branch:      ev.CostCode,
		Description: fmt.Sprintf("fuel fill of %.1fL detected (%s)", ev.FillAmount, ev.Method),
		Payload: map[string]interface{}{
			"fill_event_id":  ev.ID,
			"fuel_before":    ev.FuelBefore,
			"fuel_after":     ev.FuelAfter,
			"fill_amount":    ev.FillAmount,
			"method":         string(ev.Method),
			"confidence":     string(ev.Confidence),
			"combined":       ev.Combined,
			"combined_count": ev.CombinedCount,
		},
		Timestamp: ev.FillTime,
	})
}

// creditFill adds a detected amount to the open session's fill total.
// Wired as the detector's detection hook so the credit lands in the
// session that was open when the rise happened, not when the merged
// event is finally released.
func (w *vehicleWorker) creditFill(ev *domain.FuelFillEvent) {
	if w.state.Session == nil {
		return
	}
	ev.SessionID = w.state.Session.ID
	w.state.Session.TotalFilled += ev.FillAmount
}

func (w *vehicleWorker) writeSnapshot(ctx context.Context, s *domain.TelemetrySample) {
	if w.snaps == nil {
		return
	}
	snapCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := w.snaps.SnapshotVehicle(snapCtx, &domain.VehicleSnapshot{
		Plate:     w.plate,
		Level:     w.state.LastLevel,
		Pct:       w.state.LastPct,
		Temp:      w.state.LastTemp,
		Status:    string(w.state.LastStatus),
		UpdatedAt: w.state.LastSeen,
	})
	if err != nil {
		log.WithError(err).WithField("plate", w.plate).Warn("vehicle snapshot write failed")
	}
}
