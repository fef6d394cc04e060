package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fuelwatch/ingestion/internal/domain"
	"fuelwatch/ingestion/internal/metrics"
)

// Policy holds the session knobs. The hours ceiling and the
// halve-and-reclamp correction are historical policy, not physics, so
// both stay configurable and corrected sessions get a review note.
type Policy struct {
	MaxHours      float64
	HalveOverlong bool
	Company       string
}

// Outcome is what one sample did to a vehicle's session state. At most
// one of Opened/Closed is set; Updated covers running mutations of an
// open session, including the closing mutation.
type Outcome struct {
	Opened     *domain.OperatingSession
	Updated    *domain.OperatingSession
	Closed     *domain.OperatingSession
	Activities []*domain.ActivityLogEntry
}

// Machine drives the IDLE -> OPEN -> IDLE transitions for vehicles. It
// keeps no state of its own; all per-vehicle state lives in the
// VehicleState owned by that vehicle's worker, so one Machine instance
// serves every worker.
type Machine struct {
	policy Policy
}

func New(policy Policy) *Machine {
	return &Machine{policy: policy}
}

// Apply consumes one resolved sample for a vehicle and mutates its state.
// Samples must arrive in per-vehicle order.
func (m *Machine) Apply(state *domain.VehicleState, s *domain.TelemetrySample, branch string) Outcome {
	var out Outcome

	// A session left open past the ceiling means the close signal was
	// lost to a clock or connectivity gap. Close it at the ceiling
	// before looking at the current sample. A late engine-off is still
	// a real close and goes through the regular path, where the
	// halve-and-reclamp correction applies.
	if state.Session != nil && s.Status != domain.StatusEngineOff &&
		s.ObservedAt.Sub(state.Session.StartTime).Hours() > m.policy.MaxHours {
		forced := m.forceClose(state, s.ObservedAt)
		out.Closed = forced.Closed
		out.Activities = append(out.Activities, forced.Activities...)
	}

	switch {
	case state.Session == nil && s.Status == domain.StatusEngineOn:
		out.Opened = m.open(state, s, branch)
		out.Activities = append(out.Activities, m.activity(domain.ActivityEngineOn, s, branch,
			fmt.Sprintf("engine on, session opened at %.1fL", deref(s.FuelLevel))))

	case state.Session != nil && s.Status == domain.StatusEngineOff:
		out.Closed = m.close(state, s)
		out.Activities = append(out.Activities, m.activity(domain.ActivityEngineOff, s, branch,
			fmt.Sprintf("engine off, session closed at %.1fL", deref(s.FuelLevel))))

	case state.Session != nil:
		// Includes a repeated ENGINE ON while already open: treated as
		// a running update so replays never create a second session.
		m.update(state, s)
		out.Updated = state.Session

	case s.Status == domain.StatusEngineOff:
		// Engine off with nothing open: ignored as a zero-duration
		// transition, logged for audit, never an error.
		log.WithFields(log.Fields{
			"plate":  s.Plate,
			"status": s.RawStatus,
		}).Warn("engine off with no open session, ignoring")
	}

	m.touch(state, s)
	return out
}

// ForceClose closes an open session at the ceiling without a sample.
// Used by the worker's sweep ticker for vehicles that went silent.
func (m *Machine) ForceClose(state *domain.VehicleState, now time.Time) Outcome {
	if state.Session == nil || now.Sub(state.Session.StartTime).Hours() <= m.policy.MaxHours {
		return Outcome{}
	}
	return m.forceClose(state, now)
}

func (m *Machine) open(state *domain.VehicleState, s *domain.TelemetrySample, branch string) *domain.OperatingSession {
	now := s.ReceivedAt
	sess := &domain.OperatingSession{
		ID:           uuid.NewString(),
		Plate:        s.Plate,
		CostCode:     costCode(branch, s.Plate),
		Company:      m.policy.Company,
		SessionDate:  s.ObservedAt.Truncate(24 * time.Hour),
		StartTime:    s.ObservedAt,
		OpeningLevel: s.FuelLevel,
		OpeningPct:   s.FuelPct,
		OpeningTemp:  s.FuelTemp,
		Status:       domain.SessionOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	state.Session = sess
	metrics.SessionsOpened.Add(1)
	return sess
}

func (m *Machine) update(state *domain.VehicleState, s *domain.TelemetrySample) {
	sess := state.Session
	m.accumulateUsage(state, s)
	sess.UpdatedAt = s.ReceivedAt
}

func (m *Machine) close(state *domain.VehicleState, s *domain.TelemetrySample) *domain.OperatingSession {
	sess := state.Session
	m.accumulateUsage(state, s)

	end := s.ObservedAt
	sess.EndTime = &end
	sess.ClosingLevel = s.FuelLevel
	sess.ClosingPct = s.FuelPct
	sess.ClosingTemp = s.FuelTemp
	m.finalize(sess, end.Sub(sess.StartTime).Hours())
	sess.UpdatedAt = s.ReceivedAt

	state.Session = nil
	metrics.SessionsClosed.Add(1)
	return sess
}

func (m *Machine) forceClose(state *domain.VehicleState, now time.Time) Outcome {
	sess := state.Session
	end := sess.StartTime.Add(time.Duration(m.policy.MaxHours * float64(time.Hour)))
	sess.EndTime = &end
	sess.ClosingLevel = state.LastLevel
	sess.ClosingPct = state.LastPct
	sess.ClosingTemp = state.LastTemp
	m.finalize(sess, m.policy.MaxHours)
	sess.Notes = appendNote(sess.Notes,
		fmt.Sprintf("closed automatically after %.0fh with no engine-off signal (inferred close)", m.policy.MaxHours))
	sess.UpdatedAt = now

	state.Session = nil
	metrics.SessionsForced.Add(1)

	entry := &domain.ActivityLogEntry{
		ID:          uuid.NewString(),
		Type:        domain.ActivitySessionForceClose,
		Plate:       sess.Plate,
		Branch:      sess.CostCode,
		Description: fmt.Sprintf("session %s force-closed at ceiling", sess.ID),
		Payload: map[string]interface{}{
			"session_id":      sess.ID,
			"start_time":      sess.StartTime,
			"operating_hours": sess.OperatingHours,
		},
		Timestamp: now,
	}
	return Outcome{Closed: sess, Activities: []*domain.ActivityLogEntry{entry}}
}

// finalize computes the derived duration fields, applying the ceiling
// and the halve-and-reclamp correction for overlong values.
func (m *Machine) finalize(sess *domain.OperatingSession, hours float64) {
	corrected := false
	if hours < 0 {
		hours = 0
		corrected = true
	}
	if hours > m.policy.MaxHours {
		if m.policy.HalveOverlong {
			hours = hours / 2
		}
		if hours > m.policy.MaxHours {
			hours = m.policy.MaxHours
		}
		corrected = true
	}
	sess.OperatingHours = hours
	if hours > 0 {
		sess.UsagePerHour = sess.TotalUsage / hours
	}
	sess.Status = domain.SessionCompleted
	if corrected {
		sess.Notes = appendNote(sess.Notes, "operating hours corrected, flagged for review")
	}
}

// accumulateUsage adds level decreases to total usage. Increases are the
// fill detector's business and must never show up as negative usage.
func (m *Machine) accumulateUsage(state *domain.VehicleState, s *domain.TelemetrySample) {
	if s.FuelLevel == nil || state.LastLevel == nil {
		return
	}
	if *s.FuelLevel < *state.LastLevel {
		state.Session.TotalUsage += *state.LastLevel - *s.FuelLevel
	}
}

func (m *Machine) touch(state *domain.VehicleState, s *domain.TelemetrySample) {
	state.LastSeen = s.ObservedAt
	state.LastStatus = s.Status
	if s.FuelLevel != nil {
		state.LastLevel = s.FuelLevel
	}
	if s.FuelPct != nil {
		state.LastPct = s.FuelPct
	}
	if s.FuelTemp != nil {
		state.LastTemp = s.FuelTemp
	}
}

func (m *Machine) activity(t domain.ActivityType, s *domain.TelemetrySample, branch, desc string) *domain.ActivityLogEntry {
	return &domain.ActivityLogEntry{
		ID:          uuid.NewString(),
		Type:        t,
		Plate:       s.Plate,
		Branch:      costCode(branch, s.Plate),
		Description: desc,
		Payload: map[string]interface{}{
			"raw_status": s.RawStatus,
			"fuel_level": s.FuelLevel,
			"fuel_pct":   s.FuelPct,
		},
		Timestamp: s.ObservedAt,
	}
}

func costCode(branch, plate string) string {
	if branch != "" {
		return branch
	}
	return plate
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
