package domain

import "time"

type SessionStatus string

const (
	SessionOpen      SessionStatus = "OPEN"
	SessionCompleted SessionStatus = "COMPLETED"
)

// OperatingSession is one engine-on to engine-off interval for a vehicle.
// Opened by the session state machine on an engine-on transition, mutated
// by that machine only, and closed on engine-off or a forced close.
type OperatingSession struct {
	ID          string
	Plate       string
	CostCode    string
	Company     string
	SessionDate time.Time

	StartTime time.Time
	EndTime   *time.Time

	OpeningLevel  *float64
	OpeningPct    *float64
	OpeningTemp   *float64
	OpeningVolume *float64
	ClosingLevel  *float64
	ClosingPct    *float64
	ClosingTemp   *float64
	ClosingVolume *float64

	// TotalUsage accumulates level decreases only, so a fill during the
	// session never inflates consumption. Fills go to TotalFilled.
	TotalUsage  float64
	TotalFilled float64

	OperatingHours float64
	UsagePerHour   float64

	Status SessionStatus
	Notes  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VehicleState is the per-plate processing state. It is owned exclusively
// by the worker goroutine for that plate and must never be shared.
type VehicleState struct {
	Plate   string
	Session *OperatingSession

	LastSeen   time.Time
	LastStatus SampleStatus
	LastLevel  *float64
	LastPct    *float64
	LastTemp   *float64
}

// VehicleSnapshot is the last-known probe reading cached in Redis. It
// backs the resolver once in-memory state is gone, e.g. after a restart.
type VehicleSnapshot struct {
	Plate     string    `json:"plate"`
	Level     *float64  `json:"level,omitempty"`
	Pct       *float64  `json:"pct,omitempty"`
	Temp      *float64  `json:"temp,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
