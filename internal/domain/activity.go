package domain

import "time"

type ActivityType string

const (
	ActivityEngineOn             ActivityType = "ENGINE_ON"
	ActivityEngineOff            ActivityType = "ENGINE_OFF"
	ActivityFuelFill             ActivityType = "FUEL_FILL"
	ActivityFuelFillSessionStart ActivityType = "FUEL_FILL_SESSION_START"
	ActivitySessionForceClose    ActivityType = "SESSION_FORCE_CLOSE"
)

// ActivityLogEntry is an append-only audit record. Write-once.
type ActivityLogEntry struct {
	ID          string
	Type        ActivityType
	Plate       string
	Branch      string
	Description string
	Payload     map[string]interface{}
	Timestamp   time.Time
}
