package domain

import "time"

type DetectionMethod string

const (
	MethodStatusBased   DetectionMethod = "STATUS_BASED"
	MethodLevelBased    DetectionMethod = "LEVEL_BASED"
	MethodSessionImport DetectionMethod = "SESSION_IMPORT"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// rank orders confidences for merge resolution.
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// Higher returns the stronger of two confidences.
func (c Confidence) Higher(other Confidence) Confidence {
	if confidenceRank[other] > confidenceRank[c] {
		return other
	}
	return c
}

// FuelFillEvent is a detected non-consumption rise in fuel level.
// Immutable once emitted, except for absorption into a combined event
// while still buffered inside the detector.
type FuelFillEvent struct {
	ID       string
	Plate    string
	CostCode string
	Company  string

	// SessionID links the fill to the session that was open when the
	// rise happened, empty when the vehicle was idle.
	SessionID string

	FillTime   time.Time
	FuelBefore float64
	FuelAfter  float64
	FillAmount float64

	Method     DetectionMethod
	Confidence Confidence

	Combined      bool
	CombinedCount int

	// RangeStart/RangeEnd bound the sample pair(s) the detection came
	// from; used to drop a second detection of the same rise.
	RangeStart time.Time
	RangeEnd   time.Time

	CreatedAt time.Time
}
