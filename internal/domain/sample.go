package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// SampleStatus is the closed set of statuses the pipeline operates on.
// The free-form text the tracker sends is normalized into one of these at
// the ingest boundary; the original text is kept on the sample for audit.
type SampleStatus string

const (
	StatusEngineOn         SampleStatus = "ENGINE_ON"
	StatusEngineOff        SampleStatus = "ENGINE_OFF"
	StatusPossibleFuelFill SampleStatus = "POSSIBLE_FUEL_FILL"
	StatusRunning          SampleStatus = "RUNNING"
	StatusUnknown          SampleStatus = "UNKNOWN"
)

// NormalizeStatus maps raw tracker status text onto the closed enum.
func NormalizeStatus(raw string) SampleStatus {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case upper == "":
		return StatusUnknown
	case strings.Contains(upper, "ENGINE ON"):
		return StatusEngineOn
	case strings.Contains(upper, "ENGINE OFF"):
		return StatusEngineOff
	case strings.Contains(upper, "POSSIBLE FUEL FILL"):
		return StatusPossibleFuelFill
	default:
		return StatusRunning
	}
}

type TelemetrySample struct {
	ReceivedAt time.Time
	ObservedAt time.Time

	Plate     string
	RawStatus string
	Status    SampleStatus

	// Quality carries the tracker's source address and doubles as the
	// secondary match key against the vehicle-status API.
	Quality string

	FuelLevel *float64
	FuelPct   *float64
	FuelTemp  *float64
	Speed     *float64

	RawPayload []byte
}

// HasFuelData reports whether the sample carries a usable probe reading.
func (s *TelemetrySample) HasFuelData() bool {
	return s.FuelLevel != nil || s.FuelPct != nil
}

// WithFuel returns a copy of the sample with the given probe values set.
// The receiver is never mutated; samples are immutable once constructed.
func (s *TelemetrySample) WithFuel(level, pct, temp *float64) *TelemetrySample {
	out := *s
	out.FuelLevel = level
	out.FuelPct = pct
	out.FuelTemp = temp
	return &out
}

// FlexFloat unmarshals a JSON value that may arrive as a number, a
// numeric string, an empty string, or null. Trackers are not consistent
// about field typing, so parse failures yield nil rather than an error.
type FlexFloat struct {
	Value *float64
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		f.Value = nil
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		f.Value = nil
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.Value = nil
		return nil
	}
	f.Value = &v
	return nil
}

// Float returns a pointer to v. Convenience for building samples.
func Float(v float64) *float64 {
	return &v
}
