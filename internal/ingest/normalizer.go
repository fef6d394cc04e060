package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fuelwatch/ingestion/internal/domain"
)

// ErrMissingPlate marks a sample that cannot be attributed to a vehicle.
// Such samples are dropped and counted, never treated as fatal.
var ErrMissingPlate = errors.New("sample has no plate")

// rawSample mirrors the tracker's wire format. Numeric fields arrive as
// strings more often than not, so they all go through domain.FlexFloat.
type rawSample struct {
	Plate      string           `json:"Plate"`
	DriverName string           `json:"DriverName"`
	Quality    string           `json:"Quality"`
	FuelLevel  domain.FlexFloat `json:"fuel_probe_1_level"`
	FuelPct    domain.FlexFloat `json:"fuel_probe_1_level_percentage"`
	FuelTemp   domain.FlexFloat `json:"fuel_probe_1_temperature"`
	Speed      domain.FlexFloat `json:"Speed"`
	Timestamp  string           `json:"Timestamp"`
}

// Normalize parses one inbound payload into a typed sample. Unparseable
// numeric fields become nil; only a missing plate fails normalization.
func Normalize(payload []byte, now time.Time) (*domain.TelemetrySample, error) {
	var raw rawSample
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal sample: %w", err)
	}
	if raw.Plate == "" {
		return nil, ErrMissingPlate
	}

	observed := now
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			observed = ts
		}
	}

	return &domain.TelemetrySample{
		ReceivedAt: now,
		ObservedAt: observed,
		Plate:      raw.Plate,
		RawStatus:  raw.DriverName,
		Status:     domain.NormalizeStatus(raw.DriverName),
		Quality:    raw.Quality,
		FuelLevel:  raw.FuelLevel.Value,
		FuelPct:    raw.FuelPct.Value,
		FuelTemp:   raw.FuelTemp.Value,
		Speed:      raw.Speed.Value,
		RawPayload: payload,
	}, nil
}
