package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fuelwatch/ingestion/internal/domain"
)

// VehicleRecord is one entry from the read-only vehicle-status API.
type VehicleRecord struct {
	Branch    string           `json:"branch"`
	Quality   string           `json:"quality"`
	FuelLevel domain.FlexFloat `json:"fuel_probe_1_level"`
	FuelPct   domain.FlexFloat `json:"fuel_probe_1_level_percentage"`
	Volume    domain.FlexFloat `json:"fuel_probe_1_volume_in_tank"`
	FuelTemp  domain.FlexFloat `json:"fuel_probe_1_temperature"`
}

// Client fetches the vehicle-status list. One bounded attempt per call;
// callers treat any failure as "no match".
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Fetch(ctx context.Context) ([]VehicleRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vehicle-status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("vehicle-status API returned %d", resp.StatusCode)
	}

	var records []VehicleRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode vehicle-status response: %w", err)
	}
	return records, nil
}

// Match picks the record for a sample: quality (source address) is the
// most specific key, plate-as-branch is the fallback.
func Match(records []VehicleRecord, quality, plate string) (VehicleRecord, bool) {
	if quality != "" {
		for _, r := range records {
			if r.Quality == quality {
				return r, true
			}
		}
	}
	for _, r := range records {
		if r.Branch == plate {
			return r, true
		}
	}
	return VehicleRecord{}, false
}
