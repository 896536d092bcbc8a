package telemetry

import (
	"time"

	"shuttle-telemetry/internal/shuttle"
)

// VehicleSample is the per-vehicle telemetry for one telemetry tick. Optional
// values are nil when unknown and are omitted from JSON.
type VehicleSample struct {
	VehicleID           string     `json:"vehicle_id"`
	Plate               string     `json:"plate"`
	Direction           string     `json:"direction"`
	SpeedMps            *float64   `json:"speed_mps,omitempty"`
	SpeedKph            *float64   `json:"speed_kph,omitempty"`
	NextStopID          string     `json:"next_stop_id,omitempty"`
	NextStopName        string     `json:"next_stop_name,omitempty"`
	DistanceToNextStopM *float64   `json:"distance_to_next_stop_m,omitempty"`
	ETAToNextStopS      *float64   `json:"eta_to_next_stop_s,omitempty"`
	ArrivalTime         *time.Time `json:"arrival_time,omitempty"`
	PrevStopID          string     `json:"prev_stop_id,omitempty"`
	ProgressPercent     *float64   `json:"progress_percent,omitempty"`
}

// StopETA is one arrival candidate for a stop.
type StopETA struct {
	StopID         string         `json:"stop_id"`
	VehicleID      string         `json:"vehicle_id"`
	VehicleLabel   string         `json:"vehicle_label,omitempty"`
	Plate          string         `json:"plate"`
	ETASeconds     *float64       `json:"eta_s,omitempty"`
	ETAMinutes     *int           `json:"eta_minutes,omitempty"`
	ArrivalTime    *time.Time     `json:"arrival_time,omitempty"`
	DistanceMeters float64        `json:"distance_meters"`
	SpeedKph       *float64       `json:"speed_kph,omitempty"`
	Status         shuttle.Status `json:"status"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// Known reports whether the candidate carries a usable ETA.
func (e StopETA) Known() bool { return e.ETASeconds != nil }

type Result struct {
	At         time.Time                `json:"at"`
	ETAsByStop map[string][]StopETA     `json:"etas_by_stop"`
	ByVehicle  map[string]VehicleSample `json:"telemetry_by_vehicle"`
	// Unavailable counts vehicles bound to a direction without usable geometry.
	Unavailable int `json:"-"`
	Evicted     int `json:"-"`
}
