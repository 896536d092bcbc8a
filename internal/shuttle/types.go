package shuttle

import (
	"time"

	"shuttle-telemetry/internal/geo"
)

const (
	Outbound = "outbound"
	Inbound  = "inbound"
)

type Status string

const (
	StatusFresh   Status = "fresh"
	StatusDelayed Status = "delayed"
	StatusOffline Status = "offline"
	StatusHidden  Status = "hidden"
)

type StopRef struct {
	ID       string `json:"id" yaml:"id"`
	Sequence int    `json:"sequence" yaml:"sequence"`
}

// Direction is one direction of travel: a closed polyline plus its ordered stop references.
type Direction struct {
	Name        string           `json:"direction"`
	Coordinates []geo.Coordinate `json:"coordinates"`
	Stops       []StopRef        `json:"stops,omitempty"`
}

type Route struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Directions []Direction `json:"directions"`
}

type Stop struct {
	ID        string  `json:"id"`
	NameTH    string  `json:"name_th"`
	NameEN    string  `json:"name_en,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Sequence  int     `json:"sequence"`
	Direction string  `json:"direction"`
}

func (s Stop) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lon: s.Longitude, Lat: s.Latitude}
}

// DisplayName prefers the English name and falls back to the Thai name, then the id.
func (s Stop) DisplayName() string {
	if s.NameEN != "" {
		return s.NameEN
	}
	if s.NameTH != "" {
		return s.NameTH
	}
	return s.ID
}

type Vehicle struct {
	ID          string    `json:"id"`
	Label       string    `json:"label,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Heading     *float64  `json:"heading,omitempty"`
	Direction   string    `json:"direction"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

func (v Vehicle) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lon: v.Longitude, Lat: v.Latitude}
}

// Plate is the label shown to riders, falling back to the id.
func (v Vehicle) Plate() string {
	if v.Label != "" {
		return v.Label
	}
	return v.ID
}

// Position is a per-frame vehicle placement emitted by the simulators.
type Position struct {
	VehicleID string         `json:"vehicleId"`
	Label     string         `json:"label,omitempty"`
	Direction string         `json:"direction"`
	Point     geo.Coordinate `json:"point"`
	Heading   float64        `json:"heading"`
	SpeedMps  float64        `json:"speedMps"`
	Status    Status         `json:"status"`
}

// Vehicle converts a frame position into the snapshot consumed by telemetry.
func (p Position) Vehicle(at time.Time) Vehicle {
	h := p.Heading
	return Vehicle{
		ID:          p.VehicleID,
		Label:       p.Label,
		Latitude:    p.Point.Lat,
		Longitude:   p.Point.Lon,
		Heading:     &h,
		Direction:   p.Direction,
		Status:      p.Status,
		LastUpdated: at,
	}
}
