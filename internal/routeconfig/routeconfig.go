// Package routeconfig loads route and stop definitions from YAML. Geometry is
// given either as [lon, lat] pairs or as an encoded polyline.
package routeconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/twpayne/go-polyline"
	"gopkg.in/yaml.v3"

	"shuttle-telemetry/internal/geo"
	"shuttle-telemetry/internal/shuttle"
)

//go:embed default.yml
var defaultRoute []byte

type File struct {
	Route RouteDef  `yaml:"route"`
	Stops []StopDef `yaml:"stops" validate:"dive"`
}

type RouteDef struct {
	ID         string         `yaml:"id" validate:"required"`
	Name       string         `yaml:"name"`
	Directions []DirectionDef `yaml:"directions" validate:"required,min=1,dive"`
}

type DirectionDef struct {
	Name        string            `yaml:"direction" validate:"required,oneof=outbound inbound"`
	Coordinates [][]float64       `yaml:"coordinates" validate:"omitempty,min=2,dive,len=2"`
	Polyline    string            `yaml:"polyline" validate:"required_without=Coordinates"`
	Stops       []shuttle.StopRef `yaml:"stops"`
}

type StopDef struct {
	ID        string  `yaml:"id" validate:"required"`
	NameTH    string  `yaml:"name_th"`
	NameEN    string  `yaml:"name_en"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	Sequence  int     `yaml:"sequence" validate:"gte=0"`
	Direction string  `yaml:"direction" validate:"omitempty,oneof=outbound inbound"`
}

var validate = validator.New()

// Parse decodes and validates a route file.
func Parse(data []byte) (shuttle.Route, []shuttle.Stop, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return shuttle.Route{}, nil, fmt.Errorf("decode route file: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return shuttle.Route{}, nil, fmt.Errorf("invalid route file: %w", err)
	}

	r := shuttle.Route{ID: f.Route.ID, Name: f.Route.Name}
	for _, d := range f.Route.Directions {
		coords, err := d.coordinates()
		if err != nil {
			return shuttle.Route{}, nil, fmt.Errorf("direction %s: %w", d.Name, err)
		}
		r.Directions = append(r.Directions, shuttle.Direction{
			Name:        d.Name,
			Coordinates: coords,
			Stops:       d.Stops,
		})
	}

	stops := make([]shuttle.Stop, 0, len(f.Stops))
	for i, s := range f.Stops {
		seq := s.Sequence
		if seq == 0 {
			seq = i + 1
		}
		stops = append(stops, shuttle.Stop{
			ID:        s.ID,
			NameTH:    s.NameTH,
			NameEN:    s.NameEN,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Sequence:  seq,
			Direction: shuttle.NormalizeDirection(s.Direction),
		})
	}
	return r, stops, nil
}

func (d DirectionDef) coordinates() ([]geo.Coordinate, error) {
	if len(d.Coordinates) > 0 {
		out := make([]geo.Coordinate, len(d.Coordinates))
		for i, c := range d.Coordinates {
			out[i] = geo.Coordinate{Lon: c[0], Lat: c[1]}
		}
		return out, nil
	}
	return DecodePolyline(d.Polyline)
}

// DecodePolyline decodes a Google encoded polyline ([lat, lng] order).
func DecodePolyline(s string) ([]geo.Coordinate, error) {
	pts, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, errors.New("decode polyline: trailing data")
	}
	out := make([]geo.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = geo.Coordinate{Lat: p[0], Lon: p[1]}
	}
	return out, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(coords []geo.Coordinate) string {
	pts := make([][]float64, len(coords))
	for i, c := range coords {
		pts[i] = []float64{c.Lat, c.Lon}
	}
	return string(polyline.EncodeCoords(pts))
}

// Load reads a route file from disk.
func Load(path string) (shuttle.Route, []shuttle.Stop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return shuttle.Route{}, nil, err
	}
	return Parse(data)
}

// Default returns the built-in route used when no other source loads.
func Default() (shuttle.Route, []shuttle.Stop) {
	r, stops, err := Parse(defaultRoute)
	if err != nil {
		panic(fmt.Sprintf("embedded route: %v", err))
	}
	return r, stops
}
