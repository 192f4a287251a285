package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/terratd/simcore/pkg/core"
)

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePosition parses a "lon,lat" or "lon,lat,elev" string into a
// GeoPosition. Route layers hand individual waypoints over in this form.
func ParsePosition(coords string) (core.GeoPosition, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return core.GeoPosition{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.GeoPosition{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.GeoPosition{}, ErrInvalidCoordinates
	}
	if len(parts) == 2 {
		return core.NewGeoPosition(lat, lon), nil
	}
	elev, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return core.GeoPosition{}, ErrInvalidCoordinates
	}
	return core.NewGeoPosition3D(lat, lon, elev), nil
}

// ParsePath parses a JSON array of coordinates into a Path.
// Input format: "[[lon1,lat1],[lon2,lat2],...]", with an optional third
// element per coordinate for elevation.
func ParsePath(input string) (core.Path, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse path JSON: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("path must have at least 2 points, got %d", len(coords))
	}

	path := make(core.Path, len(coords))
	for i, c := range coords {
		switch {
		case len(c) >= 3:
			path[i] = core.NewGeoPosition3D(c[1], c[0], c[2])
		case len(c) == 2:
			path[i] = core.NewGeoPosition(c[1], c[0])
		default:
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
	}
	return path, nil
}

// ParsePathLineString parses the same JSON format directly into a
// simplefeatures linestring (lon/lat order) for consumers that want geometry
// rather than waypoints.
func ParsePathLineString(input string) (geom.LineString, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return geom.LineString{}, fmt.Errorf("failed to parse path JSON: %w", err)
	}
	if len(coords) < 2 {
		return geom.LineString{}, fmt.Errorf("path must have at least 2 points, got %d", len(coords))
	}

	flat := make([]float64, 0, len(coords)*2)
	for i, c := range coords {
		if len(c) < 2 {
			return geom.LineString{}, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		flat = append(flat, c[0], c[1])
	}
	seq := geom.NewSequence(flat, geom.DimXY)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("failed to build linestring: %w", err)
	}
	return ls, nil
}
