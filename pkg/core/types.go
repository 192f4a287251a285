// Package core holds the plain domain types shared between the simulation,
// the recording backends and external consumers. Types here carry no GIS or
// database dependencies beyond geometry construction helpers.
package core

import (
	geom "github.com/peterstace/simplefeatures/geom"
)

// GeoPosition is a geodetic coordinate: decimal degrees latitude/longitude and
// meters above the reference surface. A position without a resolved height
// (HasHeight false) must be placed vertically via the terrain sampler before
// it is rendered.
type GeoPosition struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Height    float64 `json:"height"`
	HasHeight bool    `json:"hasHeight"`
}

// NewGeoPosition returns a position with an unresolved height.
func NewGeoPosition(lat, lon float64) GeoPosition {
	return GeoPosition{Lat: lat, Lon: lon}
}

// NewGeoPosition3D returns a position with a known height in meters.
func NewGeoPosition3D(lat, lon, height float64) GeoPosition {
	return GeoPosition{Lat: lat, Lon: lon, Height: height, HasHeight: true}
}

// LocalPosition is a point in the session's local Cartesian frame, meters
// relative to the origin.
//
// Axis convention, shared by every consumer of this package:
//
//	X — meters east of the origin
//	Y — meters up
//	Z — meters toward true north
//
// Headings are radians clockwise from north viewed from above, so heading 0
// points along +Z and heading π/2 along +X.
type LocalPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Path is an ordered list of geographic waypoints an agent follows. Paths with
// fewer than two points are valid and leave the agent stationary.
type Path []GeoPosition

// LineString converts the path to a simplefeatures linestring
// (lon/lat/height order, matching WKT axis conventions).
func (p Path) LineString() (geom.LineString, error) {
	flat := make([]float64, 0, len(p)*3)
	for _, pt := range p {
		flat = append(flat, pt.Lon, pt.Lat, pt.Height)
	}
	seq := geom.NewSequence(flat, geom.DimXYZ)
	return geom.NewLineString(seq)
}

// SessionInfo identifies one recording session: the world origin it was played
// on and when it started.
type SessionInfo struct {
	Name        string      `json:"name"`
	WorldName   string      `json:"worldName"`
	Origin      GeoPosition `json:"origin"`
	StartTimeMs int64       `json:"startTimeMs"`
}
