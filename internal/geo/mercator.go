package geo

import (
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Recorded positions are persisted as EPSG:3857 so SQLite (no spatial
// awareness) and Postgres both store the same planar representation.

// Point3857 projects a WGS84 lat/lon into a web-mercator point. Non-finite
// inputs come out as an empty point; finite lat/lon always project cleanly.
func Point3857(lat, lon float64) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(lon, lat, 0)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return pt
}

// LatLonFrom3857 inverts Point3857 for readers of stored data.
func LatLonFrom3857(x, y float64) (lat, lon float64) {
	f := wgs84.EPSG().Transform(3857, 4326)
	lon, lat, _ = f(x, y, 0)
	return lat, lon
}
