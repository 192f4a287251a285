// Package geo reconciles geodetic coordinates with the session's local,
// origin-relative Cartesian frame.
//
// Two precision tiers are provided. ToLocalPrecise goes through a geocentric
// (ECEF) position and an east-north-up frame rotation and is accurate at any
// distance from the origin; it is meant for one-time alignment work such as
// initial camera framing. ToLocal is a flat-earth approximation: one signed
// per-axis arc length, scaled by the ellipsoid's curvature radii at the
// origin. It is the variant the per-frame movement path uses. Its error grows
// with distance from the origin and is neither bounded nor corrected; paths
// beyond a few kilometers are outside the supported envelope.
package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/wroge/wgs84"

	"github.com/terratd/simcore/pkg/core"
)

const (
	// earthRadius is the mean earth radius in meters used by the great-circle
	// distance helper.
	earthRadius = 6371000.0

	// MetersPerDegree is the meridional meters per degree of latitude implied
	// by earthRadius. Heading math uses it; positional transforms use the
	// origin-local scales cached on the Frame instead.
	MetersPerDegree = earthRadius * math.Pi / 180.0

	// WGS84 ellipsoid.
	wgs84A   = 6378137.0
	wgs84ESq = 0.00669437999014

	// headingEpsilon is the displacement (meters) below which no reliable
	// heading can be derived. HeadingFromDeltas returns 0 under it; callers
	// treat that as "keep the previous facing", not "face north".
	headingEpsilon = 1e-6
)

// Frame converts between geographic coordinates and the local frame centered
// on a mutable origin. A Frame is explicitly constructed and owned by its
// session; replacing the origin makes every previously computed local
// position stale, and recomputing those is the caller's responsibility — no
// invalidation signal is emitted here.
type Frame struct {
	mu     sync.RWMutex
	origin core.GeoPosition

	// cached per-origin terms
	cosLat, sinLat float64
	cosLon, sinLon float64
	originECEF     [3]float64

	// flat-earth axis scales at the origin, meters per degree. Derived from
	// the meridional and prime-vertical curvature radii so the approximate
	// tier stays within tolerance of the geocentric tier near the origin;
	// a single spherical radius diverges by more than half a meter per 200m
	// at mid-latitudes.
	mPerDegLat float64
	mPerDegLon float64

	toECEF wgs84.Func
}

// NewFrame creates a frame centered on the given origin.
func NewFrame(lat, lon, height float64) *Frame {
	f := &Frame{
		toECEF: wgs84.LonLat().To(wgs84.XYZ()),
	}
	f.SetOrigin(lat, lon, height)
	return f
}

// SetOrigin replaces the reference origin. All local positions computed
// against the previous origin are stale after this returns.
func (f *Frame) SetOrigin(lat, lon, height float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.origin = core.NewGeoPosition3D(lat, lon, height)
	latRad := lat * math.Pi / 180.0
	lonRad := lon * math.Pi / 180.0
	f.cosLat, f.sinLat = math.Cos(latRad), math.Sin(latRad)
	f.cosLon, f.sinLon = math.Cos(lonRad), math.Sin(lonRad)

	// curvature radii at the origin latitude
	w := math.Sqrt(1 - wgs84ESq*f.sinLat*f.sinLat)
	meridional := wgs84A * (1 - wgs84ESq) / (w * w * w)
	primeVertical := wgs84A / w
	f.mPerDegLat = meridional * math.Pi / 180.0
	f.mPerDegLon = primeVertical * f.cosLat * math.Pi / 180.0

	x, y, z := f.toECEF(lon, lat, height)
	f.originECEF = [3]float64{x, y, z}
}

// Origin returns the current reference origin.
func (f *Frame) Origin() core.GeoPosition {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.origin
}

// Distance returns the great-circle distance in meters between two points
// (haversine on the mean sphere). Path segment lengths come from here.
func Distance(aLat, aLon, bLat, bLon float64) float64 {
	dLat := (bLat - aLat) * math.Pi / 180.0
	dLon := (bLon - aLon) * math.Pi / 180.0
	rLat1 := aLat * math.Pi / 180.0
	rLat2 := bLat * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// ToLocal projects a geographic point into the local frame using the
// flat-earth approximation: an independent signed arc along each axis. Fast,
// hot-path variant.
func (f *Frame) ToLocal(lat, lon, height float64) core.LocalPosition {
	f.mu.RLock()
	o := f.origin
	mLat, mLon := f.mPerDegLat, f.mPerDegLon
	f.mu.RUnlock()

	north := (lat - o.Lat) * mLat
	east := (lon - o.Lon) * mLon

	p := core.LocalPosition{X: east, Y: height - o.Height, Z: north}
	assertFinite("ToLocal", p.X, p.Y, p.Z)
	return p
}

// ToLocalPrecise projects a geographic point into the local frame via a
// geocentric position and an east-north-up rotation about the origin.
// Accurate at any distance, but heavier than ToLocal; keep it off the
// per-frame movement path.
func (f *Frame) ToLocalPrecise(lat, lon, height float64) core.LocalPosition {
	f.mu.RLock()
	defer f.mu.RUnlock()

	x, y, z := f.toECEF(lon, lat, height)
	dx := x - f.originECEF[0]
	dy := y - f.originECEF[1]
	dz := z - f.originECEF[2]

	east := -f.sinLon*dx + f.cosLon*dy
	north := -f.sinLat*f.cosLon*dx - f.sinLat*f.sinLon*dy + f.cosLat*dz
	up := f.cosLat*f.cosLon*dx + f.cosLat*f.sinLon*dy + f.sinLat*dz

	p := core.LocalPosition{X: east, Y: up, Z: north}
	assertFinite("ToLocalPrecise", p.X, p.Y, p.Z)
	return p
}

// ToGeo is the inverse of ToLocal, dividing out the same per-origin axis
// scales. Exact inverse of the approximate tier; do not mix with
// ToLocalPrecise output.
func (f *Frame) ToGeo(p core.LocalPosition) core.GeoPosition {
	f.mu.RLock()
	o := f.origin
	mLat, mLon := f.mPerDegLat, f.mPerDegLon
	f.mu.RUnlock()

	lat := o.Lat + p.Z/mLat
	lon := o.Lon + p.X/mLon
	assertFinite("ToGeo", lat, lon)
	return core.NewGeoPosition3D(lat, lon, o.Height+p.Y)
}

// HeadingBetween returns the local-frame heading, in radians, of the
// direction from one geographic point to another.
func (f *Frame) HeadingBetween(fromLat, fromLon, toLat, toLon float64) float64 {
	cosLat := math.Cos(fromLat * math.Pi / 180.0)
	dNorth := (toLat - fromLat) * MetersPerDegree
	dEast := (toLon - fromLon) * MetersPerDegree * cosLat
	return HeadingFromDeltas(dNorth, dEast)
}

// HeadingFromDeltas converts a displacement in meters (north, east) into the
// local rotation convention: 0 = north, π/2 = east, range (-π, π].
// Displacements under the epsilon return 0; that means "no reliable heading",
// not "facing north" — callers must skip their heading update instead of
// snapping to it.
func HeadingFromDeltas(dNorth, dEast float64) float64 {
	if math.Abs(dNorth) < headingEpsilon && math.Abs(dEast) < headingEpsilon {
		return 0
	}
	return math.Atan2(dEast, dNorth)
}

// assertFinite panics on NaN/Inf intermediates. Out-of-range input is the
// producer's bug; letting NaN propagate into agent positions silently is
// worse than failing loudly.
func assertFinite(op string, vs ...float64) {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			panic(fmt.Sprintf("geo: %s produced a non-finite coordinate", op))
		}
	}
}
