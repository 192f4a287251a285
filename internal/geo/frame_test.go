package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mid-latitude test origin (Munich area).
const (
	originLat    = 48.1374
	originLon    = 11.5755
	originHeight = 520.0
)

func newTestFrame() *Frame {
	return NewFrame(originLat, originLon, originHeight)
}

func TestDistance_KnownDistances(t *testing.T) {
	tests := []struct {
		name       string
		aLat, aLon float64
		bLat, bLon float64
		wantM      float64
		tolerance  float64
	}{
		{
			name: "same point",
			aLat: 48.1374, aLon: 11.5755,
			bLat: 48.1374, bLon: 11.5755,
			wantM: 0, tolerance: 0.001,
		},
		{
			name: "Munich to Nuremberg (~151km)",
			aLat: 48.1374, aLon: 11.5755,
			bLat: 49.4521, bLon: 11.0767,
			wantM: 151000, tolerance: 2000,
		},
		{
			name: "one degree of latitude",
			aLat: 48.0, aLon: 11.0,
			bLat: 49.0, bLon: 11.0,
			wantM: MetersPerDegree, tolerance: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.aLat, tt.aLon, tt.bLat, tt.bLon)
			assert.InDelta(t, tt.wantM, got, tt.tolerance)
		})
	}
}

func TestDistance_Symmetry(t *testing.T) {
	d1 := Distance(48.0, 11.0, 48.5, 11.5)
	d2 := Distance(48.5, 11.5, 48.0, 11.0)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestToLocal_AxisConvention(t *testing.T) {
	f := newTestFrame()

	north := f.ToLocal(originLat+0.001, originLon, originHeight)
	assert.Greater(t, north.Z, 0.0, "point north of origin must have positive Z")
	assert.InDelta(t, 0, north.X, 1e-9, "due-north point must have no east component")

	east := f.ToLocal(originLat, originLon+0.001, originHeight)
	assert.Greater(t, east.X, 0.0, "point east of origin must have positive X")
	assert.InDelta(t, 0, east.Z, 1e-9, "due-east point must have no north component")

	up := f.ToLocal(originLat, originLon, originHeight+25)
	assert.InDelta(t, 25.0, up.Y, 1e-9)

	south := f.ToLocal(originLat-0.001, originLon, originHeight)
	assert.Less(t, south.Z, 0.0)
	west := f.ToLocal(originLat, originLon-0.001, originHeight)
	assert.Less(t, west.X, 0.0)
}

// Round-trip property: within 200m of the origin, ToGeo(ToLocal(p)) must
// reproduce p within 1cm horizontally and exactly in height.
func TestRoundTrip_NearOrigin(t *testing.T) {
	f := newTestFrame()

	offsets := []struct{ dLat, dLon, dH float64 }{
		{0.0005, 0, 0},
		{-0.0005, 0, 12},
		{0, 0.0009, -3},
		{0, -0.0009, 0},
		{0.0004, 0.0007, 40},
		{-0.0003, -0.0008, -7},
	}

	const horizontalTolM = 0.01

	for _, off := range offsets {
		lat := originLat + off.dLat
		lon := originLon + off.dLon
		h := originHeight + off.dH

		back := f.ToGeo(f.ToLocal(lat, lon, h))

		horizErr := Distance(lat, lon, back.Lat, back.Lon)
		assert.Less(t, horizErr, horizontalTolM,
			"round-trip horizontal error at dLat=%v dLon=%v", off.dLat, off.dLon)
		assert.InDelta(t, h, back.Height, 1e-9)
		assert.True(t, back.HasHeight)
	}
}

// Precision agreement: the approximate and precise projections must agree
// within 0.5m for points within 200m of a mid-latitude origin.
func TestApproxAgreesWithPrecise_NearOrigin(t *testing.T) {
	f := newTestFrame()

	for _, off := range []struct{ dLat, dLon, dH float64 }{
		{0.0018, 0, 0},       // ~200m north
		{-0.0018, 0, 0},      // ~200m south
		{0, 0.0027, 0},       // ~200m east
		{0, -0.0027, 0},      // ~200m west
		{0.0012, 0.0018, 30}, // diagonal, elevated
		{-0.0009, -0.0013, -20},
	} {
		lat := originLat + off.dLat
		lon := originLon + off.dLon
		h := originHeight + off.dH

		approx := f.ToLocal(lat, lon, h)
		precise := f.ToLocalPrecise(lat, lon, h)

		dx := approx.X - precise.X
		dy := approx.Y - precise.Y
		dz := approx.Z - precise.Z
		err := math.Sqrt(dx*dx + dy*dy + dz*dz)
		assert.Less(t, err, 0.5,
			"approx/precise divergence %.3fm at dLat=%v dLon=%v", err, off.dLat, off.dLon)
	}
}

func TestToLocalPrecise_OriginIsZero(t *testing.T) {
	f := newTestFrame()
	p := f.ToLocalPrecise(originLat, originLon, originHeight)
	assert.InDelta(t, 0, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
	assert.InDelta(t, 0, p.Z, 1e-6)
}

func TestHeading_Convention(t *testing.T) {
	f := newTestFrame()

	tests := []struct {
		name         string
		toLat, toLon float64
		want         float64
	}{
		{"north", originLat + 0.001, originLon, 0},
		{"east", originLat, originLon + 0.001, math.Pi / 2},
		{"south", originLat - 0.001, originLon, math.Pi},
		{"west", originLat, originLon - 0.001, -math.Pi / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.HeadingBetween(originLat, originLon, tt.toLat, tt.toLon)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestHeadingFromDeltas_Degenerate(t *testing.T) {
	// Sub-epsilon displacement has no reliable heading; 0 is the sentinel.
	assert.Equal(t, 0.0, HeadingFromDeltas(0, 0))
	assert.Equal(t, 0.0, HeadingFromDeltas(1e-9, -1e-9))

	// Anything above the epsilon resolves normally.
	assert.InDelta(t, math.Pi/2, HeadingFromDeltas(0, 0.001), 1e-9)
}

func TestSetOrigin_ReplacesFrame(t *testing.T) {
	f := newTestFrame()
	before := f.ToLocal(originLat+0.001, originLon, originHeight)

	f.SetOrigin(originLat+0.001, originLon, originHeight)
	after := f.ToLocal(originLat+0.001, originLon, originHeight)

	assert.InDelta(t, 0, after.Z, 1e-9, "new origin projects to zero")
	assert.NotEqual(t, before.Z, after.Z)

	o := f.Origin()
	assert.Equal(t, originLat+0.001, o.Lat)
}

func TestToLocal_OutOfRangeInputPanicsOnNaN(t *testing.T) {
	f := newTestFrame()
	require.Panics(t, func() {
		f.ToLocal(math.NaN(), originLon, 0)
	})
}
