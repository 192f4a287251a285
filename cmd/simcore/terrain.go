package main

import "math"

// proceduralTerrain stands in for the renderer's terrain mesh: rolling hills
// from layered sinusoids around the configured base height. Points beyond the
// streaming radius report "not loaded yet", exercising the sampler's
// miss-is-transient path the same way real streamed terrain does.
type proceduralTerrain struct {
	baseHeight float64
	radius     float64
}

func newProceduralTerrain(baseHeight float64) *proceduralTerrain {
	return &proceduralTerrain{baseHeight: baseHeight, radius: 5000}
}

func (t *proceduralTerrain) CastDownward(x, z float64) (float64, bool) {
	if math.Hypot(x, z) > t.radius {
		return 0, false
	}
	h := t.baseHeight +
		6*math.Sin(x/180) +
		4*math.Cos(z/140) +
		1.5*math.Sin((x+z)/55)
	return h, true
}
