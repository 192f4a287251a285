// Package agent implements per-agent movement state: smoothed orientation,
// stacking status effects and path following.
package agent

import (
	"math"

	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/pkg/core"
)

const (
	// defaultSmoothing is the per-tick fraction of the remaining angular
	// difference applied to the rotation.
	defaultSmoothing = 0.15

	// snapEpsilon is the remaining angular difference (radians) below which
	// the rotation snaps exactly onto its target.
	snapEpsilon = 1e-3
)

// Transform is an agent's renderable pose: geographic position, sampled
// terrain height and a rotation that converges toward a target heading along
// the shorter angular path.
//
// The target is only ever written through Face/LookAt; movement interpolation
// must not touch it directly. Smooth runs every tick whether or not the agent
// moved, so an agent keeps turning into place while paused or after reaching
// its goal.
type Transform struct {
	Position      core.GeoPosition
	TerrainHeight float64

	rotation       float64
	targetRotation float64
	smoothing      float64
}

// NewTransform creates a transform with the given smoothing factor per tick;
// zero or negative picks the default.
func NewTransform(smoothing float64) *Transform {
	if smoothing <= 0 {
		smoothing = defaultSmoothing
	}
	return &Transform{smoothing: smoothing}
}

// Rotation returns the current smoothed rotation in radians.
func (t *Transform) Rotation() float64 {
	return t.rotation
}

// TargetRotation returns the heading the rotation is converging toward.
func (t *Transform) TargetRotation() float64 {
	return t.targetRotation
}

// Face sets a new target heading. The rotation itself is untouched; Smooth
// carries it over.
func (t *Transform) Face(heading float64) {
	t.targetRotation = wrapAngle(heading)
}

// LookAt targets the heading from the current position toward target.
func (t *Transform) LookAt(frame *geo.Frame, target core.GeoPosition) {
	t.Face(frame.HeadingBetween(t.Position.Lat, t.Position.Lon, target.Lat, target.Lon))
}

// Smooth advances the rotation toward the target along the shortest signed
// angular path, snapping once the remainder is negligible.
func (t *Transform) Smooth() {
	diff := wrapAngle(t.targetRotation - t.rotation)
	if math.Abs(diff) < snapEpsilon {
		t.rotation = t.targetRotation
		return
	}
	t.rotation = wrapAngle(t.rotation + diff*t.smoothing)
}

// wrapAngle normalizes an angle to (-π, π].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
