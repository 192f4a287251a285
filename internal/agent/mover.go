package agent

import (
	"math"
	"time"

	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/pkg/core"
)

// MoveResult is the outcome of one Advance call.
type MoveResult int

const (
	// Moving means the agent is still en route (or idle: paused, dead, or
	// holding a degenerate path).
	Moving MoveResult = iota
	// ReachedEnd means the agent sits exactly on the final waypoint.
	ReachedEnd
)

const (
	// maxTickMs caps a single tick at one full logic tick so a stalled frame
	// (process suspended, GC pause) cannot teleport agents.
	maxTickMs = 1000.0

	// displacementEpsilon is the per-tick movement (meters) below which the
	// heading update is skipped to avoid jitter from degenerate vectors.
	displacementEpsilon = 1e-6

	// progressEpsilon absorbs float accumulation so a traversal that should
	// land exactly on a waypoint does not stall one ulp short of it.
	progressEpsilon = 1e-9
)

// Mover advances one agent along its assigned path using real-world segment
// distances and drives the transform's heading from actual displacement.
type Mover struct {
	frame     *geo.Frame
	transform *Transform

	path           core.Path
	segmentLengths []float64
	segment        int
	progress       float64

	baseSpeed       float64 // meters per second
	speedMultiplier float64
	effects         EffectSet

	lateralOffset   float64 // meters, positive = right of travel
	heightVariation float64 // meters, for airborne units

	paused   bool
	dead     bool
	finished bool

	moved   bool // first successful movement has happened
	prevPos core.GeoPosition

	now func() time.Time
}

// NewMover creates a mover for the given transform. baseSpeed is in meters
// per second.
func NewMover(frame *geo.Frame, transform *Transform, baseSpeed float64) *Mover {
	return &Mover{
		frame:           frame,
		transform:       transform,
		baseSpeed:       baseSpeed,
		speedMultiplier: 1,
		now:             time.Now,
	}
}

// SetClock replaces the time source. Tests use it; production keeps time.Now.
func (m *Mover) SetClock(now func() time.Time) {
	m.now = now
}

// SetPath assigns a new path and precomputes every segment's great-circle
// length exactly once. Re-deriving lengths per tick is what this buys out of
// the hot loop. A path with fewer than two points parks the agent.
func (m *Mover) SetPath(path core.Path) {
	if m.dead {
		return
	}
	m.path = path
	m.segment = 0
	m.progress = 0
	m.finished = false
	m.moved = false

	if len(path) < 2 {
		m.segmentLengths = nil
		return
	}
	m.segmentLengths = make([]float64, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		m.segmentLengths[i] = geo.Distance(
			path[i].Lat, path[i].Lon,
			path[i+1].Lat, path[i+1].Lon,
		)
	}
	m.transform.Position = path[0]
	m.prevPos = path[0]
}

// Advance moves the agent by one tick of deltaTimeMs milliseconds and
// returns whether it reached the end of its path. Safe to call on a dead
// agent (torn-down wave): pure no-op.
func (m *Mover) Advance(deltaTimeMs float64) MoveResult {
	if m.dead || m.paused || len(m.path) < 2 {
		return Moving
	}
	if m.finished {
		return ReachedEnd
	}
	if deltaTimeMs > maxTickMs {
		deltaTimeMs = maxTickMs
	}

	speed := m.EffectiveSpeed(m.now())
	meters := speed * deltaTimeMs / 1000.0

	segLen := m.segmentLengths[m.segment]
	if segLen > 0 {
		m.progress += meters / segLen
	} else {
		m.progress = 1
	}

	for m.progress >= 1-progressEpsilon {
		m.progress -= 1
		m.segment++
		if m.segment >= len(m.path)-1 {
			// Exactly the final point; no interpolation past it.
			final := m.path[len(m.path)-1]
			m.transform.Position = final
			m.prevPos = final
			m.finished = true
			return ReachedEnd
		}
		if next := m.segmentLengths[m.segment]; next <= 0 {
			m.progress = 1
		}
	}

	a := m.path[m.segment]
	b := m.path[m.segment+1]

	pos := core.GeoPosition{
		Lat: a.Lat + (b.Lat-a.Lat)*m.progress,
		Lon: a.Lon + (b.Lon-a.Lon)*m.progress,
	}

	if m.lateralOffset != 0 {
		pos = m.offsetLaterally(pos, a, b)
	}

	if a.HasHeight && b.HasHeight {
		pos.Height = a.Height + (b.Height-a.Height)*m.progress + m.heightVariation
		pos.HasHeight = true
	}

	m.updateHeading(pos, b)

	m.prevPos = pos
	m.transform.Position = pos
	return Moving
}

// offsetLaterally shifts the interpolated position perpendicular to the
// segment. Purely visual path-width variety; the logical path is untouched.
func (m *Mover) offsetLaterally(pos, a, b core.GeoPosition) core.GeoPosition {
	cosLat := math.Cos(pos.Lat * math.Pi / 180.0)
	dirN := (b.Lat - a.Lat) * geo.MetersPerDegree
	dirE := (b.Lon - a.Lon) * geo.MetersPerDegree * cosLat
	length := math.Hypot(dirN, dirE)
	if length < displacementEpsilon {
		return pos
	}

	// 90° clockwise: right of the direction of travel.
	perpN := -dirE / length
	perpE := dirN / length

	pos.Lat += perpN * m.lateralOffset / geo.MetersPerDegree
	pos.Lon += perpE * m.lateralOffset / (geo.MetersPerDegree * cosLat)
	return pos
}

// updateHeading derives the facing for this tick. The first successful
// movement looks straight at the segment's end (there is no prior frame to
// compare against); every later tick uses the actual displacement since the
// previous tick, so the facing cannot snap at a segment boundary the way
// look-at-next-waypoint logic does.
func (m *Mover) updateHeading(pos, waypoint core.GeoPosition) {
	if !m.moved {
		m.transform.LookAt(m.frame, waypoint)
		m.moved = true
		return
	}

	cosLat := math.Cos(m.prevPos.Lat * math.Pi / 180.0)
	dispN := (pos.Lat - m.prevPos.Lat) * geo.MetersPerDegree
	dispE := (pos.Lon - m.prevPos.Lon) * geo.MetersPerDegree * cosLat
	if math.Hypot(dispN, dispE) < displacementEpsilon {
		// Nearly stationary: no reliable direction, keep the old target.
		return
	}
	m.transform.Face(geo.HeadingFromDeltas(dispN, dispE))
}

// ApplyEffect adds a status effect, refreshing any existing effect with the
// same kind and source.
func (m *Mover) ApplyEffect(e core.Effect) {
	if m.dead {
		return
	}
	m.effects.Apply(e)
}

// PruneExpired drops elapsed effects; call once per tick before Advance.
func (m *Mover) PruneExpired(now time.Time) {
	m.effects.PruneExpired(now)
}

// EffectiveSpeed returns the speed the agent is actually moving at in m/s:
// zero while idle, otherwise the base speed scaled by the wave multiplier and
// the active status effects.
func (m *Mover) EffectiveSpeed(now time.Time) float64 {
	if m.dead || m.paused || m.finished {
		return 0
	}
	return m.baseSpeed * m.speedMultiplier * m.effects.SpeedFactor(now)
}

// SpeedFactor exposes the combined status-effect multiplier at now.
func (m *Mover) SpeedFactor(now time.Time) float64 {
	return m.effects.SpeedFactor(now)
}

// ActiveEffects snapshots the currently running effects for recording.
func (m *Mover) ActiveEffects(now time.Time) []core.Effect {
	return m.effects.Active(now)
}

// Pause stops advancement; orientation smoothing elsewhere keeps running.
func (m *Mover) Pause() { m.paused = true }

// Resume restarts advancement.
func (m *Mover) Resume() { m.paused = false }

// Paused reports whether the mover is paused.
func (m *Mover) Paused() bool { return m.paused }

// Kill marks the agent dead. Every subsequent call is a no-op; a pending
// continuation from a torn-down wave may still hold a reference.
func (m *Mover) Kill() { m.dead = true }

// Dead reports whether the agent has been torn down.
func (m *Mover) Dead() bool { return m.dead }

// Finished reports whether the end of the path was reached.
func (m *Mover) Finished() bool { return m.finished }

// SetSpeedMultiplier scales the base speed (wave difficulty, unit tier).
func (m *Mover) SetSpeedMultiplier(f float64) { m.speedMultiplier = f }

// SetLateralOffset sets the perpendicular visual offset in meters.
func (m *Mover) SetLateralOffset(meters float64) { m.lateralOffset = meters }

// SetHeightVariation sets the vertical visual offset in meters.
func (m *Mover) SetHeightVariation(meters float64) { m.heightVariation = meters }

// BaseSpeed returns the configured base speed in m/s.
func (m *Mover) BaseSpeed() float64 { return m.baseSpeed }

// Segment returns the index of the segment currently being traversed.
func (m *Mover) Segment() int { return m.segment }
