// Package session owns the per-location simulation state: the local coordinate
// frame, the terrain height cache and the agent registry. One Session spans
// "the player is at this real-world location"; moving somewhere else is a
// Reset, not a new process.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/terratd/simcore/internal/agent"
	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/internal/terrain"
	"github.com/terratd/simcore/pkg/core"
)

// Agent bundles one live unit: its recordable identity plus the transform and
// mover driving it. Owned exclusively by the session registry.
type Agent struct {
	Info      core.Agent
	Transform *agent.Transform
	Mover     *agent.Mover
}

// AgentSpec describes a unit to spawn.
type AgentSpec struct {
	ClassName       string
	BaseSpeed       float64 // meters per second
	Airborne        bool
	Path            core.Path
	SpeedMultiplier float64 // 0 means 1
	LateralOffset   float64 // meters right of the path
	HeightVariation float64 // meters, airborne bobbing headroom
	Smoothing       float64 // 0 means the default rotation smoothing
}

const defaultSmoothing = 0.15

// Session is the process-wide simulation state for the current location.
// Access is mutex-guarded: spawn timers and the stability refresh cycle run
// off the frame loop.
type Session struct {
	mu         sync.Mutex
	info       core.SessionInfo
	frame      *geo.Frame
	sampler    *terrain.Sampler
	agents     map[uint16]*Agent
	nextID     uint16
	generation uint64

	logger *slog.Logger
}

// New creates a session over an already-constructed frame and sampler.
func New(info core.SessionInfo, frame *geo.Frame, sampler *terrain.Sampler, logger *slog.Logger) *Session {
	return &Session{
		info:    info,
		frame:   frame,
		sampler: sampler,
		agents:  make(map[uint16]*Agent),
		logger:  logger,
	}
}

// Info returns the session identity.
func (s *Session) Info() core.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Frame returns the session's coordinate frame.
func (s *Session) Frame() *geo.Frame { return s.frame }

// Sampler returns the session's terrain height sampler.
func (s *Session) Sampler() *terrain.Sampler { return s.sampler }

// Generation returns the current session generation. Deferred work captures
// the value at scheduling time and re-checks it before acting; a mismatch
// means the session was reset underneath it.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetOrigin moves the session to a new reference origin. Every cached terrain
// height references the old frame, so the cache is cleared here rather than
// trusting each caller to remember.
func (s *Session) SetOrigin(lat, lon, height float64) {
	s.frame.SetOrigin(lat, lon, height)
	s.sampler.ClearCache()
	s.mu.Lock()
	s.info.Origin = core.NewGeoPosition3D(lat, lon, height)
	s.mu.Unlock()
	s.logger.Info("session origin set", "lat", lat, "lon", lon, "height", height)
}

// Reset tears the session down for a location change: bumps the generation so
// every scheduled continuation goes stale, kills and drops all agents, and
// clears the height cache. The frame keeps its origin until SetOrigin.
func (s *Session) Reset() {
	s.mu.Lock()
	s.generation++
	n := len(s.agents)
	for _, a := range s.agents {
		a.Mover.Kill()
	}
	s.agents = make(map[uint16]*Agent)
	s.nextID = 0
	gen := s.generation
	s.mu.Unlock()

	s.sampler.ClearCache()
	s.logger.Info("session reset", "generation", gen, "agentsDropped", n)
}

// Spawn creates an agent from the spec, registers it and returns it. The
// agent starts paused; the spawner resumes a whole wave together.
func (s *Session) Spawn(spec AgentSpec, tick uint) *Agent {
	smoothing := spec.Smoothing
	if smoothing == 0 {
		smoothing = defaultSmoothing
	}
	tr := agent.NewTransform(smoothing)
	mv := agent.NewMover(s.frame, tr, spec.BaseSpeed)
	if spec.SpeedMultiplier != 0 {
		mv.SetSpeedMultiplier(spec.SpeedMultiplier)
	}
	mv.SetLateralOffset(spec.LateralOffset)
	if spec.Airborne {
		mv.SetHeightVariation(spec.HeightVariation)
	}
	mv.SetPath(spec.Path)
	mv.Pause()

	s.mu.Lock()
	s.nextID++
	a := &Agent{
		Info: core.Agent{
			ID:        s.nextID,
			ClassName: spec.ClassName,
			BaseSpeed: spec.BaseSpeed,
			Airborne:  spec.Airborne,
			SpawnedAt: time.Now(),
			SpawnTick: tick,
		},
		Transform: tr,
		Mover:     mv,
	}
	s.agents[a.Info.ID] = a
	s.mu.Unlock()

	s.logger.Debug("agent spawned",
		"id", a.Info.ID, "class", spec.ClassName, "speed", spec.BaseSpeed)
	return a
}

// Get returns the agent with the given id.
func (s *Session) Get(id uint16) (*Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	return a, ok
}

// Remove kills and unregisters an agent (leaked off the end of the path, or
// destroyed by a tower).
func (s *Session) Remove(id uint16) {
	s.mu.Lock()
	a, ok := s.agents[id]
	if ok {
		delete(s.agents, id)
	}
	s.mu.Unlock()
	if ok {
		a.Mover.Kill()
	}
}

// Count returns the number of registered agents.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

// ForEach calls fn for every registered agent in unspecified order. The
// callback runs outside the registry lock so it may call back into the
// session.
func (s *Session) ForEach(fn func(*Agent)) {
	s.mu.Lock()
	snapshot := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		snapshot = append(snapshot, a)
	}
	s.mu.Unlock()
	for _, a := range snapshot {
		fn(a)
	}
}
