// Package worker drives the per-tick simulation loop: it advances every live
// agent, samples the terrain under it, records the resulting states and
// handles the control commands coming in through the dispatcher.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terratd/simcore/internal/agent"
	"github.com/terratd/simcore/internal/influx"
	"github.com/terratd/simcore/internal/logging"
	"github.com/terratd/simcore/internal/session"
	"github.com/terratd/simcore/internal/storage"
	"github.com/terratd/simcore/internal/terrain"
	"github.com/terratd/simcore/pkg/core"
)

// ErrUnknownAgent is returned when a command targets an agent id that is not
// registered (already leaked, destroyed, or never spawned).
var ErrUnknownAgent = fmt.Errorf("unknown agent")

// Dependencies holds all dependencies for the worker manager.
type Dependencies struct {
	Session    *session.Session
	Spawner    *session.Spawner
	LogManager *logging.SlogManager
	Influx     *influx.Manager // optional, only used when valid
}

// Manager runs the simulation tick and owns the logic tick counter.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	tick atomic.Uint64

	// clock is replaceable for tests; production keeps time.Now.
	clock func() time.Time

	// refresh tracks the terrain stability cycle launched on terrain-loaded
	// signals; a new signal or a session reset cancels the in-flight cycle.
	refreshMu     sync.Mutex
	refreshCancel context.CancelFunc
	refreshCfg    terrain.RefreshConfig
}

// NewManager creates a new worker manager over the given backend. Agents the
// spawner creates are registered with the backend through the spawn hook.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	m := &Manager{
		deps:       deps,
		backend:    backend,
		clock:      time.Now,
		refreshCfg: terrain.DefaultRefreshConfig(),
	}
	if deps.Spawner != nil {
		deps.Spawner.OnSpawn(m.registerSpawned)
	}
	return m
}

// SetRefreshConfig replaces the stability cycle cadence. Tests shorten it.
func (m *Manager) SetRefreshConfig(cfg terrain.RefreshConfig) {
	m.refreshMu.Lock()
	m.refreshCfg = cfg
	m.refreshMu.Unlock()
}

// registerSpawned reports a freshly spawned agent to the storage backend.
// Without it the backend drops every state recorded for the agent.
func (m *Manager) registerSpawned(a *session.Agent) {
	if err := m.backend.AddAgent(&a.Info); err != nil {
		m.deps.LogManager.Logger().Error("failed to register spawned agent",
			"agent", a.Info.ID, "error", err)
	}
}

// newRefreshContext cancels any in-flight stability cycle and returns the
// context for the next one.
func (m *Manager) newRefreshContext() (context.Context, terrain.RefreshConfig) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	if m.refreshCancel != nil {
		m.refreshCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.refreshCancel = cancel
	return ctx, m.refreshCfg
}

// cancelRefresh stops the in-flight stability cycle, if any.
func (m *Manager) cancelRefresh() {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
}

// SetClock replaces the time source. Tests use it; production keeps time.Now.
func (m *Manager) SetClock(now func() time.Time) {
	m.clock = now
}

// CurrentTick returns the logic tick the simulation has advanced to.
func (m *Manager) CurrentTick() uint {
	return uint(m.tick.Load())
}

// Tick advances the simulation by deltaTimeMs milliseconds: every live agent
// prunes expired effects, moves along its path, smooths its facing and gets
// its terrain height refreshed, then its state is recorded. Agents that reach
// the end of their path are recorded once with the end flag set and removed
// from the session. Returns the tick just completed.
func (m *Manager) Tick(deltaTimeMs float64) uint {
	start := m.clock()
	tick := uint(m.tick.Add(1))

	var finished []uint16
	count := 0

	m.deps.Session.ForEach(func(a *session.Agent) {
		if a.Mover.Dead() {
			return
		}
		count++

		now := m.clock()
		a.Mover.PruneExpired(now)
		result := a.Mover.Advance(deltaTimeMs)
		a.Transform.Smooth()

		pos := a.Transform.Position
		if h, ok := m.deps.Session.Sampler().Sample(pos.Lat, pos.Lon); ok {
			a.Transform.TerrainHeight = h
		}

		state := core.AgentState{
			AgentID:    a.Info.ID,
			Tick:       tick,
			Time:       now,
			Position:   pos,
			Elevation:  a.Transform.TerrainHeight,
			Heading:    a.Transform.Rotation(),
			Speed:      a.Mover.EffectiveSpeed(now),
			ReachedEnd: result == agent.ReachedEnd,
			Effects:    a.Mover.ActiveEffects(now),
		}
		if err := m.backend.RecordAgentState(&state); err != nil {
			m.deps.LogManager.Logger().Error("failed to record agent state",
				"agent", a.Info.ID, "tick", tick, "error", err)
		}

		if state.ReachedEnd {
			finished = append(finished, a.Info.ID)
		}
	})

	// Finished agents leaked off the end; later ticks must not keep
	// re-recording them sitting on the final waypoint.
	for _, id := range finished {
		m.deps.Session.Remove(id)
	}

	perf := core.TickPerformance{
		Time:                start,
		Tick:                tick,
		AgentCount:          count,
		StateQueueLen:       m.stateQueueLen(),
		TickDurationMs:      float32(float64(m.clock().Sub(start)) / float64(time.Millisecond)),
		LastWriteDurationMs: float32(float64(m.GetLastDBWriteDuration()) / float64(time.Millisecond)),
	}
	if err := m.backend.RecordTickPerformance(&perf); err != nil {
		m.deps.LogManager.Logger().Error("failed to record tick performance",
			"tick", tick, "error", err)
	}

	return tick
}

// StateQueueLenProvider is an optional interface backends implement to expose
// how many recorded states are waiting to be flushed.
type StateQueueLenProvider interface {
	StateQueueLen() int
}

func (m *Manager) stateQueueLen() int {
	if p, ok := m.backend.(StateQueueLenProvider); ok {
		return p.StateQueueLen()
	}
	return 0
}

// GetLastDBWriteDuration returns the duration of the last backend write cycle,
// or 0 if the backend does not track it.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.backend.(storage.WriteDurationProvider); ok {
		return p.GetLastWriteDuration()
	}
	return 0
}
