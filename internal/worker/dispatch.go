package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/terratd/simcore/internal/dispatcher"
	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/internal/influx"
	"github.com/terratd/simcore/internal/session"
	"github.com/terratd/simcore/internal/util"
	"github.com/terratd/simcore/pkg/core"
)

// RegisterHandlers registers all simulation control handlers with the
// dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Tick advance - sync, ordering matters and it is the hot path
	d.Register(":TICK:", m.handleTick)

	// Session lifecycle - sync so nothing races a reset
	d.Register(":ORIGIN:SET:", m.handleOriginSet, dispatcher.Logged())
	d.Register(":SESSION:RESET:", m.handleSessionReset, dispatcher.Logged())

	// Spawning - buffered, waves arrive in bursts between rounds
	d.Register(":SPAWN:AGENT:", m.handleSpawnAgent, dispatcher.Buffered(256), dispatcher.Logged())
	d.Register(":SPAWN:WAVE:", m.handleSpawnWave, dispatcher.Buffered(64), dispatcher.Logged())

	// Tower interactions - buffered, high volume during combat
	d.Register(":EFFECT:APPLY:", m.handleEffectApply, dispatcher.Buffered(2000), dispatcher.Logged())
	d.Register(":AGENT:REMOVE:", m.handleAgentRemove, dispatcher.Buffered(500), dispatcher.Logged())

	// Terrain streaming - buffered, must not stall the frame loop
	d.Register(":TERRAIN:LOADED:", m.handleTerrainLoaded, dispatcher.Buffered(16), dispatcher.Logged())

	// External metrics - buffered
	d.Register(":METRIC:", m.handleMetric, dispatcher.Buffered(1000), dispatcher.Logged())
}

// handleTick advances the simulation. args: [deltaTimeMs]
func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("tick requires deltaTimeMs argument")
	}
	dt, err := strconv.ParseFloat(util.TrimQuotes(e.Args[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tick delta: %w", err)
	}
	return m.Tick(dt), nil
}

// handleOriginSet re-anchors the session frame. args: [lat, lon, height]
func (m *Manager) handleOriginSet(e dispatcher.Event) (any, error) {
	if len(e.Args) < 3 {
		return nil, fmt.Errorf("origin set requires lat, lon, height arguments")
	}
	vals := make([]float64, 3)
	for i := range vals {
		v, err := strconv.ParseFloat(util.TrimQuotes(e.Args[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse origin component %d: %w", i, err)
		}
		vals[i] = v
	}
	m.deps.Session.SetOrigin(vals[0], vals[1], vals[2])
	return nil, nil
}

// handleSessionReset tears down the current location: all agents are dropped,
// scheduled wave continuations go stale, any running terrain stability cycle
// is canceled and the tick counter restarts.
func (m *Manager) handleSessionReset(e dispatcher.Event) (any, error) {
	m.cancelRefresh()
	m.deps.Session.Reset()
	m.tick.Store(0)
	return nil, nil
}

// agentSpecJSON is the wire form of one spawn request.
type agentSpecJSON struct {
	ClassName       string          `json:"class"`
	BaseSpeed       float64         `json:"speed"`
	Airborne        bool            `json:"airborne"`
	Path            json.RawMessage `json:"path"`
	SpeedMultiplier float64         `json:"multiplier"`
	LateralOffset   float64         `json:"offset"`
	HeightVariation float64         `json:"bob"`
	Smoothing       float64         `json:"smoothing"`
}

func parseAgentSpec(raw string) (session.AgentSpec, error) {
	var w agentSpecJSON
	if err := json.Unmarshal([]byte(util.FixEscapeQuotes(raw)), &w); err != nil {
		return session.AgentSpec{}, fmt.Errorf("failed to parse agent spec: %w", err)
	}
	if w.ClassName == "" {
		return session.AgentSpec{}, fmt.Errorf("agent spec missing class name")
	}
	if w.BaseSpeed <= 0 {
		return session.AgentSpec{}, fmt.Errorf("agent spec speed must be positive, got %v", w.BaseSpeed)
	}
	path, err := geo.ParsePath(string(w.Path))
	if err != nil {
		return session.AgentSpec{}, err
	}
	return session.AgentSpec{
		ClassName:       w.ClassName,
		BaseSpeed:       w.BaseSpeed,
		Airborne:        w.Airborne,
		Path:            path,
		SpeedMultiplier: w.SpeedMultiplier,
		LateralOffset:   w.LateralOffset,
		HeightVariation: w.HeightVariation,
		Smoothing:       w.Smoothing,
	}, nil
}

// handleSpawnAgent spawns one agent immediately, outside any wave.
// args: [specJSON]
func (m *Manager) handleSpawnAgent(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("spawn agent requires a spec argument")
	}
	spec, err := parseAgentSpec(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to spawn agent: %w", err)
	}

	a := m.deps.Session.Spawn(spec, m.CurrentTick())
	// Lone spawns start moving right away; only waves hold for a release.
	a.Mover.Resume()
	m.registerSpawned(a)
	return a.Info.ID, nil
}

// handleSpawnWave schedules a staggered wave. args: [waveName, staggerMs,
// spec..., one JSON spec per agent]
func (m *Manager) handleSpawnWave(e dispatcher.Event) (any, error) {
	if len(e.Args) < 3 {
		return nil, fmt.Errorf("spawn wave requires name, stagger and at least one spec")
	}
	name := util.TrimQuotes(e.Args[0])
	staggerMs, err := strconv.ParseFloat(util.TrimQuotes(e.Args[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wave stagger: %w", err)
	}

	specs := make([]session.AgentSpec, 0, len(e.Args)-2)
	for i, raw := range e.Args[2:] {
		spec, err := parseAgentSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("wave %q agent %d: %w", name, i, err)
		}
		specs = append(specs, spec)
	}

	m.deps.Spawner.SpawnWave(session.WaveSpec{
		Name:    name,
		Agents:  specs,
		Stagger: time.Duration(staggerMs * float64(time.Millisecond)),
		Tick:    m.CurrentTick(),
	})
	return nil, nil
}

// handleEffectApply applies a status effect to one agent.
// args: [agentID, kind, value, durationMs, source]
func (m *Manager) handleEffectApply(e dispatcher.Event) (any, error) {
	if len(e.Args) < 4 {
		return nil, fmt.Errorf("effect apply requires agentID, kind, value, durationMs")
	}
	id, err := strconv.ParseUint(util.TrimQuotes(e.Args[0]), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent id: %w", err)
	}
	kind, err := core.ParseEffectKind(util.TrimQuotes(e.Args[1]))
	if err != nil {
		return nil, err
	}
	value, err := strconv.ParseFloat(util.TrimQuotes(e.Args[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse effect value: %w", err)
	}
	durationMs, err := strconv.ParseFloat(util.TrimQuotes(e.Args[3]), 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse effect duration: %w", err)
	}
	source := ""
	if len(e.Args) > 4 {
		source = util.TrimQuotes(e.Args[4])
	}

	a, ok := m.deps.Session.Get(uint16(id))
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	a.Mover.ApplyEffect(core.Effect{
		Kind:      kind,
		Value:     value,
		Duration:  time.Duration(durationMs * float64(time.Millisecond)),
		AppliedAt: m.clock(),
		Source:    source,
	})
	return nil, nil
}

// handleAgentRemove drops an agent (destroyed by a tower). args: [agentID]
func (m *Manager) handleAgentRemove(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("agent remove requires an agentID argument")
	}
	id, err := strconv.ParseUint(util.TrimQuotes(e.Args[0]), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent id: %w", err)
	}
	if _, ok := m.deps.Session.Get(uint16(id)); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	m.deps.Session.Remove(uint16(id))
	return nil, nil
}

// handleTerrainLoaded invalidates the height cache after new terrain streamed
// in (previously cached heights may belong to a coarser LOD) and starts the
// stability cycle that resamples the origin until the new mesh settles. An
// older in-flight cycle is observing a mesh that no longer exists, so it is
// canceled first.
func (m *Manager) handleTerrainLoaded(e dispatcher.Event) (any, error) {
	sampler := m.deps.Session.Sampler()
	cached := sampler.CacheSize()
	sampler.ClearCache()
	m.deps.LogManager.Logger().Debug("terrain cache invalidated", "entriesDropped", cached)

	ctx, cfg := m.newRefreshContext()
	go func() {
		res := sampler.RunStabilityCycle(ctx, cfg)
		m.deps.LogManager.Logger().Debug("terrain stability cycle finished",
			"attempts", res.Attempts, "height", res.Height,
			"converged", res.Converged, "invalidated", res.Invalidated)
	}()
	return nil, nil
}

// handleMetric forwards an externally produced metric to InfluxDB.
func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if m.deps.Influx == nil || !m.deps.Influx.IsValid {
		return nil, nil
	}

	bucket, point, err := influx.ProcessMetricData(e.Args, util.FixEscapeQuotes, util.TrimQuotes)
	if err != nil {
		return nil, fmt.Errorf("failed to process metric data: %w", err)
	}
	if err := m.deps.Influx.WritePoint(context.Background(), bucket, point); err != nil {
		return nil, fmt.Errorf("failed to write metric point: %w", err)
	}
	return nil, nil
}
