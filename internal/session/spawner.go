package session

import (
	"log/slog"
	"time"
)

// WaveSpec describes one attack wave: agents spawned on a stagger so they file
// onto the path one by one, then released together once the wave is complete.
type WaveSpec struct {
	Name    string
	Agents  []AgentSpec
	Stagger time.Duration // delay between consecutive spawns
	Tick    uint          // logic tick the wave was scheduled on
}

// Spawner schedules wave spawns against a session. Every deferred step carries
// the generation it was scheduled under and re-checks it on fire, so a session
// Reset cancels in-flight waves without tracking timers.
type Spawner struct {
	session *Session
	logger  *slog.Logger

	// onSpawn, when set, observes every agent the spawner creates, before the
	// wave release. The worker binds backend registration here so wave members
	// are recorded the same way lone spawns are.
	onSpawn func(*Agent)

	// after schedules a deferred call. Tests replace it to run synchronously.
	after func(d time.Duration, fn func()) *time.Timer
}

// NewSpawner creates a spawner bound to the session.
func NewSpawner(s *Session, logger *slog.Logger) *Spawner {
	return &Spawner{
		session: s,
		logger:  logger,
		after:   time.AfterFunc,
	}
}

// OnSpawn registers the callback invoked for every agent this spawner creates.
// Set it before scheduling waves; it is not synchronized against in-flight
// continuations.
func (sp *Spawner) OnSpawn(fn func(*Agent)) {
	sp.onSpawn = fn
}

// SpawnWave schedules the wave's agents at Stagger intervals. Agents spawn
// paused; the final step resumes the whole wave at once so a slow stagger does
// not string the wave out before it even starts.
//
// The steps are chained: each spawn schedules the next, and the last spawn
// schedules the release. The release therefore cannot overtake a spawn, even
// with a zero stagger.
func (sp *Spawner) SpawnWave(w WaveSpec) {
	gen := sp.session.Generation()
	ids := make([]uint16, 0, len(w.Agents))

	var step func(i int)
	step = func(i int) {
		if sp.session.Generation() != gen {
			return // session was reset, wave is stale
		}
		if i == len(w.Agents) {
			released := 0
			for _, id := range ids {
				if a, ok := sp.session.Get(id); ok {
					a.Mover.Resume()
					released++
				}
			}
			sp.logger.Info("wave released", "wave", w.Name, "agents", released)
			return
		}
		a := sp.session.Spawn(w.Agents[i], w.Tick)
		if sp.onSpawn != nil {
			sp.onSpawn(a)
		}
		ids = append(ids, a.Info.ID)
		sp.after(w.Stagger, func() { step(i + 1) })
	}

	sp.after(0, func() { step(0) })
}
