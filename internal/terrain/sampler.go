// Package terrain answers "what is the ground height at this geographic
// point", backed by a coordinate-keyed cache over an externally supplied
// ray-vs-terrain-mesh intersection primitive.
//
// Terrain streams in over time, so a miss ("no intersection") is a transient
// condition and is never cached; only confirmed heights are. Callers that get
// no height must defer placement rather than default to zero — a zero default
// visually buries or floats agents.
package terrain

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/terratd/simcore/internal/geo"
)

// RayCaster is the rendering collaborator's terrain intersection primitive: a
// downward ray at local (x, z), returning the first hit's vertical coordinate.
// ok is false while the terrain mesh at that point is not yet streamed in, or
// when the ray misses entirely.
type RayCaster interface {
	CastDownward(x, z float64) (y float64, ok bool)
}

// cacheKey is a geographic coordinate rounded to 5 decimals (~1m resolution),
// so repeated queries for the same spot hit the cache despite float jitter.
type cacheKey struct {
	lat, lon int64
}

func keyFor(lat, lon float64) cacheKey {
	return cacheKey{
		lat: int64(math.Round(lat * 1e5)),
		lon: int64(math.Round(lon * 1e5)),
	}
}

// Sampler caches terrain heights for the current session. It is owned by the
// session and reset explicitly when the player changes location; the cache is
// mutex-guarded because the stability refresh cycle runs off the frame loop.
type Sampler struct {
	mu     sync.Mutex
	frame  *geo.Frame
	caster RayCaster
	cache  map[cacheKey]float64

	// last origin height confirmed by a completed stability cycle
	confirmedOriginHeight float64
	hasConfirmedHeight    bool

	listeners []func()

	logger *slog.Logger

	samples   metric.Int64Counter
	cacheHits metric.Int64Counter
	rayMisses metric.Int64Counter
	exhausted metric.Int64Counter
}

// NewSampler creates a sampler over the given frame and ray primitive.
func NewSampler(frame *geo.Frame, caster RayCaster, logger *slog.Logger) (*Sampler, error) {
	s := &Sampler{
		frame:  frame,
		caster: caster,
		cache:  make(map[cacheKey]float64),
		logger: logger,
	}

	m := meter()
	var err error
	if s.samples, err = m.Int64Counter("terrain.samples",
		metric.WithDescription("Total terrain height samples requested")); err != nil {
		return nil, err
	}
	if s.cacheHits, err = m.Int64Counter("terrain.cache.hits",
		metric.WithDescription("Samples answered from the height cache")); err != nil {
		return nil, err
	}
	if s.rayMisses, err = m.Int64Counter("terrain.ray.misses",
		metric.WithDescription("Downward rays that hit no terrain")); err != nil {
		return nil, err
	}
	if s.exhausted, err = m.Int64Counter("terrain.refresh.exhausted",
		metric.WithDescription("Stability cycles that hit the attempt ceiling")); err != nil {
		return nil, err
	}

	return s, nil
}

// Sample returns the ground height at the given geographic point, or false if
// the terrain there is not available yet. Never blocks; never caches a miss.
func (s *Sampler) Sample(lat, lon float64) (float64, bool) {
	ctx := context.Background()
	s.samples.Add(ctx, 1)

	key := keyFor(lat, lon)

	s.mu.Lock()
	if h, ok := s.cache[key]; ok {
		s.mu.Unlock()
		s.cacheHits.Add(ctx, 1)
		return h, true
	}
	s.mu.Unlock()

	// Local X/Z via the hot-path projection; the caster owns the vertical ray.
	p := s.frame.ToLocal(lat, lon, 0)
	y, ok := s.caster.CastDownward(p.X, p.Z)
	if !ok {
		s.rayMisses.Add(ctx, 1)
		return 0, false
	}

	s.mu.Lock()
	s.cache[key] = y
	s.mu.Unlock()
	return y, true
}

// ClearCache wipes every cached height. Required when the origin changes (old
// entries reference a dead frame) and when a stability cycle restarts for a
// new location.
func (s *Sampler) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[cacheKey]float64)
	s.mu.Unlock()
}

// CacheSize returns the number of cached heights.
func (s *Sampler) CacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// OnInvalidate registers a callback fired when a terrain LOD change is
// detected and the cache has been cleared; markers and paths resample their
// heights from it.
func (s *Sampler) OnInvalidate(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Sampler) notifyInvalidated() {
	s.mu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
