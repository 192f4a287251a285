package terrain

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terratd/simcore/internal/geo"
)

const (
	originLat = 48.1374
	originLon = 11.5755
)

// fakeCaster is a scriptable RayCaster that counts intersection calls.
type fakeCaster struct {
	height float64
	miss   bool
	calls  int
}

func (c *fakeCaster) CastDownward(x, z float64) (float64, bool) {
	c.calls++
	if c.miss {
		return 0, false
	}
	return c.height, true
}

func newTestSampler(t *testing.T, caster RayCaster) *Sampler {
	t.Helper()
	frame := geo.NewFrame(originLat, originLon, 520)
	s, err := NewSampler(frame, caster, slog.Default())
	require.NoError(t, err)
	return s
}

func TestSample_CacheDeterminism(t *testing.T) {
	caster := &fakeCaster{height: 513.25}
	s := newTestSampler(t, caster)

	h1, ok := s.Sample(originLat+0.0002, originLon)
	require.True(t, ok)
	assert.Equal(t, 513.25, h1)
	assert.Equal(t, 1, caster.calls)

	// Second query for the same spot must be a pure cache hit.
	h2, ok := s.Sample(originLat+0.0002, originLon)
	require.True(t, ok)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, caster.calls, "cache hit must not cast another ray")
}

func TestSample_RoundedKeySharing(t *testing.T) {
	caster := &fakeCaster{height: 500}
	s := newTestSampler(t, caster)

	// Two queries inside the same ~1m rounding cell share one cache entry.
	_, ok := s.Sample(48.137400, 11.575500)
	require.True(t, ok)
	_, ok = s.Sample(48.1374004, 11.5755004)
	require.True(t, ok)
	assert.Equal(t, 1, caster.calls)
	assert.Equal(t, 1, s.CacheSize())
}

func TestSample_MissIsNeverCached(t *testing.T) {
	caster := &fakeCaster{miss: true}
	s := newTestSampler(t, caster)

	_, ok := s.Sample(originLat, originLon)
	assert.False(t, ok)
	assert.Equal(t, 0, s.CacheSize())

	// Terrain streams in; the very next query must re-cast, not replay a miss.
	caster.miss = false
	caster.height = 497.5
	h, ok := s.Sample(originLat, originLon)
	require.True(t, ok)
	assert.Equal(t, 497.5, h)
	assert.Equal(t, 2, caster.calls)
}

func TestClearCache(t *testing.T) {
	caster := &fakeCaster{height: 500}
	s := newTestSampler(t, caster)

	_, _ = s.Sample(originLat, originLon)
	require.Equal(t, 1, s.CacheSize())

	s.ClearCache()
	assert.Equal(t, 0, s.CacheSize())

	_, _ = s.Sample(originLat, originLon)
	assert.Equal(t, 2, caster.calls, "cleared cache must re-cast")
}

func testRefreshConfig() RefreshConfig {
	cfg := DefaultRefreshConfig()
	cfg.Interval = time.Millisecond
	return cfg
}

func TestStabilityCycle_ConvergesAfterMinAttempts(t *testing.T) {
	caster := &fakeCaster{height: 512}
	s := newTestSampler(t, caster)

	res := s.RunStabilityCycle(context.Background(), testRefreshConfig())

	assert.True(t, res.Sampled)
	assert.True(t, res.Converged)
	assert.Equal(t, 512.0, res.Height)
	// Stable terrain still runs the minimum cadence before it is trusted.
	assert.GreaterOrEqual(t, res.Attempts, testRefreshConfig().MinAttempts)
	assert.False(t, res.Invalidated, "first cycle has nothing to invalidate against")
}

// settlingCaster returns a drifting height that settles after a few casts.
type settlingCaster struct {
	calls int
}

func (c *settlingCaster) CastDownward(x, z float64) (float64, bool) {
	c.calls++
	if c.calls < 8 {
		return 500 + 10*float64(8-c.calls), true
	}
	return 500, true
}

func TestStabilityCycle_WaitsForSettling(t *testing.T) {
	caster := &settlingCaster{}
	s := newTestSampler(t, caster)

	res := s.RunStabilityCycle(context.Background(), testRefreshConfig())

	assert.True(t, res.Converged)
	assert.Equal(t, 500.0, res.Height)
	assert.GreaterOrEqual(t, res.Attempts, 8)
}

// jitterCaster never produces two consecutive samples within the stability
// threshold.
type jitterCaster struct {
	calls int
}

func (c *jitterCaster) CastDownward(x, z float64) (float64, bool) {
	c.calls++
	if c.calls%2 == 0 {
		return 510, true
	}
	return 500, true
}

func TestStabilityCycle_AttemptCeilingIsSoftSuccess(t *testing.T) {
	s := newTestSampler(t, &jitterCaster{})
	cfg := testRefreshConfig()

	res := s.RunStabilityCycle(context.Background(), cfg)

	assert.Equal(t, cfg.MaxAttempts, res.Attempts)
	assert.False(t, res.Converged)
	assert.True(t, res.Sampled, "ceiling without convergence still trusts the last sample")
}

func TestStabilityCycle_InvalidatesOnLargeDelta(t *testing.T) {
	caster := &fakeCaster{height: 500}
	s := newTestSampler(t, caster)

	notified := 0
	s.OnInvalidate(func() { notified++ })

	res := s.RunStabilityCycle(context.Background(), testRefreshConfig())
	require.True(t, res.Sampled)
	require.False(t, res.Invalidated)

	// Populate the cache, then move terrain by more than the threshold:
	// a real LOD change.
	_, _ = s.Sample(originLat+0.001, originLon)
	require.Equal(t, 1, s.CacheSize())

	caster.height = 507
	res = s.RunStabilityCycle(context.Background(), testRefreshConfig())
	assert.True(t, res.Invalidated)
	assert.Equal(t, 0, s.CacheSize(), "LOD change wipes the cache")
	assert.Equal(t, 1, notified)
}

func TestStabilityCycle_IgnoresSubThresholdDelta(t *testing.T) {
	caster := &fakeCaster{height: 500}
	s := newTestSampler(t, caster)

	notified := 0
	s.OnInvalidate(func() { notified++ })

	_ = s.RunStabilityCycle(context.Background(), testRefreshConfig())
	_, _ = s.Sample(originLat+0.001, originLon)

	// Sub-meter mesh noise must not thrash the cache.
	caster.height = 500.8
	res := s.RunStabilityCycle(context.Background(), testRefreshConfig())
	assert.False(t, res.Invalidated)
	assert.Equal(t, 1, s.CacheSize())
	assert.Equal(t, 0, notified)
}

func TestStabilityCycle_Canceled(t *testing.T) {
	caster := &fakeCaster{height: 500}
	s := newTestSampler(t, caster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.RunStabilityCycle(ctx, testRefreshConfig())
	assert.Equal(t, 0, res.Attempts)
	assert.False(t, res.Sampled)
}
