package terrain

import (
	"context"
	"math"
	"time"
)

// RefreshConfig bounds one stability cycle. A cycle runs once per location
// load, after the terrain-loaded signal, while streamed LOD detail settles.
type RefreshConfig struct {
	// Interval between resample attempts.
	Interval time.Duration
	// MinAttempts always run, even if early samples already agree.
	MinAttempts int
	// MaxAttempts is the hard safety bound.
	MaxAttempts int
	// StableDelta: once MinAttempts have run, the cycle stops early when two
	// consecutive origin samples agree within this (meters).
	StableDelta float64
	// InvalidateDelta: if the settled height differs from the last confirmed
	// origin height by more than this, it is a real LOD change — the cache is
	// cleared and invalidation listeners fire. Smaller deltas are sub-meter
	// mesh noise and are ignored.
	InvalidateDelta float64
}

// DefaultRefreshConfig returns the production cadence.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:        500 * time.Millisecond,
		MinAttempts:     4,
		MaxAttempts:     20,
		StableDelta:     0.05,
		InvalidateDelta: 2.0,
	}
}

// CycleResult reports how a stability cycle ended.
type CycleResult struct {
	Attempts    int
	Height      float64
	Sampled     bool // at least one attempt hit terrain
	Converged   bool // stopped because consecutive samples agreed
	Invalidated bool // height moved enough to clear the cache
}

// RunStabilityCycle resamples the origin height on a fixed cadence until the
// samples settle or the attempt ceiling is reached. Blocking; run it in a
// goroutine and cancel via ctx on session reset.
//
// Reaching MaxAttempts without convergence is a soft success: the last sample
// is trusted anyway, but the event is warn-logged and counted, since it means
// the bounded heuristic is being hit in practice.
func (s *Sampler) RunStabilityCycle(ctx context.Context, cfg RefreshConfig) CycleResult {
	origin := s.frame.Origin()

	var res CycleResult
	var prev float64
	var prevOK bool

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for res.Attempts < cfg.MaxAttempts {
		select {
		case <-ctx.Done():
			s.logger.Debug("stability cycle canceled", "attempts", res.Attempts)
			return res
		case <-ticker.C:
		}

		res.Attempts++

		// Bypass the cache: the whole point is to observe the mesh changing.
		p := s.frame.ToLocal(origin.Lat, origin.Lon, 0)
		h, ok := s.caster.CastDownward(p.X, p.Z)
		if !ok {
			prevOK = false
			continue
		}

		res.Height = h
		res.Sampled = true

		if res.Attempts >= cfg.MinAttempts && prevOK && math.Abs(h-prev) <= cfg.StableDelta {
			res.Converged = true
			break
		}
		prev, prevOK = h, true
	}

	if !res.Converged && res.Attempts >= cfg.MaxAttempts {
		s.exhausted.Add(ctx, 1)
		s.logger.Warn("stability cycle hit attempt ceiling without convergence",
			"attempts", res.Attempts, "sampled", res.Sampled)
	}

	if !res.Sampled {
		return res
	}

	s.mu.Lock()
	hadConfirmed := s.hasConfirmedHeight
	lastConfirmed := s.confirmedOriginHeight
	s.confirmedOriginHeight = res.Height
	s.hasConfirmedHeight = true
	s.mu.Unlock()

	if hadConfirmed && math.Abs(res.Height-lastConfirmed) > cfg.InvalidateDelta {
		s.logger.Info("terrain LOD change detected, clearing height cache",
			"previous", lastConfirmed, "current", res.Height)
		s.ClearCache()
		s.notifyInvalidated()
		res.Invalidated = true
	}

	return res
}
