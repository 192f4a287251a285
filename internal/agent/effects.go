package agent

import (
	"time"

	"github.com/terratd/simcore/pkg/core"
)

// EffectSet holds an agent's active status effects.
//
// Applying an effect with the same (kind, source) as an existing one refreshes
// it in place; effects from different sources coexist and slows stack
// multiplicatively.
type EffectSet struct {
	effects []core.Effect
}

// Apply adds or refreshes an effect.
func (s *EffectSet) Apply(e core.Effect) {
	for i, existing := range s.effects {
		if existing.Kind == e.Kind && existing.Source == e.Source {
			s.effects[i] = e
			return
		}
	}
	s.effects = append(s.effects, e)
}

// PruneExpired drops effects whose duration has elapsed. Call once per tick
// before reading SpeedFactor.
func (s *EffectSet) PruneExpired(now time.Time) {
	kept := s.effects[:0]
	for _, e := range s.effects {
		if !e.Expired(now) {
			kept = append(kept, e)
		}
	}
	s.effects = kept
}

// SpeedFactor returns the combined speed multiplier of every effect active at
// now. Two 50% slows from different sources combine to 25% speed, not zero.
//
// The switch is exhaustive over core.EffectKind so an unhandled kind is a
// compile-review error here rather than a silent no-op.
func (s *EffectSet) SpeedFactor(now time.Time) float64 {
	factor := 1.0
	for _, e := range s.effects {
		if e.Expired(now) {
			continue
		}
		switch e.Kind {
		case core.EffectSlow:
			factor *= 1 - e.Value
		case core.EffectFreeze:
			return 0
		case core.EffectBurn:
			// damage over time; movement speed is unaffected
		}
	}
	return factor
}

// Active returns a snapshot of the effects still running at now, for
// recording.
func (s *EffectSet) Active(now time.Time) []core.Effect {
	var out []core.Effect
	for _, e := range s.effects {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of held effects, expired or not.
func (s *EffectSet) Len() int {
	return len(s.effects)
}
