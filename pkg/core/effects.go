package core

import (
	"fmt"
	"time"
)

// EffectKind tags a status effect. The set is closed; code computing movement
// speed must switch exhaustively over it so a new kind cannot silently no-op.
type EffectKind uint8

const (
	// EffectSlow removes Value (0..1) of the agent's speed. Multiple slows
	// from different sources stack multiplicatively.
	EffectSlow EffectKind = iota
	// EffectFreeze halts the agent entirely while active.
	EffectFreeze
	// EffectBurn is damage over time; it does not modify movement speed.
	EffectBurn
)

func (k EffectKind) String() string {
	switch k {
	case EffectSlow:
		return "slow"
	case EffectFreeze:
		return "freeze"
	case EffectBurn:
		return "burn"
	}
	return "unknown"
}

// ParseEffectKind maps a wire name back to its kind.
func ParseEffectKind(s string) (EffectKind, error) {
	switch s {
	case "slow":
		return EffectSlow, nil
	case "freeze":
		return EffectFreeze, nil
	case "burn":
		return EffectBurn, nil
	}
	return 0, fmt.Errorf("unknown effect kind %q", s)
}

// Effect is a timed modifier applied to an agent. An effect with the same
// (Kind, Source) as an existing one refreshes it in place rather than
// stacking.
type Effect struct {
	Kind      EffectKind    `json:"kind"`
	Value     float64       `json:"value"`
	Duration  time.Duration `json:"duration"`
	AppliedAt time.Time     `json:"appliedAt"`
	Source    string        `json:"source,omitempty"`
}

// Expired reports whether the effect has run out at the given instant.
func (e Effect) Expired(now time.Time) bool {
	return now.Sub(e.AppliedAt) >= e.Duration
}
