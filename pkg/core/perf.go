package core

import "time"

// TickPerformance captures how one logic tick went: how many agents advanced,
// how much recording work is backed up, and how long everything took.
type TickPerformance struct {
	Time                time.Time `json:"time"`
	Tick                uint      `json:"tick"`
	AgentCount          int       `json:"agentCount"`
	StateQueueLen       int       `json:"stateQueueLen"`
	TickDurationMs      float32   `json:"tickDurationMs"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}
