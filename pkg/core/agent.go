package core

import "time"

// Agent is the recordable identity of one simulated unit.
type Agent struct {
	ID        uint16    `json:"id"`
	ClassName string    `json:"className"`
	BaseSpeed float64   `json:"baseSpeed"` // meters per second
	Airborne  bool      `json:"airborne"`
	SpawnedAt time.Time `json:"spawnedAt"`
	SpawnTick uint      `json:"spawnTick"`
}

// AgentState is one per-tick snapshot of a moving agent, as handed to the
// recording backends.
type AgentState struct {
	AgentID    uint16      `json:"agentId"`
	Tick       uint        `json:"tick"`
	Time       time.Time   `json:"time"`
	Position   GeoPosition `json:"position"`
	Elevation  float64     `json:"elevation"` // sampled terrain height, meters
	Heading    float64     `json:"heading"`   // radians, 0 = north
	Speed      float64     `json:"speed"`     // effective speed this tick
	ReachedEnd bool        `json:"reachedEnd"`
	Effects    []Effect    `json:"effects,omitempty"`
}
