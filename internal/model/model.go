// Package model defines the GORM table schema for recorded simulation data.
// Positions are stored as EPSG:3857 (web mercator) points so recorded runs can
// be replayed over the same map tiles the game renders.
package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Agent{},
	&AgentState{},
	&TickPerformance{},
}

// DatabaseModelsSQLite mirrors DatabaseModels; geometry columns degrade to
// their WKB encoding without PostGIS.
var DatabaseModelsSQLite = []interface{}{
	&Session{},
	&Agent{},
	&AgentState{},
	&TickPerformance{},
}

// Session is one recorded play session at a real-world location.
type Session struct {
	gorm.Model
	Name         string     `json:"name" gorm:"size:127"`
	WorldName    string     `json:"worldName" gorm:"size:127"`
	StartTime    time.Time  `json:"startTime" gorm:"type:timestamptz;NOT NULL"`
	OriginLat    float64    `json:"originLat"`
	OriginLon    float64    `json:"originLon"`
	OriginHeight float64    `json:"originHeight"`
	Origin       geom.Point `json:"origin"` // origin as EPSG:3857 point
}

func (*Session) TableName() string {
	return "sessions"
}

// Agent is a simulated unit within a session.
// Uses composite primary key (SessionID, AgentID) - AgentID is the
// session-scoped sequential ID assigned at spawn.
type Agent struct {
	SessionID uint           `json:"sessionId" gorm:"primaryKey;autoIncrement:false"`
	AgentID   uint16         `json:"agentId" gorm:"primaryKey;autoIncrement:false"`
	Session   Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"deletedAt" gorm:"index"`
	SpawnedAt time.Time      `json:"spawnedAt" gorm:"type:timestamptz;NOT NULL;index:idx_agent_spawned_at"` // Server time when the agent was spawned
	SpawnTick uint           `json:"spawnTick"`                                                             // Logic tick when the agent was spawned
	ClassName string         `json:"className" gorm:"size:64"`                                              // Unit archetype (walker, runner, drone, ...)
	BaseSpeed float32        `json:"baseSpeed"`                                                             // Unmodified speed in m/s
	Airborne  bool           `json:"airborne" gorm:"default:false"`                                         // Flying unit, ignores terrain clamping
}

func (*Agent) TableName() string {
	return "agents"
}

// AgentState is one per-tick snapshot of a moving agent.
// References Agent by (SessionID, AgentID) composite FK
type AgentState struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_agentstate_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint      `json:"tick" gorm:"index:idx_agentstate_tick"`
	AgentID   uint16    `json:"agentId" gorm:"index:idx_agentstate_agent_id"`
	Agent     Agent     `gorm:"foreignkey:SessionID,AgentID;references:SessionID,AgentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	Position   geom.Point     `json:"position"`                               // Position as EPSG:3857 point
	Elevation  float32        `json:"elevation"`                              // Sampled terrain height, meters
	Heading    float32        `json:"heading"`                                // Radians clockwise from north
	Speed      float32        `json:"speed"`                                  // Effective speed this tick, m/s
	ReachedEnd bool           `json:"reachedEnd" gorm:"default:false"`        // Agent sits on the final waypoint
	Effects    datatypes.JSON `json:"effects" gorm:"type:jsonb;default:'[]'"` // Active status effects
}

func (*AgentState) TableName() string {
	return "agent_states"
}

// TickPerformance is the model for per-tick simulation performance metrics
type TickPerformance struct {
	Time                time.Time `json:"time" gorm:"type:timestamptz;index:idx_time"`
	SessionID           uint      `json:"sessionId" gorm:"index:idx_tickperformance_session_id"`
	Session             Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick                uint      `json:"tick"`
	AgentCount          uint16    `json:"agentCount"`
	StateQueueLen       uint16    `json:"stateQueueLen"`
	TickDurationMs      float32   `json:"tickDurationMs"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

func (*TickPerformance) TableName() string {
	return "tick_performances"
}
