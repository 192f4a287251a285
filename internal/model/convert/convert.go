// Package convert provides functions to convert between GORM models and the
// plain core types the simulation produces.
package convert

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/terratd/simcore/internal/geo"
	"github.com/terratd/simcore/internal/model"
	"github.com/terratd/simcore/pkg/core"
)

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// effectsToJSON serializes active status effects for the jsonb column.
func effectsToJSON(effects []core.Effect) datatypes.JSON {
	if len(effects) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(effects)
	return datatypes.JSON(data)
}

// jsonToEffects inverts effectsToJSON for readers of stored data.
func jsonToEffects(data datatypes.JSON) []core.Effect {
	if len(data) == 0 {
		return nil
	}
	var effects []core.Effect
	if err := json.Unmarshal(data, &effects); err != nil {
		return nil
	}
	return effects
}

// SessionToModel converts a core.SessionInfo to a GORM model.Session.
func SessionToModel(info core.SessionInfo) model.Session {
	return model.Session{
		Name:         info.Name,
		WorldName:    info.WorldName,
		StartTime:    msToTime(info.StartTimeMs),
		OriginLat:    info.Origin.Lat,
		OriginLon:    info.Origin.Lon,
		OriginHeight: info.Origin.Height,
		Origin:       geo.Point3857(info.Origin.Lat, info.Origin.Lon),
	}
}

// AgentToModel converts a core.Agent to a GORM model.Agent.
// The session ID is stamped by the storage writer, not here.
func AgentToModel(a core.Agent) model.Agent {
	return model.Agent{
		AgentID:   a.ID,
		SpawnedAt: a.SpawnedAt,
		SpawnTick: a.SpawnTick,
		ClassName: a.ClassName,
		BaseSpeed: float32(a.BaseSpeed),
		Airborne:  a.Airborne,
	}
}

// AgentStateToModel converts a core.AgentState to a GORM model.AgentState,
// projecting the geodetic position into web mercator.
func AgentStateToModel(s core.AgentState) model.AgentState {
	return model.AgentState{
		Time:       s.Time,
		Tick:       s.Tick,
		AgentID:    s.AgentID,
		Position:   geo.Point3857(s.Position.Lat, s.Position.Lon),
		Elevation:  float32(s.Elevation),
		Heading:    float32(s.Heading),
		Speed:      float32(s.Speed),
		ReachedEnd: s.ReachedEnd,
		Effects:    effectsToJSON(s.Effects),
	}
}

// TickPerformanceToModel converts a core.TickPerformance to its GORM model.
func TickPerformanceToModel(p core.TickPerformance) model.TickPerformance {
	return model.TickPerformance{
		Time:                p.Time,
		Tick:                p.Tick,
		AgentCount:          uint16(p.AgentCount),
		StateQueueLen:       uint16(p.StateQueueLen),
		TickDurationMs:      p.TickDurationMs,
		LastWriteDurationMs: p.LastWriteDurationMs,
	}
}

// ModelToAgentState converts a stored state row back to a core.AgentState for
// replay readers. Height information is not stored per-row; the replayer
// resamples terrain instead.
func ModelToAgentState(m model.AgentState) core.AgentState {
	var pos core.GeoPosition
	if coord, ok := m.Position.Coordinates(); ok {
		lat, lon := geo.LatLonFrom3857(coord.XY.X, coord.XY.Y)
		pos = core.NewGeoPosition(lat, lon)
	}
	return core.AgentState{
		AgentID:    m.AgentID,
		Tick:       m.Tick,
		Time:       m.Time,
		Position:   pos,
		Elevation:  float64(m.Elevation),
		Heading:    float64(m.Heading),
		Speed:      float64(m.Speed),
		ReachedEnd: m.ReachedEnd,
		Effects:    jsonToEffects(m.Effects),
	}
}

// ModelToAgent converts a stored agent row back to a core.Agent.
func ModelToAgent(m model.Agent) core.Agent {
	return core.Agent{
		ID:        m.AgentID,
		ClassName: m.ClassName,
		BaseSpeed: float64(m.BaseSpeed),
		Airborne:  m.Airborne,
		SpawnedAt: m.SpawnedAt,
		SpawnTick: m.SpawnTick,
	}
}
