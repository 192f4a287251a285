package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/terratd/simcore/pkg/core"
)

// ReplayExport is the root JSON structure of an exported recording.
type ReplayExport struct {
	SessionName string            `json:"sessionName"`
	WorldName   string            `json:"worldName"`
	Origin      OriginJSON        `json:"origin"`
	StartTimeMs int64             `json:"startTimeMs"`
	EndTick     uint              `json:"endTick"`
	Agents      []AgentJSON       `json:"agents"`
	Performance []PerformanceJSON `json:"performance"`
}

// OriginJSON is the geodetic anchor the local frame was built around.
type OriginJSON struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Height float64 `json:"height"`
}

// AgentJSON represents one agent and its movement track.
// Positions rows are [tick, [lat, lon], elevation, heading, speed, effects]
// with effects as a list of [kind, value, source] triples; the compact array
// form keeps large recordings small.
type AgentJSON struct {
	ID        uint16  `json:"id"`
	ClassName string  `json:"className"`
	BaseSpeed float64 `json:"baseSpeed"`
	Airborne  bool    `json:"airborne"`
	SpawnTick uint    `json:"spawnTick"`
	EndTick   int     `json:"endTick"` // -1 when the agent never reached the end
	Positions [][]any `json:"positions"`
}

// PerformanceJSON is one tick's performance sample.
type PerformanceJSON struct {
	Tick           uint    `json:"tick"`
	AgentCount     int     `json:"agentCount"`
	StateQueueLen  int     `json:"stateQueueLen"`
	TickDurationMs float32 `json:"tickDurationMs"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file.
// Caller holds b.mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	sessionName := strings.ReplaceAll(b.info.Name, " ", "_")
	sessionName = strings.ReplaceAll(sessionName, ":", "_")
	timestamp := time.UnixMilli(b.info.StartTimeMs).UTC().Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() ReplayExport {
	export := ReplayExport{
		SessionName: b.info.Name,
		WorldName:   b.info.WorldName,
		Origin: OriginJSON{
			Lat:    b.info.Origin.Lat,
			Lon:    b.info.Origin.Lon,
			Height: b.info.Origin.Height,
		},
		StartTimeMs: b.info.StartTimeMs,
		Agents:      make([]AgentJSON, 0, len(b.agents)),
		Performance: make([]PerformanceJSON, 0, len(b.perf)),
	}

	var maxTick uint = 0

	for _, record := range b.agents {
		agent := AgentJSON{
			ID:        record.Agent.ID,
			ClassName: record.Agent.ClassName,
			BaseSpeed: record.Agent.BaseSpeed,
			Airborne:  record.Agent.Airborne,
			SpawnTick: record.Agent.SpawnTick,
			EndTick:   -1,
			Positions: make([][]any, 0, len(record.States)),
		}

		for _, state := range record.States {
			agent.Positions = append(agent.Positions, []any{
				state.Tick,
				[]float64{state.Position.Lat, state.Position.Lon},
				state.Elevation,
				state.Heading,
				state.Speed,
				effectsRows(state.Effects),
			})
			if state.ReachedEnd && agent.EndTick < 0 {
				agent.EndTick = int(state.Tick)
			}
			if state.Tick > maxTick {
				maxTick = state.Tick
			}
		}

		export.Agents = append(export.Agents, agent)
	}

	export.EndTick = maxTick

	for _, p := range b.perf {
		export.Performance = append(export.Performance, PerformanceJSON{
			Tick:           p.Tick,
			AgentCount:     p.AgentCount,
			StateQueueLen:  p.StateQueueLen,
			TickDurationMs: p.TickDurationMs,
		})
	}

	return export
}

// effectsRows flattens active effects to [kind, value, source] triples.
func effectsRows(effects []core.Effect) [][]any {
	rows := make([][]any, 0, len(effects))
	for _, e := range effects {
		rows = append(rows, []any{e.Kind.String(), e.Value, e.Source})
	}
	return rows
}

func (b *Backend) writeJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data ReplayExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
