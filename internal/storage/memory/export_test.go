package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/terratd/simcore/internal/config"
	"github.com/terratd/simcore/pkg/core"
)

// recordTrack registers one agent and records a short track ending on the
// final waypoint.
func recordTrack(b *Backend) {
	b.AddAgent(&core.Agent{ID: 1, ClassName: "walker", BaseSpeed: 1.4, SpawnTick: 2})
	for tick := uint(2); tick <= 5; tick++ {
		b.RecordAgentState(&core.AgentState{
			AgentID:    1,
			Tick:       tick,
			Time:       time.UnixMilli(1700000000000).Add(time.Duration(tick) * time.Second),
			Position:   core.NewGeoPosition(48.1374+float64(tick)*1e-5, 11.5755),
			Elevation:  520,
			Speed:      1.4,
			ReachedEnd: tick == 5,
		})
	}
	b.RecordTickPerformance(&core.TickPerformance{Tick: 5, AgentCount: 1, TickDurationMs: 0.8})
}

func TestExportJSON_Uncompressed(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: false})
	b.StartSession(testInfo())
	recordTrack(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if path == "" {
		t.Fatal("no exported file path")
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("path = %q, want .json suffix", path)
	}
	// Spaces in the session name must not reach the filesystem.
	if strings.Contains(path, " ") {
		t.Errorf("path %q contains spaces", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	var export ReplayExport
	if err := json.NewDecoder(f).Decode(&export); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}

	if export.SessionName != "evening run" {
		t.Errorf("SessionName = %q", export.SessionName)
	}
	if export.WorldName != "munich" {
		t.Errorf("WorldName = %q", export.WorldName)
	}
	if export.Origin.Lat != 48.1374 || export.Origin.Height != 520 {
		t.Errorf("Origin = %+v", export.Origin)
	}
	if export.EndTick != 5 {
		t.Errorf("EndTick = %d, want 5", export.EndTick)
	}
	if len(export.Agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(export.Agents))
	}

	agent := export.Agents[0]
	if agent.ClassName != "walker" {
		t.Errorf("ClassName = %q", agent.ClassName)
	}
	if agent.SpawnTick != 2 {
		t.Errorf("SpawnTick = %d, want 2", agent.SpawnTick)
	}
	if agent.EndTick != 5 {
		t.Errorf("EndTick = %d, want 5", agent.EndTick)
	}
	if len(agent.Positions) != 4 {
		t.Errorf("got %d position rows, want 4", len(agent.Positions))
	}

	if len(export.Performance) != 1 || export.Performance[0].Tick != 5 {
		t.Errorf("Performance = %+v", export.Performance)
	}
}

func TestExportJSON_Compressed(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: true})
	b.StartSession(testInfo())
	recordTrack(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("path = %q, want .json.gz suffix", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip stream: %v", err)
	}
	defer gz.Close()

	var export ReplayExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}
	if len(export.Agents) != 1 {
		t.Errorf("got %d agents, want 1", len(export.Agents))
	}
}

func TestExport_AgentNeverReachedEnd(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	b.StartSession(testInfo())
	b.AddAgent(&core.Agent{ID: 2, ClassName: "runner"})
	b.RecordAgentState(&core.AgentState{AgentID: 2, Tick: 1})

	export := b.buildExport()
	if len(export.Agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(export.Agents))
	}
	if export.Agents[0].EndTick != -1 {
		t.Errorf("EndTick = %d, want -1", export.Agents[0].EndTick)
	}
}

func TestEffectsRows(t *testing.T) {
	rows := effectsRows([]core.Effect{
		{Kind: core.EffectSlow, Value: 0.5, Source: "tower-3"},
		{Kind: core.EffectBurn, Value: 2, Source: "tower-7"},
	})

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][0] != "slow" || rows[1][0] != "burn" {
		t.Errorf("kinds = %v, %v", rows[0][0], rows[1][0])
	}
}
