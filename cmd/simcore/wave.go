package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/terratd/simcore/internal/config"
	"github.com/terratd/simcore/internal/dispatcher"
	"github.com/terratd/simcore/internal/geo"
)

// demoPath builds a gently curving northbound route of the given length,
// starting at the configured origin. Coordinates are [lon, lat] pairs, the
// order route layers hand paths over in.
func demoPath(origin config.OriginConfig, lengthMeters float64, waypoints int) [][]float64 {
	cosLat := math.Cos(origin.Lat * math.Pi / 180.0)
	coords := make([][]float64, waypoints)
	for i := 0; i < waypoints; i++ {
		frac := float64(i) / float64(waypoints-1)
		north := lengthMeters * frac
		east := lengthMeters * 0.15 * math.Sin(frac*math.Pi)
		coords[i] = []float64{
			origin.Lon + east/(geo.MetersPerDegree*cosLat),
			origin.Lat + north/geo.MetersPerDegree,
		}
	}
	return coords
}

// spawnDemoWave dispatches one :SPAWN:WAVE: command with the configured
// number of agents. Mostly ground walkers spread across the path width, plus
// one airborne drone per wave.
func spawnDemoWave(d *dispatcher.Dispatcher, origin config.OriginConfig, simCfg config.SimConfig, waveNo int) error {
	path := demoPath(origin, 300, 6)

	args := []string{
		fmt.Sprintf("wave-%d", waveNo+1),
		fmt.Sprintf("%d", simCfg.WaveStaggerMs),
	}

	for i := 0; i < simCfg.WaveSize; i++ {
		spec := map[string]any{
			"class":      "walker",
			"speed":      1.5 + rand.Float64()*0.5,
			"path":       path,
			"multiplier": 1.0 + 0.1*float64(waveNo),
			"offset":     (rand.Float64() - 0.5) * 4,
		}
		if i == simCfg.WaveSize-1 {
			spec["class"] = "drone"
			spec["speed"] = 4.0
			spec["airborne"] = true
			spec["bob"] = 2.0
			spec["offset"] = 0.0
		}
		raw, err := json.Marshal(spec)
		if err != nil {
			return fmt.Errorf("failed to encode agent spec: %w", err)
		}
		args = append(args, string(raw))
	}

	_, err := d.Dispatch(dispatcher.Event{
		Command:   ":SPAWN:WAVE:",
		Args:      args,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch wave spawn: %w", err)
	}
	Logger.Info("Demo wave dispatched", "wave", waveNo+1, "agents", simCfg.WaveSize)
	return nil
}
