// Package monitor periodically snapshots the simulation's health (agent
// counts, queue depths, write latency) to a status file and, when configured,
// to InfluxDB. It also prepares TimescaleDB hypertables for the state tables.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"gorm.io/gorm"

	"github.com/terratd/simcore/internal/influx"
	"github.com/terratd/simcore/internal/logging"
	"github.com/terratd/simcore/internal/session"
	"github.com/terratd/simcore/internal/worker"
)

// Dependencies holds all dependencies for the monitor service.
type Dependencies struct {
	DB            *gorm.DB // optional, only used by ValidateHypertables
	LogManager    *logging.SlogManager
	Session       *session.Session
	WorkerManager *worker.Manager
	Influx        *influx.Manager // optional
	StatusDir     string
}

// Status is one point-in-time health snapshot of the simulation.
type Status struct {
	Time                time.Time `json:"time"`
	SessionName         string    `json:"sessionName"`
	Generation          uint64    `json:"generation"`
	Tick                uint      `json:"tick"`
	AgentCount          int       `json:"agentCount"`
	TerrainCacheSize    int       `json:"terrainCacheSize"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current simulation status and its JSON
// rendering for the status file.
func (s *Service) GetProgramStatus() (Status, string) {
	status := Status{
		Time:                time.Now(),
		SessionName:         s.deps.Session.Info().Name,
		Generation:          s.deps.Session.Generation(),
		Tick:                s.deps.WorkerManager.CurrentTick(),
		AgentCount:          s.deps.Session.Count(),
		TerrainCacheSize:    s.deps.Session.Sampler().CacheSize(),
		LastWriteDurationMs: float32(s.deps.WorkerManager.GetLastDBWriteDuration().Milliseconds()),
	}

	rendered, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		rendered = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return status, string(rendered)
}

// ValidateHypertables validates and creates TimescaleDB hypertables for the
// given tables; the map value lists the compression segment-by columns.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	functionName := "validateHypertables"

	for table := range tables {
		hypertable := any(nil)
		s.deps.DB.Exec(`SELECT x.* FROM timescaledb_information.hypertables WHERE hypertable_name = ?`, table).Scan(&hypertable)
		if hypertable != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Table %s is already configured`, table), "INFO")
			continue
		}

		queryCreateHypertable := fmt.Sprintf(`
				SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true);
			`, table)
		err := s.deps.DB.Exec(queryCreateHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to create hypertable for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Created hypertable for %s`, table), "INFO")

		queryCompressHypertable := fmt.Sprintf(`
				ALTER TABLE %s SET (
					timescaledb.compress,
					timescaledb.compress_segmentby = ?);
			`, table)
		err = s.deps.DB.Exec(
			queryCompressHypertable,
			strings.Join(tables[table], ","),
		).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to enable compression for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Enabled hypertable compression for %s`, table), "INFO")

		queryCompressAfterHypertable := fmt.Sprintf(`
				SELECT add_compression_policy(
					'%s',
					compress_after => interval '14 day');
			`, table)
		err = s.deps.DB.Exec(queryCompressAfterHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to set compress_after for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Set compress_after for %s`, table), "INFO")
	}
	return nil
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(1000 * time.Millisecond)

				status, rendered := s.GetProgramStatus()

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					statusFile.WriteString(rendered + "\n")
				}

				if s.deps.Influx != nil && s.deps.Influx.IsValid {
					s.writeStatusPoint(status)
				}
			}
		}
	}()

	return nil
}

// writeStatusPoint ships one status snapshot to the session_data bucket.
func (s *Service) writeStatusPoint(status Status) {
	point := influxdb2_write.NewPointWithMeasurement("sim_status").
		AddTag("session", status.SessionName).
		AddField("tick", int(status.Tick)).
		AddField("generation", int(status.Generation)).
		AddField("agentCount", status.AgentCount).
		AddField("terrainCacheSize", status.TerrainCacheSize).
		AddField("lastWriteDurationMs", float64(status.LastWriteDurationMs)).
		SetTime(status.Time)

	if err := s.deps.Influx.WritePoint(context.Background(), "session_data", point); err != nil {
		s.deps.LogManager.Logger().Error("Error writing status point to InfluxDB", "error", err)
	}
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
