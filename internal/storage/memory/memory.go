// Package memory stores one session's recording in memory and exports it to
// a JSON replay file when the session ends.
package memory

import (
	"sync"

	"github.com/terratd/simcore/internal/config"
	"github.com/terratd/simcore/pkg/core"
)

// AgentRecord groups an agent with all its time-series data
type AgentRecord struct {
	Agent  core.Agent
	States []core.AgentState
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg  config.MemoryConfig
	info *core.SessionInfo

	agents map[uint16]*AgentRecord // keyed by agent ID
	perf   []core.TickPerformance

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		agents: make(map[uint16]*AgentRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(info *core.SessionInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.info = info

	// Reset all collections
	b.agents = make(map[uint16]*AgentRecord)
	b.perf = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.info == nil {
		return nil
	}
	return b.exportJSON()
}

// AddAgent registers a new agent
func (b *Backend) AddAgent(a *core.Agent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.agents[a.ID] = &AgentRecord{
		Agent:  *a,
		States: make([]core.AgentState, 0),
	}
	return nil
}

// GetAgentByID looks up a registered agent
func (b *Backend) GetAgentByID(id uint16) (*core.Agent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if record, ok := b.agents[id]; ok {
		return &record.Agent, true
	}
	return nil, false
}

// RecordAgentState records a per-tick agent snapshot
func (b *Backend) RecordAgentState(s *core.AgentState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if record, ok := b.agents[s.AgentID]; ok {
		record.States = append(record.States, *s)
	}
	return nil // silently ignore states for unknown agents
}

// RecordTickPerformance records one tick's performance sample
func (b *Backend) RecordTickPerformance(p *core.TickPerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perf = append(b.perf, *p)
	return nil
}

// GetExportedFilePath returns the path of the last exported replay file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
