// Package storage defines the recording backend interface the simulation
// writes through, and the factory that selects an implementation.
package storage

import (
	"time"

	"github.com/terratd/simcore/pkg/core"
)

// Backend is the interface all recording backends must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(info *core.SessionInfo) error
	EndSession() error

	// Entity registration
	AddAgent(a *core.Agent) error

	// State recording
	RecordAgentState(s *core.AgentState) error
	RecordTickPerformance(p *core.TickPerformance) error
}

// Exportable is an optional interface for backends that produce a replay
// file when the session ends.
type Exportable interface {
	GetExportedFilePath() string
}

// WriteDurationProvider is an optional interface for backends that batch
// writes in the background and can report how long the last batch took.
type WriteDurationProvider interface {
	GetLastWriteDuration() time.Duration
}
