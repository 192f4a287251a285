// Package gormstorage implements the storage.Backend interface on top of a
// GORM connection with internal queues and a background DB writer goroutine.
// It is database-agnostic: the postgres and sqlite backends compose it and
// inject their own connection.
package gormstorage

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/terratd/simcore/internal/logging"
	"github.com/terratd/simcore/internal/model"
	"github.com/terratd/simcore/internal/model/convert"
	"github.com/terratd/simcore/internal/queue"
	"github.com/terratd/simcore/pkg/core"
)

// Dependencies holds all dependencies for the GORM storage backend.
// A nil DB puts the backend in queue-only mode, useful for tests.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Agents           *queue.Queue[model.Agent]
	AgentStates      *queue.Queue[model.AgentState]
	TickPerformances *queue.Queue[model.TickPerformance]
}

func newQueues() *queues {
	return &queues{
		Agents:           queue.New[model.Agent](),
		AgentStates:      queue.New[model.AgentState](),
		TickPerformances: queue.New[model.TickPerformance](),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps                Dependencies
	queues              *queues
	sessionID           atomic.Uint64
	stopChan            chan struct{}
	dbReady             bool
	lastDBWriteDuration time.Duration
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB
// writer goroutine. With no DB injected the backend only queues.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})

	if b.deps.DB == nil {
		return nil
	}

	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.dbReady = true

	b.startDBWriter()
	return nil
}

// setupDB migrates the schema, enabling PostGIS first when the dialect
// supports it.
func (b *Backend) setupDB() error {
	db := b.deps.DB
	log := b.deps.LogManager

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
		log.WriteLog("setupDB", "PostGIS extension created", "INFO")
	}

	log.WriteLog("setupDB", "Migrating schema", "INFO")
	models := model.DatabaseModels
	if db.Dialector.Name() != "postgres" {
		models = model.DatabaseModelsSQLite
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WriteLog("setupDB", "Database setup complete", "INFO")
	return nil
}

// Close flushes the queues one last time and stops the DB writer goroutine.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
	}
	if b.dbReady {
		b.writeAll()
	}
	return nil
}

// StartSession inserts the session row and remembers its ID for the writer.
func (b *Backend) StartSession(info *core.SessionInfo) error {
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.SessionToModel(*info)
	if err := b.deps.DB.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	b.sessionID.Store(uint64(gormSession.ID))
	return nil
}

// SetSessionID sets the current session ID for the DB writer (used by tools
// appending to an existing recording).
func (b *Backend) SetSessionID(id uint) {
	b.sessionID.Store(uint64(id))
}

// EndSession flushes whatever is still queued.
func (b *Backend) EndSession() error {
	if b.dbReady {
		b.writeAll()
	}
	return nil
}

// AddAgent converts a core agent to GORM and pushes to the write queue.
func (b *Backend) AddAgent(a *core.Agent) error {
	gormObj := convert.AgentToModel(*a)
	b.queues.Agents.Push(gormObj)
	return nil
}

// RecordAgentState converts and queues an agent state snapshot.
func (b *Backend) RecordAgentState(s *core.AgentState) error {
	gormObj := convert.AgentStateToModel(*s)
	b.queues.AgentStates.Push(gormObj)
	return nil
}

// RecordTickPerformance converts and queues a tick performance row.
func (b *Backend) RecordTickPerformance(p *core.TickPerformance) error {
	gormObj := convert.TickPerformanceToModel(*p)
	b.queues.TickPerformances.Push(gormObj)
	return nil
}

// StateQueueLen reports how many agent states are waiting for the writer.
func (b *Backend) StateQueueLen() int {
	if b.queues == nil {
		return 0
	}
	return b.queues.AgentStates.Len()
}

// GetLastWriteDuration reports how long the last batch write took.
func (b *Backend) GetLastWriteDuration() time.Duration {
	return b.lastDBWriteDuration
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are requeued for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T)) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return
	}

	tx.Commit()
}

// writeAll drains every queue into the database, stamping rows with the
// current session ID.
func (b *Backend) writeAll() {
	log := b.deps.LogManager.WriteLog
	sessionID := uint(b.sessionID.Load())

	stampAgents := func(items []model.Agent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampAgentStates := func(items []model.AgentState) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}
	stampTickPerformances := func(items []model.TickPerformance) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}

	start := time.Now()

	// Agents first so the composite FK on agent_states resolves.
	writeQueue(b.deps.DB, b.queues.Agents, "agents", log, stampAgents)
	writeQueue(b.deps.DB, b.queues.AgentStates, "agent states", log, stampAgentStates)
	writeQueue(b.deps.DB, b.queues.TickPerformances, "tick performances", log, stampTickPerformances)

	b.lastDBWriteDuration = time.Since(start)
}

// startDBWriter starts the background goroutine that periodically drains
// queues into the DB.
func (b *Backend) startDBWriter() {
	go func() {
		for {
			select {
			case <-b.stopChan:
				return
			default:
			}

			if !b.dbReady {
				time.Sleep(1 * time.Second)
				continue
			}

			b.writeAll()

			time.Sleep(2 * time.Second)
		}
	}()
}
