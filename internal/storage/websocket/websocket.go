// Package websocket streams the live session to a replay viewer over a
// WebSocket connection. States are fire-and-forget; session boundaries wait
// for a server ack.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/terratd/simcore/pkg/core"
	"github.com/terratd/simcore/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket to a live viewer.
// It implements storage.Backend but never produces an export file.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload and pushes it to the write loop
// (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session identity and waits for a server ack. The
// message is cached so a reconnect can replay it before resuming states.
func (b *Backend) StartSession(info *core.SessionInfo) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: info})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for a server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}

	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedSessionMsg = nil
	b.conn.mu.Unlock()

	return err
}

// AddAgent streams a newly spawned agent.
func (b *Backend) AddAgent(a *core.Agent) error {
	return b.sendEnvelope(streaming.TypeAddAgent, a)
}

// RecordAgentState streams one agent's per-tick state.
func (b *Backend) RecordAgentState(s *core.AgentState) error {
	return b.sendEnvelope(streaming.TypeAgentState, s)
}

// RecordTickPerformance streams one tick's performance sample.
func (b *Backend) RecordTickPerformance(p *core.TickPerformance) error {
	return b.sendEnvelope(streaming.TypeTickPerformance, p)
}
