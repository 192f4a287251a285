// Package streaming defines the wire protocol for live replay streaming:
// every message travels as an Envelope, and the server acknowledges session
// boundaries so the recorder knows the viewer is in sync.
package streaming

import (
	"encoding/json"

	"github.com/terratd/simcore/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession    = "start_session"
	TypeEndSession      = "end_session"
	TypeAddAgent        = "add_agent"
	TypeAgentState      = "agent_state"
	TypeTickPerformance = "tick_performance"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session identity and origin.
type StartSessionPayload struct {
	Session *core.SessionInfo `json:"session"`
}
