package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terratd/simcore/pkg/core"
	"github.com/terratd/simcore/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and acks session boundaries.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				ack := streaming.AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSessionInfo() *core.SessionInfo {
	return &core.SessionInfo{
		Name:        "evening run",
		WorldName:   "munich",
		Origin:      core.NewGeoPosition3D(48.1374, 11.5755, 520),
		StartTimeMs: 1700000000000,
	}
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"}, slog.Default())
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSessionInfo()))
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)

	var payload streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "evening run", payload.Session.Name)
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, slog.Default())
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSessionInfo()))

	require.NoError(t, b.AddAgent(&core.Agent{ID: 1, ClassName: "walker", BaseSpeed: 1.5}))
	require.NoError(t, b.RecordAgentState(&core.AgentState{AgentID: 1, Tick: 1}))
	require.NoError(t, b.RecordAgentState(&core.AgentState{AgentID: 1, Tick: 2}))
	require.NoError(t, b.RecordTickPerformance(&core.TickPerformance{Tick: 2, AgentCount: 1}))

	require.NoError(t, b.EndSession())

	// Give a moment for all messages to arrive at server.
	time.Sleep(50 * time.Millisecond)

	types := make(map[string]int)
	for _, m := range ml.all() {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeAddAgent])
	assert.Equal(t, 2, types[streaming.TypeAgentState])
	assert.Equal(t, 1, types[streaming.TypeTickPerformance])
}

func TestStartSession_AckTimeoutPropagates(t *testing.T) {
	// A server that never acks.
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"}, slog.Default())
	require.NoError(t, b.Init())
	defer b.Close()

	// Bypass the package-level ackTimeout so the test stays fast.
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: testSessionInfo()})
	require.NoError(t, err)
	err = b.conn.sendAndWait(data, streaming.TypeStartSession, 100*time.Millisecond)
	assert.ErrorContains(t, err, "timeout waiting for ack")
}

func TestEnvelopeSerialization(t *testing.T) {
	payload := streaming.StartSessionPayload{Session: testSessionInfo()}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	env := streaming.Envelope{Type: streaming.TypeStartSession, Payload: raw}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeStartSession, decoded.Type)

	var sp streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sp))
	assert.Equal(t, "munich", sp.Session.WorldName)
	assert.Equal(t, int64(1700000000000), sp.Session.StartTimeMs)
}
