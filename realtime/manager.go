// Package realtime pushes committed assignment events to dashboard WebSocket
// clients. Delivery is best-effort: a client that misses events reconciles
// through the lead listing endpoint.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/blochq/bloc/metrics"
	"github.com/blochq/bloc/store"
)

// AssignmentEvent is the payload pushed after every committed assignment.
type AssignmentEvent struct {
	LeadID           uuid.UUID              `json:"lead_id"`
	CallerID         *uuid.UUID             `json:"caller_id"`
	AssignmentStatus store.AssignmentStatus `json:"assignment_status"`
	AssignmentReason string                 `json:"assignment_reason"`
	Timestamp        time.Time              `json:"timestamp"`
}

type envelope struct {
	Type    string          `json:"type"`
	Payload AssignmentEvent `json:"payload"`
}

// Connection is a single dashboard WebSocket client.
type connection struct {
	id   string
	conn *websocket.Conn
	ctx  context.Context
}

// ConnectionManager tracks dashboard connections and broadcasts assignment
// events to all of them. One instance per process.
type ConnectionManager struct {
	log          *slog.Logger
	writeTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*connection
}

// NewConnectionManager creates a manager with the given per-send write
// timeout.
func NewConnectionManager(log *slog.Logger, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		log:          log,
		writeTimeout: writeTimeout,
		connections:  make(map[string]*connection),
	}
}

// HandleConnection manages the lifecycle of one WebSocket connection. Called
// by the HTTP handler after upgrade; blocks until the connection closes.
// Inbound client messages are read and discarded.
func (m *ConnectionManager) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	c := &connection{
		id:   uuid.New().String(),
		conn: conn,
		ctx:  ctx,
	}

	m.register(c)
	defer m.unregister(c)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends the event to every connected client. Failed sends are
// logged and the connection is left to its read loop to tear down.
func (m *ConnectionManager) Broadcast(event AssignmentEvent) {
	data, err := json.Marshal(envelope{Type: "assignment", Payload: event})
	if err != nil {
		m.log.Warn("failed to marshal assignment event", "error", err)
		return
	}

	// Snapshot under the lock, release before the potentially slow sends.
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.send(c, data); err != nil {
			m.log.Warn("failed to send to dashboard client",
				"connection_id", c.id, "error", err)
		}
	}
}

// ActiveConnections returns the number of connected dashboard clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *ConnectionManager) send(c *connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (m *ConnectionManager) register(c *connection) {
	m.mu.Lock()
	m.connections[c.id] = c
	n := len(m.connections)
	m.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	m.log.Debug("dashboard client connected", "connection_id", c.id, "active", n)
}

func (m *ConnectionManager) unregister(c *connection) {
	m.mu.Lock()
	delete(m.connections, c.id)
	n := len(m.connections)
	m.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	m.log.Debug("dashboard client disconnected", "connection_id", c.id, "active", n)
}
