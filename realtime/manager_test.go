package realtime_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/blochq/bloc/realtime"
	"github.com/blochq/bloc/store"
)

type wsEnvelope struct {
	Type    string                   `json:"type"`
	Payload realtime.AssignmentEvent `json:"payload"`
}

func newWSServer(t *testing.T, m *realtime.ConnectionManager) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		m.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForConnections(t *testing.T, m *realtime.ConnectionManager, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.ActiveConnections() == n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	m := realtime.NewConnectionManager(slog.Default(), time.Second)
	server := newWSServer(t, m)

	first := dial(t, server)
	second := dial(t, server)
	waitForConnections(t, m, 2)

	callerID := uuid.New()
	event := realtime.AssignmentEvent{
		LeadID:           uuid.New(),
		CallerID:         &callerID,
		AssignmentStatus: store.AssignmentAssigned,
		AssignmentReason: "state_round_robin",
		Timestamp:        time.Now().UTC(),
	}
	m.Broadcast(event)

	for _, conn := range []*websocket.Conn{first, second} {
		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)

		var got wsEnvelope
		require.NoError(t, json.Unmarshal(data, &got))
		require.Equal(t, "assignment", got.Type)
		require.Equal(t, event.LeadID, got.Payload.LeadID)
		require.Equal(t, callerID, *got.Payload.CallerID)
		require.Equal(t, store.AssignmentAssigned, got.Payload.AssignmentStatus)
		require.Equal(t, "state_round_robin", got.Payload.AssignmentReason)
	}
}

func TestUnassignedEventCarriesNilCaller(t *testing.T) {
	m := realtime.NewConnectionManager(slog.Default(), time.Second)
	server := newWSServer(t, m)

	conn := dial(t, server)
	waitForConnections(t, m, 1)

	m.Broadcast(realtime.AssignmentEvent{
		LeadID:           uuid.New(),
		AssignmentStatus: store.AssignmentUnassigned,
		AssignmentReason: "unassigned_cap_reached",
		Timestamp:        time.Now().UTC(),
	})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var got wsEnvelope
	require.NoError(t, json.Unmarshal(data, &got))
	require.Nil(t, got.Payload.CallerID)
	require.Equal(t, store.AssignmentUnassigned, got.Payload.AssignmentStatus)
}

func TestDisconnectUnregisters(t *testing.T) {
	m := realtime.NewConnectionManager(slog.Default(), time.Second)
	server := newWSServer(t, m)

	conn := dial(t, server)
	waitForConnections(t, m, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitForConnections(t, m, 0)

	// Broadcasting with no clients is a no-op.
	m.Broadcast(realtime.AssignmentEvent{LeadID: uuid.New()})
}

func TestBroadcastWithNoClients(t *testing.T) {
	m := realtime.NewConnectionManager(slog.Default(), time.Second)
	require.Zero(t, m.ActiveConnections())
	m.Broadcast(realtime.AssignmentEvent{
		LeadID:           uuid.New(),
		AssignmentStatus: store.AssignmentAssigned,
		AssignmentReason: "global_round_robin",
	})
}
