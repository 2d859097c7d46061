package relay

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aramistech/website-backend/internal/auth"
	"github.com/aramistech/website-backend/internal/chat"
)

var testSecret = []byte("relay-test-secret")

type fakeChat struct {
	mu        sync.Mutex
	messages  []string
	transfers []string
}

func (f *fakeChat) HandleCustomerMessage(_ context.Context, sessionID, senderName, body string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, body)
	return &chat.Message{ID: int64(len(f.messages)), SessionID: sessionID, Sender: chat.SenderCustomer, SenderName: senderName, Body: body}, nil
}

func (f *fakeChat) SendAdminMessage(_ context.Context, sessionID, adminID, senderName, body string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, body)
	return &chat.Message{ID: int64(len(f.messages)), SessionID: sessionID, Sender: chat.SenderAdmin, SenderName: senderName, Body: body}, nil
}

func (f *fakeChat) Transfer(_ context.Context, sessionID string) (*chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, sessionID)
	return &chat.Session{ID: sessionID, Status: chat.StatusTransferred}, nil
}

func newTestServer(t *testing.T) (*Hub, *fakeChat, *httptest.Server) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	svc := &fakeChat{}
	srv := httptest.NewServer(NewHandler(hub, svc, testSecret, log))
	t.Cleanup(srv.Close)
	return hub, svc, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, sessionID, role, name string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Envelope{
		Type: EventJoinSession,
		Payload: map[string]any{
			"session_id": sessionID,
			"role":       role,
			"name":       name,
		},
	}))
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Envelope
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var event Envelope
	require.Error(t, conn.ReadJSON(&event), "expected no event, got %+v", event)
}

func TestJoinAndReceiveSessionEvents(t *testing.T) {
	hub, _, srv := newTestServer(t)

	conn := dial(t, srv, "")
	join(t, conn, "s-1", "customer", "Jane")

	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.ToSession("s-1", EventNewMessage, map[string]any{"body": "hello"})

	event := readEvent(t, conn)
	require.Equal(t, EventNewMessage, event.Type)
	require.Equal(t, "hello", event.Payload["body"])
}

func TestSessionEventsDoNotLeakAcrossSessions(t *testing.T) {
	hub, _, srv := newTestServer(t)

	connA := dial(t, srv, "")
	join(t, connA, "s-a", "customer", "")
	connB := dial(t, srv, "")
	join(t, connB, "s-b", "customer", "")

	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-a") == 1 && hub.SessionSubscribers("s-b") == 1
	}, time.Second, 10*time.Millisecond)

	hub.ToSession("s-a", EventNewMessage, map[string]any{"body": "for a only"})

	event := readEvent(t, connA)
	require.Equal(t, EventNewMessage, event.Type)
	expectSilence(t, connB)
}

func TestAdminReceivesGlobalTransferEvents(t *testing.T) {
	hub, _, srv := newTestServer(t)

	token, err := auth.GenerateToken(testSecret, "admin-1", "Aramis", time.Hour)
	require.NoError(t, err)

	admin := dial(t, srv, token)
	join(t, admin, "", "admin", "")

	customer := dial(t, srv, "")
	join(t, customer, "s-1", "customer", "Jane")

	require.Eventually(t, func() bool {
		return hub.AdminCount() == 1 && hub.SessionSubscribers("s-1") == 1
	}, time.Second, 10*time.Millisecond)

	hub.ToAdmins(EventNewTransfer, map[string]any{"customer_name": "Jane"})

	event := readEvent(t, admin)
	require.Equal(t, EventNewTransfer, event.Type)
	require.Equal(t, "Jane", event.Payload["customer_name"])
	expectSilence(t, customer)
}

func TestAdminRoleRequiresToken(t *testing.T) {
	hub, _, srv := newTestServer(t)

	conn := dial(t, srv, "")
	join(t, conn, "", "admin", "")

	event := readEvent(t, conn)
	require.Equal(t, EventError, event.Type)
	require.Zero(t, hub.AdminCount())
}

func TestSendMessageIsAcked(t *testing.T) {
	hub, svc, srv := newTestServer(t)

	conn := dial(t, srv, "")
	join(t, conn, "s-1", "customer", "Jane")
	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{
		Type:    EventSendMessage,
		Payload: map[string]any{"body": "my email is down"},
	}))

	event := readEvent(t, conn)
	require.Equal(t, EventMessageSent, event.Type)
	require.Equal(t, "s-1", event.Payload["session_id"])

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, []string{"my email is down"}, svc.messages)
}

func TestTransferToHumanInvokesService(t *testing.T) {
	hub, svc, srv := newTestServer(t)

	conn := dial(t, srv, "")
	join(t, conn, "s-1", "customer", "Jane")
	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Envelope{Type: EventTransferToHuman}))

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.transfers) == 1 && svc.transfers[0] == "s-1"
	}, time.Second, 10*time.Millisecond)
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	hub, _, srv := newTestServer(t)

	a := dial(t, srv, "")
	join(t, a, "s-1", "customer", "Jane")
	b := dial(t, srv, "")
	join(t, b, "s-1", "customer", "Bob")

	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(Envelope{Type: EventAgentTyping}))

	event := readEvent(t, b)
	require.Equal(t, EventAgentTyping, event.Type)
	require.Equal(t, "s-1", event.Payload["session_id"])
	expectSilence(t, a)
}

func TestDisconnectRemovesSubscriber(t *testing.T) {
	hub, _, srv := newTestServer(t)

	conn := dial(t, srv, "")
	join(t, conn, "s-1", "customer", "")
	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.SessionSubscribers("s-1") == 0
	}, time.Second, 10*time.Millisecond)
}
