package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/aramistech/website-backend/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// ChatService is the slice of the chat service the relay needs to act on
// inbound socket events.
type ChatService interface {
	HandleCustomerMessage(ctx context.Context, sessionID, senderName, body string) (*chat.Message, error)
	SendAdminMessage(ctx context.Context, sessionID, adminID, senderName, body string) (*chat.Message, error)
	Transfer(ctx context.Context, sessionID string) (*chat.Session, error)
}

// Client is one connected browser or admin console.
type Client struct {
	id   string
	hub  *Hub
	svc  ChatService
	log  *logrus.Logger
	conn *websocket.Conn
	send chan Envelope

	// set by readPump on join_session, before any later frame is handled
	sessionID string
	role      Role
	adminID   string
	name      string

	mu     sync.Mutex
	closed bool
}

// enqueue hands an event to writePump without ever blocking. It reports
// false when the buffer is full or the client is already closed.
func (c *Client) enqueue(event Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type inboundFrame struct {
	Type    string `json:"type"`
	Payload struct {
		SessionID string `json:"session_id"`
		Role      string `json:"role"`
		Name      string `json:"name"`
		Body      string `json:"body"`
	} `json:"payload"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).WithField("client_id", c.id).Debug("websocket read error")
			}
			return
		}
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame inboundFrame) {
	ctx := context.Background()

	switch frame.Type {
	case EventJoinSession:
		role := Role(frame.Payload.Role)
		if role != RoleAdmin {
			role = RoleCustomer
		}
		if role == RoleAdmin && c.adminID == "" {
			c.reply(EventError, map[string]any{"error": "admin role requires a valid token"})
			return
		}
		c.sessionID = frame.Payload.SessionID
		c.role = role
		if frame.Payload.Name != "" {
			c.name = frame.Payload.Name
		}
		c.hub.join <- joinRequest{client: c, sessionID: c.sessionID, role: role}

	case EventSendMessage:
		if c.sessionID == "" {
			c.reply(EventError, map[string]any{"error": "join a session first"})
			return
		}
		var err error
		var msg *chat.Message
		if c.role == RoleAdmin {
			msg, err = c.svc.SendAdminMessage(ctx, c.sessionID, c.adminID, c.senderName(), frame.Payload.Body)
		} else {
			msg, err = c.svc.HandleCustomerMessage(ctx, c.sessionID, c.senderName(), frame.Payload.Body)
		}
		if err != nil {
			c.reply(EventError, map[string]any{"error": err.Error()})
			return
		}
		c.reply(EventMessageSent, map[string]any{"id": msg.ID, "session_id": msg.SessionID})

	case EventTransferToHuman:
		if c.sessionID == "" {
			c.reply(EventError, map[string]any{"error": "join a session first"})
			return
		}
		if _, err := c.svc.Transfer(ctx, c.sessionID); err != nil {
			c.reply(EventError, map[string]any{"error": err.Error()})
		}

	case EventAgentTyping, EventAgentStoppedTyping:
		if c.sessionID == "" {
			return
		}
		c.hub.toSessionExcept(c.sessionID, c, Envelope{
			Type: frame.Type,
			Payload: map[string]any{
				"session_id": c.sessionID,
				"role":       string(c.role),
				"name":       c.name,
			},
		})

	case EventAdminOnline, EventAdminOffline:
		if c.role != RoleAdmin {
			return
		}
		c.hub.toAll(Envelope{
			Type:    frame.Type,
			Payload: map[string]any{"admin_id": c.adminID, "name": c.name},
		})

	default:
		c.log.WithField("type", frame.Type).Debug("unknown frame type ignored")
	}
}

func (c *Client) senderName() string {
	if c.name != "" {
		return c.name
	}
	if c.role == RoleAdmin {
		return c.adminID
	}
	return ""
}

func (c *Client) reply(eventType string, payload map[string]any) {
	c.enqueue(Envelope{Type: eventType, Payload: payload})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
