package relay

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// NotificationGate lets the hub skip admin consoles that turned
// notifications off in their chat settings.
type NotificationGate interface {
	NotificationsEnabled(ctx context.Context, adminID string) bool
}

type joinRequest struct {
	client    *Client
	sessionID string
	role      Role
}

type broadcastJob struct {
	sessionID string // delivery scope when admins/global are false
	admins    bool
	global    bool
	except    *Client
	event     Envelope
}

// Hub is the in-memory fan-out registry: session id -> subscriber set,
// plus a global set of connected admin consoles.
//
// Delivery is best-effort with no ordering or durability guarantees; the
// hub is not a message broker. Subscriber state is lost on restart and
// clients recover by re-fetching history over HTTP.
type Hub struct {
	log *logrus.Logger

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	broadcast  chan broadcastJob

	mu       sync.RWMutex
	sessions map[string]map[*Client]bool
	admins   map[*Client]bool
	clients  map[*Client]bool
	joined   map[*Client]string

	gate NotificationGate
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		join:       make(chan joinRequest, 16),
		broadcast:  make(chan broadcastJob, 256),
		sessions:   make(map[string]map[*Client]bool),
		admins:     make(map[*Client]bool),
		clients:    make(map[*Client]bool),
		joined:     make(map[*Client]string),
	}
}

// SetNotificationGate must be called before Run.
func (h *Hub) SetNotificationGate(gate NotificationGate) {
	h.gate = gate
}

// Run owns all map mutations. Created at process start, stopped by
// cancelling ctx at shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.removeClient(c)

		case req := <-h.join:
			h.mu.Lock()
			if prev := h.joined[req.client]; prev != "" && prev != req.sessionID {
				h.dropFromSession(req.client, prev)
			}
			if req.sessionID != "" {
				if h.sessions[req.sessionID] == nil {
					h.sessions[req.sessionID] = make(map[*Client]bool)
				}
				h.sessions[req.sessionID][req.client] = true
				h.joined[req.client] = req.sessionID
			}
			if req.role == RoleAdmin {
				h.admins[req.client] = true
			}
			h.mu.Unlock()

			h.log.WithFields(logrus.Fields{
				"client_id":  req.client.id,
				"session_id": req.sessionID,
				"role":       string(req.role),
			}).Debug("client joined session")

		case job := <-h.broadcast:
			h.deliver(job)
		}
	}
}

func (h *Hub) deliver(job broadcastJob) {
	h.mu.RLock()
	var targets []*Client
	switch {
	case job.global:
		for c := range h.clients {
			targets = append(targets, c)
		}
	case job.admins:
		for c := range h.admins {
			targets = append(targets, c)
		}
	default:
		for c := range h.sessions[job.sessionID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c == job.except {
			continue
		}
		if job.admins && h.gate != nil && !h.gate.NotificationsEnabled(context.Background(), c.adminID) {
			continue
		}
		if !c.enqueue(job.event) {
			// Slow consumer: drop the connection rather than block the hub.
			h.log.WithField("client_id", c.id).Warn("send buffer full, disconnecting client")
			h.removeClient(c)
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	delete(h.admins, c)
	h.dropFromSession(c, h.joined[c])
	delete(h.joined, c)
	c.closeSend()
}

// dropFromSession must be called with mu held.
func (h *Hub) dropFromSession(c *Client, sessionID string) {
	if set := h.sessions[sessionID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.closeSend()
	}
	h.clients = make(map[*Client]bool)
	h.admins = make(map[*Client]bool)
	h.sessions = make(map[string]map[*Client]bool)
}

// ToSession implements the chat relay port: push an event to every
// subscriber of one session.
func (h *Hub) ToSession(sessionID, eventType string, payload map[string]any) {
	h.enqueue(broadcastJob{
		sessionID: sessionID,
		event:     Envelope{Type: eventType, Payload: payload},
	})
}

// ToAdmins pushes an event to every connected admin console regardless of
// session subscription.
func (h *Hub) ToAdmins(eventType string, payload map[string]any) {
	h.enqueue(broadcastJob{
		admins: true,
		event:  Envelope{Type: eventType, Payload: payload},
	})
}

func (h *Hub) toSessionExcept(sessionID string, except *Client, event Envelope) {
	h.enqueue(broadcastJob{sessionID: sessionID, except: except, event: event})
}

func (h *Hub) toAll(event Envelope) {
	h.enqueue(broadcastJob{global: true, event: event})
}

func (h *Hub) enqueue(job broadcastJob) {
	select {
	case h.broadcast <- job:
	default:
		h.log.WithField("type", job.event.Type).Warn("broadcast queue full, event dropped")
	}
}

// SessionSubscribers reports how many clients are joined to a session.
func (h *Hub) SessionSubscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// AdminCount reports how many admin consoles are connected.
func (h *Hub) AdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.admins)
}
