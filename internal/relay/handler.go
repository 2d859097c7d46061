package relay

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/aramistech/website-backend/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades /ws/chat connections and attaches them to the hub.
type Handler struct {
	hub    *Hub
	svc    ChatService
	secret []byte
	log    *logrus.Logger
}

func NewHandler(hub *Hub, svc ChatService, jwtSecret []byte, log *logrus.Logger) *Handler {
	return &Handler{hub: hub, svc: svc, secret: jwtSecret, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h.hub,
		svc:  h.svc,
		log:  h.log,
		conn: conn,
		send: make(chan Envelope, sendBuffer),
	}

	// Admin consoles authenticate the socket with ?token=<jwt>. Without a
	// valid token the connection can only join as a customer.
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := auth.ValidateToken(h.secret, token)
		if err != nil {
			h.log.WithError(err).Debug("socket token rejected")
		} else {
			client.adminID = claims.AdminID
			client.name = claims.Name
		}
	}

	h.hub.register <- client

	go client.writePump()
	client.readPump()
}
