package chat

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the public chat API. Admin routes are mounted
// separately so the JWT middleware wraps only them.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/api/chat/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{id}", h.GetSession)
		r.Get("/{id}/messages", h.ListMessages)
		r.Post("/{id}/messages", h.SendMessage)
		r.Post("/{id}/transfer", h.Transfer)
	})
}

// RegisterAdminRoutes registers paths relative to the admin chat mount;
// the caller wraps them with the auth middleware.
func RegisterAdminRoutes(r chi.Router, h *Handler) {
	r.Get("/sessions", h.ListSessions)
	r.Post("/sessions/{id}/assign", h.Assign)
	r.Post("/sessions/{id}/close", h.CloseSession)
	r.Post("/sessions/{id}/messages", h.SendAdminMessage)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}
