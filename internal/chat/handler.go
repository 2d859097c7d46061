package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aramistech/website-backend/internal/auth"
)

type Handler struct {
	svc      Service
	validate *validator.Validate
}

func NewHandler(svc Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type sessionResponse struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Status        string     `json:"status"`
	AssignedAdmin *string    `json:"assigned_admin_id,omitempty"`
	TransferredAt *time.Time `json:"transferred_at,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toSessionResponse(s *Session) sessionResponse {
	return sessionResponse{
		ID:            s.ID,
		CustomerName:  s.CustomerName,
		CustomerEmail: s.CustomerEmail,
		CustomerPhone: s.CustomerPhone,
		Status:        string(s.Status),
		AssignedAdmin: s.AssignedAdmin,
		TransferredAt: s.TransferredAt,
		LastMessageAt: s.LastMessageAt,
		CreatedAt:     s.CreatedAt,
	}
}

type messageResponse struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Type       string    `json:"message_type"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageResponse(m *Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Sender:     string(m.Sender),
		SenderName: m.SenderName,
		Body:       m.Body,
		Type:       m.Type,
		CreatedAt:  m.CreatedAt,
	}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"omitempty,email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "name is required and email must be valid")
		return
	}

	session, err := h.svc.StartSession(r.Context(), payload.Name, payload.Email, payload.Phone)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]messageResponse, 0, len(history))
	for i := range history {
		out = append(out, toMessageResponse(&history[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
		Body string `json:"body" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}

	msg, err := h.svc.HandleCustomerMessage(r.Context(), chi.URLParam(r, "id"), payload.Name, payload.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Transfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	f := ListFilter{
		Status:     Status(r.URL.Query().Get("status")),
		Unassigned: r.URL.Query().Get("unassigned") == "true",
	}
	sessions, err := h.svc.ListSessions(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionResponse(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.AdminID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}
	session, err := h.svc.Assign(r.Context(), chi.URLParam(r, "id"), adminID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) SendAdminMessage(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.AdminID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}

	var payload struct {
		Name string `json:"name"`
		Body string `json:"body" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}
	if payload.Name == "" {
		payload.Name = adminID
	}

	msg, err := h.svc.SendAdminMessage(r.Context(), chi.URLParam(r, "id"), adminID, payload.Name, payload.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

type settingsPayload struct {
	Online            bool   `json:"online"`
	AwayMessage       string `json:"away_message"`
	Notifications     bool   `json:"notifications_enabled"`
	AutoResponse      bool   `json:"auto_response_enabled"`
	WorkStart         string `json:"work_start"`
	WorkEnd           string `json:"work_end"`
	AvailableWeekends bool   `json:"available_weekends"`
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.AdminID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}
	settings, err := h.svc.Settings(r.Context(), adminID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{
		Online:            settings.Online,
		AwayMessage:       settings.AwayMessage,
		Notifications:     settings.Notifications,
		AutoResponse:      settings.AutoResponse,
		WorkStart:         settings.WorkStart,
		WorkEnd:           settings.WorkEnd,
		AvailableWeekends: settings.AvailableWeekends,
	})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.AdminID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing admin identity")
		return
	}

	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	settings := &AdminSettings{
		AdminID:           adminID,
		Online:            payload.Online,
		AwayMessage:       payload.AwayMessage,
		Notifications:     payload.Notifications,
		AutoResponse:      payload.AutoResponse,
		WorkStart:         payload.WorkStart,
		WorkEnd:           payload.WorkEnd,
		AvailableWeekends: payload.AvailableWeekends,
	}
	if err := h.svc.UpdateSettings(r.Context(), settings); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSettingsNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrInvalidWorkingHours):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
