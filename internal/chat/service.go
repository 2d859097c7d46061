package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aramistech/website-backend/internal/ai"
)

const (
	botDisplayName     = "AramisTech Assistant"
	systemDisplayName  = "AramisTech"
	defaultAwayMessage = "Our technicians are currently away. Leave a message and we will get back to you as soon as possible."
)

// ServiceOptions tunes the bot collaborator. A zero BotTimeout falls back
// to 30 seconds so an unresponsive completion call can never block a
// session indefinitely.
type ServiceOptions struct {
	BotTimeout  time.Duration
	BotFallback string
}

type service struct {
	repo     Repo
	bot      ai.Responder
	relay    Relay
	log      *logrus.Logger
	timeout  time.Duration
	fallback string
	now      func() time.Time
}

func NewService(repo Repo, bot ai.Responder, relay Relay, log *logrus.Logger, opts ServiceOptions) Service {
	if opts.BotTimeout <= 0 {
		opts.BotTimeout = 30 * time.Second
	}
	if opts.BotFallback == "" {
		opts.BotFallback = "I'm having trouble answering right now. Please call or email our support team and a technician will get back to you."
	}
	return &service{
		repo:     repo,
		bot:      bot,
		relay:    relay,
		log:      log,
		timeout:  opts.BotTimeout,
		fallback: opts.BotFallback,
		now:      time.Now,
	}
}

func (s *service) StartSession(ctx context.Context, name, email, phone string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	session := &Session{
		ID:            uuid.NewString(),
		CustomerName:  name,
		CustomerEmail: strings.TrimSpace(email),
		CustomerPhone: strings.TrimSpace(phone),
		Status:        StatusActive,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"customer":   session.CustomerName,
	}).Info("chat session started")

	return session, nil
}

func (s *service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *service) History(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.GetHistory(ctx, sessionID)
}

func (s *service) HandleCustomerMessage(ctx context.Context, sessionID, senderName, body string) (*Message, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusClosed {
		return nil, ErrSessionClosed
	}
	if err := validateBody(body); err != nil {
		return nil, err
	}
	if senderName == "" {
		senderName = session.CustomerName
	}

	msg := &Message{
		SessionID:  sessionID,
		Sender:     SenderCustomer,
		SenderName: senderName,
		Body:       body,
	}
	if err := s.appendAndRelay(ctx, msg); err != nil {
		return nil, err
	}

	// Server-side hand-off guard: once a session left the active state the
	// bot must never speak in it again.
	if session.Status != StatusActive {
		return msg, nil
	}
	if !s.autoResponseAllowed(ctx) {
		return msg, nil
	}

	s.replyWithBot(ctx, sessionID)
	return msg, nil
}

func (s *service) SendAdminMessage(ctx context.Context, sessionID, adminID, senderName, body string) (*Message, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusClosed {
		return nil, ErrSessionClosed
	}
	if err := validateBody(body); err != nil {
		return nil, err
	}

	msg := &Message{
		SessionID:  sessionID,
		Sender:     SenderAdmin,
		SenderName: senderName,
		Body:       body,
	}
	if err := s.appendAndRelay(ctx, msg); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"admin_id":   adminID,
	}).Debug("admin reply relayed")

	return msg, nil
}

func (s *service) Transfer(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusTransferred {
		// Idempotent: a second transfer request is a no-op.
		return session, nil
	}
	if !session.CanTransitionTo(StatusTransferred) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, sessionID, StatusTransferred, &now); err != nil {
		return nil, err
	}
	session.Status = StatusTransferred
	session.TransferredAt = &now

	s.relay.ToSession(sessionID, "chat_transferred", sessionPayload(session))
	s.relay.ToAdmins("new_transfer", map[string]any{
		"session_id":     session.ID,
		"customer_name":  session.CustomerName,
		"customer_email": session.CustomerEmail,
		"transferred_at": now,
	})

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"customer":   session.CustomerName,
	}).Info("session transferred to human")

	if away := s.awayMessage(ctx); away != "" {
		sys := &Message{
			SessionID:  sessionID,
			Sender:     SenderSystem,
			SenderName: systemDisplayName,
			Body:       away,
		}
		if err := s.appendAndRelay(ctx, sys); err != nil {
			s.log.WithError(err).Warn("could not append away message")
		}
	}

	return session, nil
}

func (s *service) Assign(ctx context.Context, sessionID, adminID string) (*Session, error) {
	if err := s.repo.AssignAdmin(ctx, sessionID, adminID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"admin_id":   adminID,
	}).Info("session assigned")

	return s.repo.GetSession(ctx, sessionID)
}

func (s *service) Close(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusClosed {
		return session, nil
	}
	if !session.CanTransitionTo(StatusClosed) {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatus(ctx, sessionID, StatusClosed, nil); err != nil {
		return nil, err
	}
	session.Status = StatusClosed

	s.log.WithField("session_id", sessionID).Info("session closed")
	return session, nil
}

func (s *service) ListSessions(ctx context.Context, f ListFilter) ([]Session, error) {
	return s.repo.ListSessions(ctx, f)
}

func (s *service) Settings(ctx context.Context, adminID string) (*AdminSettings, error) {
	settings, err := s.repo.GetSettings(ctx, adminID)
	if err == ErrSettingsNotFound {
		// Never stored yet: hand the UI sensible defaults.
		return &AdminSettings{
			AdminID:       adminID,
			Notifications: true,
			AutoResponse:  true,
		}, nil
	}
	return settings, err
}

func (s *service) UpdateSettings(ctx context.Context, settings *AdminSettings) error {
	for _, hours := range []string{settings.WorkStart, settings.WorkEnd} {
		if hours == "" {
			continue
		}
		if _, err := time.Parse("15:04", hours); err != nil {
			return ErrInvalidWorkingHours
		}
	}
	return s.repo.SaveSettings(ctx, settings)
}

func (s *service) NotificationsEnabled(ctx context.Context, adminID string) bool {
	settings, err := s.repo.GetSettings(ctx, adminID)
	if err != nil {
		return true
	}
	return settings.Notifications
}

// replyWithBot asks the Responder for a reply and appends it. Any failure,
// including a timeout, degrades to the fixed fallback text rather than an
// error the customer can see.
func (s *service) replyWithBot(ctx context.Context, sessionID string) {
	history, err := s.repo.GetHistory(ctx, sessionID)
	if err != nil {
		s.log.WithError(err).Error("history fetch for bot failed")
		history = nil
	}

	botCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.bot.Respond(botCtx, toDialog(history))
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("bot unavailable, using fallback")
		}
		reply = s.fallback
	}

	msg := &Message{
		SessionID:  sessionID,
		Sender:     SenderBot,
		SenderName: botDisplayName,
		Body:       reply,
	}
	if err := s.appendAndRelay(ctx, msg); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Error("could not persist bot reply")
	}
}

// autoResponseAllowed gates the bot on admin availability: an admin who is
// currently reachable and has switched auto-response off wants to answer
// active chats personally.
func (s *service) autoResponseAllowed(ctx context.Context) bool {
	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		s.log.WithError(err).Warn("settings lookup failed, bot stays on")
		return true
	}
	now := s.now()
	for i := range settings {
		if settings[i].Available(now) && !settings[i].AutoResponse {
			return false
		}
	}
	return true
}

// awayMessage returns the text to post after a hand-off when nobody is
// reachable, or "" when at least one admin is available.
func (s *service) awayMessage(ctx context.Context) string {
	settings, err := s.repo.ListSettings(ctx)
	if err != nil {
		return ""
	}
	now := s.now()
	away := ""
	for i := range settings {
		if settings[i].Available(now) {
			return ""
		}
		if away == "" && settings[i].AwayMessage != "" {
			away = settings[i].AwayMessage
		}
	}
	if len(settings) == 0 {
		return defaultAwayMessage
	}
	if away == "" {
		away = defaultAwayMessage
	}
	return away
}

func (s *service) appendAndRelay(ctx context.Context, msg *Message) error {
	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.repo.TouchSession(ctx, msg.SessionID, msg.CreatedAt); err != nil {
		s.log.WithError(err).Warn("could not bump last_message_at")
	}
	s.relay.ToSession(msg.SessionID, "new_message", messagePayload(msg))
	return nil
}

func validateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if len(body) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// toDialog converts the persisted log into the Responder's dialog format.
// System notices are skipped so the fallback and away texts never feed
// back into the prompt.
func toDialog(history []Message) []ai.Message {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Sender {
		case SenderCustomer:
			out = append(out, ai.Message{Role: "user", Text: m.Body})
		case SenderBot, SenderAdmin:
			out = append(out, ai.Message{Role: "assistant", Text: m.Body})
		}
	}
	return out
}

func messagePayload(m *Message) map[string]any {
	return map[string]any{
		"id":           m.ID,
		"session_id":   m.SessionID,
		"sender":       string(m.Sender),
		"sender_name":  m.SenderName,
		"body":         m.Body,
		"message_type": m.Type,
		"created_at":   m.CreatedAt,
	}
}

func sessionPayload(s *Session) map[string]any {
	payload := map[string]any{
		"id":              s.ID,
		"customer_name":   s.CustomerName,
		"customer_email":  s.CustomerEmail,
		"customer_phone":  s.CustomerPhone,
		"status":          string(s.Status),
		"last_message_at": s.LastMessageAt,
		"created_at":      s.CreatedAt,
	}
	if s.AssignedAdmin != nil {
		payload["assigned_admin_id"] = *s.AssignedAdmin
	}
	if s.TransferredAt != nil {
		payload["transferred_at"] = *s.TransferredAt
	}
	return payload
}
