package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound   = errors.New("chat session not found")
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrAlreadyAssigned   = errors.New("session already assigned")
	ErrSettingsNotFound  = errors.New("admin chat settings not found")
	ErrSessionClosed     = errors.New("session is closed")
	ErrEmptyName         = errors.New("customer name is required")
	ErrEmptyMessage      = errors.New("empty message")
	ErrMessageTooLong    = errors.New("message too long")

	ErrInvalidWorkingHours = errors.New("working hours must be HH:MM")
)

const MaxMessageLength = 4096

type Status string

const (
	StatusActive      Status = "active"
	StatusTransferred Status = "transferred"
	StatusClosed      Status = "closed"
)

// statusRank orders the lifecycle. Transitions may only move forward.
func statusRank(s Status) int {
	switch s {
	case StatusActive:
		return 0
	case StatusTransferred:
		return 1
	case StatusClosed:
		return 2
	}
	return -1
}

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderBot      Sender = "bot"
	SenderAdmin    Sender = "admin"
	SenderSystem   Sender = "system"
)

// Session is one customer's chat conversation, spanning bot and/or human
// interaction. Status is the single authoritative lifecycle field; "is
// transferred" is derived from it, never stored separately.
type Session struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Status        Status
	AssignedAdmin *string
	TransferredAt *time.Time
	LastMessageAt time.Time
	CreatedAt     time.Time
}

func (s *Session) Transferred() bool {
	return s.Status != StatusActive
}

// CanTransitionTo reports whether moving to next keeps the lifecycle
// monotonic (active -> transferred -> closed, skips forward allowed).
func (s *Session) CanTransitionTo(next Status) bool {
	from, to := statusRank(s.Status), statusRank(next)
	return from >= 0 && to >= 0 && to > from
}

// Message is immutable once created and ordered by creation time within
// its session.
type Message struct {
	ID         int64
	SessionID  string
	Sender     Sender
	SenderName string
	Body       string
	Type       string // "text"
	CreatedAt  time.Time
}

// AdminSettings is the singleton-per-admin availability record. The relay
// reads it to gate notifications; the service reads it to gate the bot's
// auto-response.
type AdminSettings struct {
	AdminID           string
	Online            bool
	AwayMessage       string
	Notifications     bool
	AutoResponse      bool
	WorkStart         string // "15:04"
	WorkEnd           string
	AvailableWeekends bool
	UpdatedAt         time.Time
}

// Available reports whether the admin is reachable at the given moment:
// online, inside working hours, and not blocked by the weekend rule.
func (a *AdminSettings) Available(now time.Time) bool {
	if !a.Online {
		return false
	}
	if !a.AvailableWeekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	start, err1 := time.Parse("15:04", a.WorkStart)
	end, err2 := time.Parse("15:04", a.WorkEnd)
	if err1 != nil || err2 != nil {
		return true // unset or malformed hours mean always-on
	}
	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	if startMin == endMin {
		return true
	}
	if startMin < endMin {
		return minutes >= startMin && minutes < endMin
	}
	// overnight window, e.g. 22:00-06:00
	return minutes >= startMin || minutes < endMin
}

type ListFilter struct {
	Status     Status
	Unassigned bool
}

// Repo is the persistence port for sessions, messages and settings.
type Repo interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateStatus(ctx context.Context, id string, status Status, transferredAt *time.Time) error
	AssignAdmin(ctx context.Context, id, adminID string) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	ListSessions(ctx context.Context, f ListFilter) ([]Session, error)

	SaveMessage(ctx context.Context, m *Message) error
	GetHistory(ctx context.Context, sessionID string) ([]Message, error)

	GetSettings(ctx context.Context, adminID string) (*AdminSettings, error)
	SaveSettings(ctx context.Context, s *AdminSettings) error
	ListSettings(ctx context.Context) ([]AdminSettings, error)
}

// Relay is the real-time fan-out port. Implementations deliver best-effort
// only; missed events are recovered via GetHistory.
type Relay interface {
	ToSession(sessionID, eventType string, payload map[string]any)
	ToAdmins(eventType string, payload map[string]any)
}

// Service orchestrates sessions, the message log, the relay and the bot.
type Service interface {
	StartSession(ctx context.Context, name, email, phone string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	History(ctx context.Context, sessionID string) ([]Message, error)

	HandleCustomerMessage(ctx context.Context, sessionID, senderName, body string) (*Message, error)
	SendAdminMessage(ctx context.Context, sessionID, adminID, senderName, body string) (*Message, error)

	Transfer(ctx context.Context, sessionID string) (*Session, error)
	Assign(ctx context.Context, sessionID, adminID string) (*Session, error)
	Close(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, f ListFilter) ([]Session, error)

	Settings(ctx context.Context, adminID string) (*AdminSettings, error)
	UpdateSettings(ctx context.Context, s *AdminSettings) error
	NotificationsEnabled(ctx context.Context, adminID string) bool
}
