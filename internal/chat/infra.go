package chat

import (
	"context"
	"database/sql"
	"time"
)

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

func (r *repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO chat_sessions (id, customer_name, customer_email, customer_phone, status, last_message_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at, last_message_at
	`,
		s.ID,
		s.CustomerName,
		s.CustomerEmail,
		s.CustomerPhone,
		string(s.Status),
	).Scan(&s.CreatedAt, &s.LastMessageAt)
}

const sessionColumns = `
	id, customer_name, customer_email, customer_phone, status,
	assigned_admin_id, transferred_at, last_message_at, created_at
`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var status string
	if err := row.Scan(
		&s.ID,
		&s.CustomerName,
		&s.CustomerEmail,
		&s.CustomerPhone,
		&status,
		&s.AssignedAdmin,
		&s.TransferredAt,
		&s.LastMessageAt,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	return &s, nil
}

func (r *repo) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM chat_sessions
		WHERE id = $1
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repo) UpdateStatus(ctx context.Context, id string, status Status, transferredAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET status = $2, transferred_at = COALESCE($3, transferred_at)
		WHERE id = $1
	`, id, string(status), transferredAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *repo) AssignAdmin(ctx context.Context, id, adminID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET assigned_admin_id = $2
		WHERE id = $1 AND assigned_admin_id IS NULL
	`, id, adminID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a lost race from an unknown id.
		if _, err := r.GetSession(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyAssigned
	}
	return nil
}

func (r *repo) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions
		SET last_message_at = $2
		WHERE id = $1
	`, id, at)
	return err
}

func (r *repo) ListSessions(ctx context.Context, f ListFilter) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE ($1 = '' OR status = $1)
		AND (NOT $2 OR assigned_admin_id IS NULL)
		ORDER BY last_message_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, string(f.Status), f.Unassigned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repo) SaveMessage(ctx context.Context, m *Message) error {
	if m.Type == "" {
		m.Type = "text"
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (session_id, sender, sender_name, body, message_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		m.SessionID,
		string(m.Sender),
		m.SenderName,
		m.Body,
		m.Type,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *repo) GetHistory(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, sender, sender_name, body, message_type, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sender string
		if err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&sender,
			&m.SenderName,
			&m.Body,
			&m.Type,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		m.Sender = Sender(sender)
		out = append(out, m)
	}
	return out, rows.Err()
}

const settingsColumns = `
	admin_id, online, away_message, notifications_enabled, auto_response_enabled,
	work_start, work_end, available_weekends, updated_at
`

func scanSettings(row interface{ Scan(...any) error }) (*AdminSettings, error) {
	var s AdminSettings
	if err := row.Scan(
		&s.AdminID,
		&s.Online,
		&s.AwayMessage,
		&s.Notifications,
		&s.AutoResponse,
		&s.WorkStart,
		&s.WorkEnd,
		&s.AvailableWeekends,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) GetSettings(ctx context.Context, adminID string) (*AdminSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+settingsColumns+`
		FROM admin_chat_settings
		WHERE admin_id = $1
	`, adminID)

	s, err := scanSettings(row)
	if err == sql.ErrNoRows {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repo) SaveSettings(ctx context.Context, s *AdminSettings) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO admin_chat_settings
			(admin_id, online, away_message, notifications_enabled, auto_response_enabled,
			 work_start, work_end, available_weekends, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (admin_id) DO UPDATE SET
			online = EXCLUDED.online,
			away_message = EXCLUDED.away_message,
			notifications_enabled = EXCLUDED.notifications_enabled,
			auto_response_enabled = EXCLUDED.auto_response_enabled,
			work_start = EXCLUDED.work_start,
			work_end = EXCLUDED.work_end,
			available_weekends = EXCLUDED.available_weekends,
			updated_at = now()
		RETURNING updated_at
	`,
		s.AdminID,
		s.Online,
		s.AwayMessage,
		s.Notifications,
		s.AutoResponse,
		s.WorkStart,
		s.WorkEnd,
		s.AvailableWeekends,
	).Scan(&s.UpdatedAt)
}

func (r *repo) ListSettings(ctx context.Context) ([]AdminSettings, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settingsColumns+`
		FROM admin_chat_settings
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdminSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
