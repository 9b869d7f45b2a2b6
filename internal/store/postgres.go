package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielvass/outbound-messaging/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	phone         TEXT NOT NULL UNIQUE,
	contact_group TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id             BIGSERIAL PRIMARY KEY,
	contact_id     BIGINT NOT NULL REFERENCES contacts(id),
	content        TEXT NOT NULL,
	status         TEXT NOT NULL,
	sent_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	delivered_at   TIMESTAMPTZ,
	failure_reason TEXT
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id            BIGSERIAL PRIMARY KEY,
	contact_ids   BIGINT[] NOT NULL,
	content       TEXT NOT NULL,
	scheduled_for TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_scheduled_due ON scheduled_messages(status, scheduled_for);
`

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("empty postgres url")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Postgres is the durable Store, used when POSTGRES_URL is configured.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *Postgres) Contacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, phone, contact_group, created_at
		FROM contacts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (p *Postgres) Contact(ctx context.Context, id int64) (model.Contact, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, phone, contact_group, created_at
		FROM contacts WHERE id = $1
	`, id)
	return scanContact(row)
}

func (p *Postgres) ContactByPhone(ctx context.Context, phone string) (model.Contact, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, phone, contact_group, created_at
		FROM contacts WHERE phone = $1
	`, phone)
	return scanContact(row)
}

func (p *Postgres) CreateContact(ctx context.Context, name, phone, group string) (model.Contact, error) {
	var c model.Contact
	err := p.pool.QueryRow(ctx, `
		INSERT INTO contacts (name, phone, contact_group)
		VALUES ($1, $2, $3)
		RETURNING id, name, phone, contact_group, created_at
	`, name, phone, group).Scan(&c.ID, &c.Name, &c.Phone, &c.Group, &c.CreatedAt)
	if isUniqueViolation(err) {
		return model.Contact{}, ErrDuplicate
	}
	return c, err
}

func (p *Postgres) UpdateContact(ctx context.Context, id int64, upd ContactUpdate) (model.Contact, error) {
	var c model.Contact
	err := p.pool.QueryRow(ctx, `
		UPDATE contacts
		SET name          = COALESCE($2, name),
		    phone         = COALESCE($3, phone),
		    contact_group = COALESCE($4, contact_group)
		WHERE id = $1
		RETURNING id, name, phone, contact_group, created_at
	`, id, upd.Name, upd.Phone, upd.Group).Scan(&c.ID, &c.Name, &c.Phone, &c.Group, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	if isUniqueViolation(err) {
		return model.Contact{}, ErrDuplicate
	}
	return c, err
}

func (p *Postgres) DeleteContact(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SearchContacts(ctx context.Context, query string) ([]model.Contact, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, phone, contact_group, created_at
		FROM contacts
		WHERE name ILIKE '%' || $1 || '%'
		   OR phone LIKE '%' || $1 || '%'
		   OR contact_group ILIKE '%' || $1 || '%'
		ORDER BY id ASC
	`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (p *Postgres) Messages(ctx context.Context) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, contact_id, content, status, sent_at, delivered_at, failure_reason
		FROM messages
		ORDER BY sent_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (p *Postgres) Message(ctx context.Context, id int64) (model.Message, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, contact_id, content, status, sent_at, delivered_at, failure_reason
		FROM messages WHERE id = $1
	`, id)
	return scanMessage(row)
}

func (p *Postgres) MessagesByContact(ctx context.Context, contactID int64) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, contact_id, content, status, sent_at, delivered_at, failure_reason
		FROM messages
		WHERE contact_id = $1
		ORDER BY id ASC
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (p *Postgres) MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, contact_id, content, status, sent_at, delivered_at, failure_reason
		FROM messages WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Preserve the caller's id order.
	byID := make(map[int64]model.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (p *Postgres) CreateMessage(ctx context.Context, contactID int64, content string) (model.Message, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO messages (contact_id, content, status)
		VALUES ($1, $2, $3)
		RETURNING id, contact_id, content, status, sent_at, delivered_at, failure_reason
	`, contactID, content, model.MessagePending)
	return scanMessage(row)
}

func (p *Postgres) UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus, deliveredAt *time.Time, failureReason string) (model.Message, error) {
	var reason *string
	if status == model.MessageFailed && failureReason != "" {
		reason = &failureReason
	}

	row := p.pool.QueryRow(ctx, `
		UPDATE messages
		SET status         = $2,
		    delivered_at   = COALESCE($3, delivered_at),
		    failure_reason = $4
		WHERE id = $1
		RETURNING id, contact_id, content, status, sent_at, delivered_at, failure_reason
	`, id, status, deliveredAt, reason)
	return scanMessage(row)
}

func (p *Postgres) MessageStats(ctx context.Context) (model.MessageStats, error) {
	var stats model.MessageStats
	err := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM messages
	`).Scan(&stats.Sent, &stats.Delivered, &stats.Failed, &stats.Pending)
	return stats, err
}

func (p *Postgres) ScheduledMessages(ctx context.Context) ([]model.ScheduledMessage, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, contact_ids, content, scheduled_for, status, created_at
		FROM scheduled_messages
		ORDER BY scheduled_for ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduled(rows)
}

func (p *Postgres) ScheduledMessage(ctx context.Context, id int64) (model.ScheduledMessage, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, contact_ids, content, scheduled_for, status, created_at
		FROM scheduled_messages WHERE id = $1
	`, id)
	return scanOneScheduled(row)
}

func (p *Postgres) CreateScheduledMessage(ctx context.Context, contactIDs []int64, content string, scheduledFor time.Time) (model.ScheduledMessage, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO scheduled_messages (contact_ids, content, scheduled_for, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, contact_ids, content, scheduled_for, status, created_at
	`, contactIDs, content, scheduledFor, model.SchedulePending)
	return scanOneScheduled(row)
}

func (p *Postgres) UpdateScheduledMessageStatus(ctx context.Context, id int64, status model.ScheduleStatus) (model.ScheduledMessage, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE scheduled_messages
		SET status = $2
		WHERE id = $1
		RETURNING id, contact_ids, content, scheduled_for, status, created_at
	`, id, status)
	return scanOneScheduled(row)
}

func (p *Postgres) DeleteScheduledMessage(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM scheduled_messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ScheduledDueBy(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, contact_ids, content, scheduled_for, status, created_at
		FROM scheduled_messages
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
	`, model.SchedulePending, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduled(rows)
}

func scanContact(row pgx.Row) (model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Group, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	return c, err
}

func scanContacts(rows pgx.Rows) ([]model.Contact, error) {
	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Group, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (model.Message, error) {
	var m model.Message
	var reason *string
	err := row.Scan(&m.ID, &m.ContactID, &m.Content, &m.Status, &m.SentAt, &m.DeliveredAt, &reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if reason != nil {
		m.FailureReason = *reason
	}
	return m, err
}

func scanMessages(rows pgx.Rows) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var m model.Message
		var reason *string
		if err := rows.Scan(&m.ID, &m.ContactID, &m.Content, &m.Status, &m.SentAt, &m.DeliveredAt, &reason); err != nil {
			return nil, err
		}
		if reason != nil {
			m.FailureReason = *reason
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanOneScheduled(row pgx.Row) (model.ScheduledMessage, error) {
	var sm model.ScheduledMessage
	err := row.Scan(&sm.ID, &sm.ContactIDs, &sm.Content, &sm.ScheduledFor, &sm.Status, &sm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ScheduledMessage{}, ErrNotFound
	}
	return sm, err
}

func scanScheduled(rows pgx.Rows) ([]model.ScheduledMessage, error) {
	var out []model.ScheduledMessage
	for rows.Next() {
		var sm model.ScheduledMessage
		if err := rows.Scan(&sm.ID, &sm.ContactIDs, &sm.Content, &sm.ScheduledFor, &sm.Status, &sm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
