package store

import (
	"context"
	"errors"
	"time"

	"github.com/danielvass/outbound-messaging/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// ContactUpdate carries the fields of a contact update; nil means
// "leave unchanged".
type ContactUpdate struct {
	Name  *string
	Phone *string
	Group *string
}

// Store holds contacts, messages and scheduled messages. Individual
// operations are atomic; no cross-record transactions are offered.
type Store interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
	Contact(ctx context.Context, id int64) (model.Contact, error)
	ContactByPhone(ctx context.Context, phone string) (model.Contact, error)
	CreateContact(ctx context.Context, name, phone, group string) (model.Contact, error)
	UpdateContact(ctx context.Context, id int64, upd ContactUpdate) (model.Contact, error)
	DeleteContact(ctx context.Context, id int64) error
	SearchContacts(ctx context.Context, query string) ([]model.Contact, error)

	Messages(ctx context.Context) ([]model.Message, error)
	Message(ctx context.Context, id int64) (model.Message, error)
	MessagesByContact(ctx context.Context, contactID int64) ([]model.Message, error)
	MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error)
	CreateMessage(ctx context.Context, contactID int64, content string) (model.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus, deliveredAt *time.Time, failureReason string) (model.Message, error)
	MessageStats(ctx context.Context) (model.MessageStats, error)

	ScheduledMessages(ctx context.Context) ([]model.ScheduledMessage, error)
	ScheduledMessage(ctx context.Context, id int64) (model.ScheduledMessage, error)
	CreateScheduledMessage(ctx context.Context, contactIDs []int64, content string, scheduledFor time.Time) (model.ScheduledMessage, error)
	UpdateScheduledMessageStatus(ctx context.Context, id int64, status model.ScheduleStatus) (model.ScheduledMessage, error)
	DeleteScheduledMessage(ctx context.Context, id int64) error
	// ScheduledDueBy returns pending scheduled messages with
	// scheduledFor at or before t.
	ScheduledDueBy(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error)
}
