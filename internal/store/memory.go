package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielvass/outbound-messaging/internal/model"
)

// Memory is an in-process Store. It is the default backend when no
// Postgres URL is configured, and the base for test fakes.
type Memory struct {
	mu sync.RWMutex

	contacts  map[int64]model.Contact
	messages  map[int64]model.Message
	scheduled map[int64]model.ScheduledMessage

	nextContactID   int64
	nextMessageID   int64
	nextScheduledID int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		contacts:        make(map[int64]model.Contact),
		messages:        make(map[int64]model.Message),
		scheduled:       make(map[int64]model.ScheduledMessage),
		nextContactID:   1,
		nextMessageID:   1,
		nextScheduledID: 1,
	}
}

func (m *Memory) Contacts(ctx context.Context) ([]model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Contact(ctx context.Context, id int64) (model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[id]
	if !ok {
		return model.Contact{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ContactByPhone(ctx context.Context, phone string) (model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.contacts {
		if c.Phone == phone {
			return c, nil
		}
	}
	return model.Contact{}, ErrNotFound
}

func (m *Memory) CreateContact(ctx context.Context, name, phone, group string) (model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.contacts {
		if c.Phone == phone {
			return model.Contact{}, ErrDuplicate
		}
	}

	c := model.Contact{
		ID:        m.nextContactID,
		Name:      name,
		Phone:     phone,
		Group:     group,
		CreatedAt: time.Now().UTC(),
	}
	m.nextContactID++
	m.contacts[c.ID] = c
	return c, nil
}

func (m *Memory) UpdateContact(ctx context.Context, id int64, upd ContactUpdate) (model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[id]
	if !ok {
		return model.Contact{}, ErrNotFound
	}

	if upd.Phone != nil && *upd.Phone != c.Phone {
		for _, other := range m.contacts {
			if other.ID != id && other.Phone == *upd.Phone {
				return model.Contact{}, ErrDuplicate
			}
		}
		c.Phone = *upd.Phone
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.Group != nil {
		c.Group = *upd.Group
	}

	m.contacts[id] = c
	return c, nil
}

func (m *Memory) DeleteContact(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(m.contacts, id)
	return nil
}

func (m *Memory) SearchContacts(ctx context.Context, query string) ([]model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lower := strings.ToLower(query)
	var out []model.Contact
	for _, c := range m.contacts {
		if strings.Contains(strings.ToLower(c.Name), lower) ||
			strings.Contains(c.Phone, query) ||
			strings.Contains(strings.ToLower(c.Group), lower) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Messages(ctx context.Context) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	// Newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

func (m *Memory) Message(ctx context.Context, id int64) (model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	return msg, nil
}

func (m *Memory) MessagesByContact(ctx context.Context, contactID int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Message
	for _, msg := range m.messages {
		if msg.ContactID == contactID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *Memory) CreateMessage(ctx context.Context, contactID int64, content string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := model.Message{
		ID:        m.nextMessageID,
		ContactID: contactID,
		Content:   content,
		Status:    model.MessagePending,
		SentAt:    time.Now().UTC(),
	}
	m.nextMessageID++
	m.messages[msg.ID] = msg
	return msg, nil
}

func (m *Memory) UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus, deliveredAt *time.Time, failureReason string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, ErrNotFound
	}

	msg.Status = status
	if deliveredAt != nil {
		msg.DeliveredAt = deliveredAt
	}
	msg.FailureReason = ""
	if status == model.MessageFailed {
		msg.FailureReason = failureReason
	}

	m.messages[id] = msg
	return msg, nil
}

func (m *Memory) MessageStats(ctx context.Context) (model.MessageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats model.MessageStats
	for _, msg := range m.messages {
		switch msg.Status {
		case model.MessageSent:
			stats.Sent++
		case model.MessageDelivered:
			stats.Delivered++
		case model.MessageFailed:
			stats.Failed++
		case model.MessagePending:
			stats.Pending++
		}
	}
	return stats, nil
}

func (m *Memory) ScheduledMessages(ctx context.Context) ([]model.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ScheduledMessage, 0, len(m.scheduled))
	for _, sm := range m.scheduled {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (m *Memory) ScheduledMessage(ctx context.Context, id int64) (model.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sm, ok := m.scheduled[id]
	if !ok {
		return model.ScheduledMessage{}, ErrNotFound
	}
	return sm, nil
}

func (m *Memory) CreateScheduledMessage(ctx context.Context, contactIDs []int64, content string, scheduledFor time.Time) (model.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm := model.ScheduledMessage{
		ID:           m.nextScheduledID,
		ContactIDs:   append([]int64(nil), contactIDs...),
		Content:      content,
		ScheduledFor: scheduledFor,
		Status:       model.SchedulePending,
		CreatedAt:    time.Now().UTC(),
	}
	m.nextScheduledID++
	m.scheduled[sm.ID] = sm
	return sm, nil
}

func (m *Memory) UpdateScheduledMessageStatus(ctx context.Context, id int64, status model.ScheduleStatus) (model.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sm, ok := m.scheduled[id]
	if !ok {
		return model.ScheduledMessage{}, ErrNotFound
	}
	sm.Status = status
	m.scheduled[id] = sm
	return sm, nil
}

func (m *Memory) DeleteScheduledMessage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scheduled[id]; !ok {
		return ErrNotFound
	}
	delete(m.scheduled, id)
	return nil
}

func (m *Memory) ScheduledDueBy(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ScheduledMessage
	for _, sm := range m.scheduled {
		if sm.Status == model.SchedulePending && !sm.ScheduledFor.After(t) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}
