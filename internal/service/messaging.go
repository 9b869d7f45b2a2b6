package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielvass/outbound-messaging/internal/cache"
	"github.com/danielvass/outbound-messaging/internal/dispatch"
	"github.com/danielvass/outbound-messaging/internal/model"
)

// Dispatcher executes one batch send. Satisfied by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, content string, contactIDs []int64) ([]dispatch.Result, error)
	Validate(content string, contactIDs []int64) error
}

// Store is the slice of the record store the messaging service needs.
type Store interface {
	CreateScheduledMessage(ctx context.Context, contactIDs []int64, content string, scheduledFor time.Time) (model.ScheduledMessage, error)
	UpdateScheduledMessageStatus(ctx context.Context, id int64, status model.ScheduleStatus) (model.ScheduledMessage, error)
	ScheduledDueBy(ctx context.Context, t time.Time) ([]model.ScheduledMessage, error)
	Messages(ctx context.Context) ([]model.Message, error)
	MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error)
}

// Messaging is the caller-facing send surface: immediate sends,
// deferred sends and the periodic promotion of due deferred sends
// through the same dispatcher.
type Messaging struct {
	store      Store
	dispatcher Dispatcher
	cache      cache.MessageCache // optional, may be nil
}

func NewMessaging(st Store, d Dispatcher, mc cache.MessageCache) *Messaging {
	return &Messaging{store: st, dispatcher: d, cache: mc}
}

// SendNow executes an immediate batch send. The call blocks until every
// recipient has been attempted.
func (m *Messaging) SendNow(ctx context.Context, content string, contactIDs []int64) ([]dispatch.Result, error) {
	return m.dispatcher.Dispatch(ctx, content, contactIDs)
}

// ScheduleSend records a deferred batch send. The request is validated
// with the same rules as an immediate send, so nothing malformed ever
// reaches promotion; the scheduler picks the record up once
// scheduledFor passes.
func (m *Messaging) ScheduleSend(ctx context.Context, content string, contactIDs []int64, at time.Time) (model.ScheduledMessage, error) {
	if err := m.dispatcher.Validate(content, contactIDs); err != nil {
		return model.ScheduledMessage{}, err
	}
	return m.store.CreateScheduledMessage(ctx, contactIDs, content, at)
}

// PromoteDue is the scheduler tick body. It feeds every due scheduled
// message through the dispatcher and moves it to a terminal status.
// A record-level failure never aborts the tick; a failure of the due
// query itself ends the tick and the next tick retries naturally.
func (m *Messaging) PromoteDue(ctx context.Context) {
	due, err := m.store.ScheduledDueBy(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("due scheduled message query failed", "error", err)
		return
	}

	for _, sm := range due {
		m.promote(ctx, sm)
	}
}

func (m *Messaging) promote(ctx context.Context, sm model.ScheduledMessage) {
	// Sent means at least one recipient was delivered to; failed means
	// the dispatch errored, the recipient list was empty, or every
	// recipient failed. Per-recipient detail lives on the message
	// records either way.
	status := model.ScheduleSent

	if len(sm.ContactIDs) == 0 {
		slog.Error("scheduled message has no recipients", "scheduled_id", sm.ID)
		status = model.ScheduleFailed
	} else {
		results, err := m.dispatcher.Dispatch(ctx, sm.Content, sm.ContactIDs)
		switch {
		case err != nil:
			slog.Error("scheduled dispatch failed", "scheduled_id", sm.ID, "error", err)
			status = model.ScheduleFailed
		case !anySucceeded(results):
			status = model.ScheduleFailed
		}
	}

	// The transition out of pending is the sole guard against
	// reprocessing, so it must land even when ctx was cancelled
	// mid-dispatch.
	if _, err := m.store.UpdateScheduledMessageStatus(context.WithoutCancel(ctx), sm.ID, status); err != nil {
		slog.Error("scheduled message status update failed", "scheduled_id", sm.ID, "error", err)
	}
}

func anySucceeded(results []dispatch.Result) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// RecentSent returns one page of sent messages, newest first. With a
// cache configured the page comes from the sent-message index;
// otherwise it is derived from the store.
func (m *Messaging) RecentSent(ctx context.Context, page, pageSize int) ([]model.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	if m.cache != nil {
		ids, total, err := m.cache.RecentSentIDs(ctx, page, pageSize)
		if err != nil {
			return nil, 0, err
		}
		if len(ids) == 0 {
			return []model.Message{}, total, nil
		}
		msgs, err := m.store.MessagesByIDs(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		return msgs, total, nil
	}

	all, err := m.store.Messages(ctx)
	if err != nil {
		return nil, 0, err
	}

	var sent []model.Message
	for _, msg := range all {
		if msg.Status == model.MessageSent {
			sent = append(sent, msg)
		}
	}

	total := int64(len(sent))
	start := (page - 1) * pageSize
	if start >= len(sent) {
		return []model.Message{}, total, nil
	}
	end := start + pageSize
	if end > len(sent) {
		end = len(sent)
	}
	return sent[start:end], total, nil
}
