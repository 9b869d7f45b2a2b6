package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/danielvass/outbound-messaging/internal/model"
	"github.com/danielvass/outbound-messaging/internal/store"
	"github.com/danielvass/outbound-messaging/internal/transport"
)

const (
	DefaultSpacing     = 2 * time.Second
	DefaultContentMax  = 4096
	DefaultSendTimeout = 10 * time.Second
)

const reasonContactNotFound = "contact not found"

var (
	ErrEmptyContent   = errors.New("content must not be empty")
	ErrContentTooLong = errors.New("content exceeds maximum length")
	ErrNoRecipients   = errors.New("recipient list must not be empty")
)

// Result is the per-recipient outcome of one batch send.
type Result struct {
	ContactID int64  `json:"contactId"`
	Success   bool   `json:"success"`
	MessageID int64  `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Store is the slice of the record store the dispatcher needs.
type Store interface {
	Contact(ctx context.Context, id int64) (model.Contact, error)
	CreateMessage(ctx context.Context, contactID int64, content string) (model.Message, error)
	UpdateMessageStatus(ctx context.Context, id int64, status model.MessageStatus, deliveredAt *time.Time, failureReason string) (model.Message, error)
}

type Config struct {
	// Spacing is the minimum gap between consecutive transport calls
	// within one batch. It respects the provider's rate limit and is
	// never applied after the last recipient.
	Spacing     time.Duration
	ContentMax  int
	SendTimeout time.Duration
	Retry       RetryPolicy
}

// Dispatcher turns a content string plus an ordered recipient list into
// individually tracked delivery attempts. Recipients are isolated: one
// bad number never aborts the rest of the batch.
type Dispatcher struct {
	store  Store
	client transport.Client
	cfg    Config

	onSent func(ctx context.Context, messageID int64, remoteMessageID string, sentAt time.Time) error
}

func New(st Store, client transport.Client, cfg Config) *Dispatcher {
	if cfg.Spacing <= 0 {
		cfg.Spacing = DefaultSpacing
	}
	if cfg.ContentMax <= 0 {
		cfg.ContentMax = DefaultContentMax
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{store: st, client: client, cfg: cfg}
}

// WithSentHook registers a callback invoked after a message reaches the
// sent status. Hook errors are not the dispatcher's concern.
func (d *Dispatcher) WithSentHook(fn func(ctx context.Context, messageID int64, remoteMessageID string, sentAt time.Time) error) *Dispatcher {
	d.onSent = fn
	return d
}

// Validate checks a send request without side effects. ScheduleSend
// applies the same rules at creation time so nothing invalid reaches
// promotion.
func (d *Dispatcher) Validate(content string, contactIDs []int64) error {
	if content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > d.cfg.ContentMax {
		return fmt.Errorf("%w: %d > %d", ErrContentTooLong, utf8.RuneCountInString(content), d.cfg.ContentMax)
	}
	if len(contactIDs) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Dispatch executes one batch send and returns one outcome per
// recipient, in input order. Unresolvable contacts are skipped without
// creating a message record. The call blocks for roughly
// spacing*(n-1) plus transport time; callers must not treat it as
// fire-and-forget. A non-nil error means the store became unavailable
// mid-batch; the results accumulated so far are still returned.
func (d *Dispatcher) Dispatch(ctx context.Context, content string, contactIDs []int64) ([]Result, error) {
	if err := d.Validate(content, contactIDs); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Every(d.cfg.Spacing), 1)
	results := make([]Result, 0, len(contactIDs))

	for _, contactID := range contactIDs {
		contact, err := d.store.Contact(ctx, contactID)
		if errors.Is(err, store.ErrNotFound) {
			results = append(results, Result{ContactID: contactID, Error: reasonContactNotFound})
			continue
		}
		if err != nil {
			return results, fmt.Errorf("resolve contact %d: %w", contactID, err)
		}

		msg, err := d.store.CreateMessage(ctx, contactID, content)
		if err != nil {
			return results, fmt.Errorf("create message for contact %d: %w", contactID, err)
		}

		if err := limiter.Wait(ctx); err != nil {
			// Batch cancelled between recipients; don't leave the
			// record pending forever.
			_, _ = d.store.UpdateMessageStatus(context.WithoutCancel(ctx), msg.ID, model.MessageFailed, nil, err.Error())
			results = append(results, Result{ContactID: contactID, MessageID: msg.ID, Error: err.Error()})
			return results, err
		}

		remoteID, sendErr := d.send(ctx, contact.Phone, content)
		if sendErr != nil {
			slog.Warn("message send failed",
				"message_id", msg.ID,
				"contact_id", contactID,
				"error", sendErr.Error(),
			)
			if _, err := d.store.UpdateMessageStatus(ctx, msg.ID, model.MessageFailed, nil, sendErr.Error()); err != nil {
				results = append(results, Result{ContactID: contactID, MessageID: msg.ID, Error: sendErr.Error()})
				return results, fmt.Errorf("mark message %d failed: %w", msg.ID, err)
			}
			results = append(results, Result{ContactID: contactID, MessageID: msg.ID, Error: sendErr.Error()})
			continue
		}

		if _, err := d.store.UpdateMessageStatus(ctx, msg.ID, model.MessageSent, nil, ""); err != nil {
			results = append(results, Result{ContactID: contactID, MessageID: msg.ID, Success: true})
			return results, fmt.Errorf("mark message %d sent: %w", msg.ID, err)
		}
		if d.onSent != nil {
			_ = d.onSent(ctx, msg.ID, remoteID, time.Now().UTC())
		}
		results = append(results, Result{ContactID: contactID, MessageID: msg.ID, Success: true})
	}

	return results, nil
}

// send is one delivery with the retry policy and a per-attempt timeout
// around the only call that can hang.
func (d *Dispatcher) send(ctx context.Context, phone, content string) (string, error) {
	var remoteID string
	err := d.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		id, err := d.client.Send(attemptCtx, phone, content)
		if err != nil {
			return err
		}
		remoteID = id
		return nil
	})
	return remoteID, err
}
