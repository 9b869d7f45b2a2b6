package model

import "time"

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	ScheduleSent    ScheduleStatus = "sent"
	ScheduleFailed  ScheduleStatus = "failed"
)

type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Group     string    `json:"group,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one delivery attempt to one contact. It is created by the
// dispatcher the moment a send begins and only ever mutated through
// status transitions; it is never deleted.
type Message struct {
	ID            int64         `json:"id"`
	ContactID     int64         `json:"contactId"`
	Content       string        `json:"content"`
	Status        MessageStatus `json:"status"`
	SentAt        time.Time     `json:"sentAt"`
	DeliveredAt   *time.Time    `json:"deliveredAt,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
}

// ScheduledMessage is a deferred batch send. Once the scheduler moves it
// out of pending the status is terminal; a failed schedule is re-created
// by an operator, never retried.
type ScheduledMessage struct {
	ID           int64          `json:"id"`
	ContactIDs   []int64        `json:"contactIds"`
	Content      string         `json:"content"`
	ScheduledFor time.Time      `json:"scheduledFor"`
	Status       ScheduleStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type MessageStats struct {
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}
