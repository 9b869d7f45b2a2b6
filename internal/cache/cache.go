package cache

import (
	"context"
	"time"
)

// MessageCache records successfully sent messages for cheap recent-sent
// lookups. It is an optional fast path: the record store stays the
// source of truth and nothing in the send pipeline depends on it.
type MessageCache interface {
	StoreSent(ctx context.Context, messageID int64, remoteMessageID string, sentAt time.Time) error
	// RecentSentIDs returns one page of sent message ids, newest
	// first, along with the total number of cached entries.
	RecentSentIDs(ctx context.Context, page, pageSize int) ([]int64, int64, error)
}
