package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const sentIndexKey = "sent_messages"

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ MessageCache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID int64, remoteMessageID string, sentAt time.Time) error {
	val := sentValue{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf("msg:%d", messageID), b, c.ttl)
	pipe.ZAdd(ctx, sentIndexKey, redis.Z{
		Score:  float64(sentAt.UTC().Unix()),
		Member: strconv.FormatInt(messageID, 10),
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) RecentSentIDs(ctx context.Context, page, pageSize int) ([]int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := c.rdb.ZCard(ctx, sentIndexKey).Result()
	if err != nil {
		return nil, 0, err
	}

	start := int64((page - 1) * pageSize)
	stop := start + int64(pageSize) - 1

	members, err := c.rdb.ZRevRange(ctx, sentIndexKey, start, stop).Result()
	if err != nil {
		return nil, 0, err
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, total, nil
}
