package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key pattern:
// - member:{chat_id}:{user_id} - "1" or "0", TTL refreshed on load

// MemberCache caches membership answers for the socket authorizer, which
// checks on every join. Membership changes must call Invalidate.
type MemberCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewMemberCache(client *goredis.Client, ttl time.Duration) *MemberCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemberCache{client: client, ttl: ttl}
}

func memberKey(chatID, userID int64) string {
	return fmt.Sprintf("member:%d:%d", chatID, userID)
}

// IsMember answers from cache, falling back to load on a miss. A cache
// failure degrades to load.
func (c *MemberCache) IsMember(ctx context.Context, chatID, userID int64, load func(context.Context) (bool, error)) (bool, error) {
	key := memberKey(chatID, userID)
	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return val == "1", nil
	}

	ok, err := load(ctx)
	if err != nil {
		return false, err
	}
	flag := "0"
	if ok {
		flag = "1"
	}
	_ = c.client.Set(ctx, key, flag, c.ttl).Err()
	return ok, nil
}

func (c *MemberCache) Invalidate(ctx context.Context, chatID, userID int64) error {
	return c.client.Del(ctx, memberKey(chatID, userID)).Err()
}

// InvalidateChat drops every cached answer for a chat.
func (c *MemberCache) InvalidateChat(ctx context.Context, chatID int64) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("member:%d:*", chatID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
