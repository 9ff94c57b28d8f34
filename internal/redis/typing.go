package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TypingTracker keeps who is typing per chat in a sorted set scored by the
// expiry time in milliseconds. Entries are never persisted elsewhere.
type TypingTracker struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewTypingTracker(client *goredis.Client, ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &TypingTracker{client: client, ttl: ttl, now: time.Now}
}

func typingKey(chatID int64) string {
	return fmt.Sprintf("typing:%d", chatID)
}

// Track marks userID as typing in chatID. fresh is false when the user was
// already marked typing, so callers can skip re-broadcasting.
func (t *TypingTracker) Track(ctx context.Context, chatID, userID int64) (fresh bool, err error) {
	key := typingKey(chatID)
	member := strconv.FormatInt(userID, 10)
	now := t.now()

	pipe := t.client.Pipeline()
	prev := pipe.ZScore(ctx, key, member)
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now.Add(t.ttl).UnixMilli()), Member: member})
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return false, err
	}

	score, err := prev.Result()
	if err == goredis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) <= now.UnixMilli(), nil
}

func (t *TypingTracker) Stop(ctx context.Context, chatID, userID int64) error {
	return t.client.ZRem(ctx, typingKey(chatID), strconv.FormatInt(userID, 10)).Err()
}

// Typing returns the users whose typing mark has not expired.
func (t *TypingTracker) Typing(ctx context.Context, chatID int64) ([]int64, error) {
	key := typingKey(chatID)
	nowMs := strconv.FormatInt(t.now().UnixMilli(), 10)

	pipe := t.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", nowMs)
	members := pipe.ZRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, err
	}

	out := make([]int64, 0, len(members.Val()))
	for _, m := range members.Val() {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
