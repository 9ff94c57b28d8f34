package websocket

import (
	"context"

	"scope-chat/internal/redis"
)

// MembershipSource is the authoritative membership predicate.
type MembershipSource interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

// ChannelAuthorizer decides whether a socket may join a chat channel. With
// a cache, answers are served from Redis for a short TTL.
type ChannelAuthorizer struct {
	source MembershipSource
	cache  *redis.MemberCache
}

func NewChannelAuthorizer(source MembershipSource, cache *redis.MemberCache) *ChannelAuthorizer {
	return &ChannelAuthorizer{source: source, cache: cache}
}

func (a *ChannelAuthorizer) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	if a.cache == nil {
		return a.source.IsMember(ctx, chatID, userID)
	}
	return a.cache.IsMember(ctx, chatID, userID, func(ctx context.Context) (bool, error) {
		return a.source.IsMember(ctx, chatID, userID)
	})
}
