package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Connection is one live socket of a user.
type Connection struct {
	ClientID    string    `json:"client_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// PresenceStore records live socket connections per user in a hash that
// expires unless refreshed, so a crashed node's entries age out.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func connectionsKey(userID int64) string {
	return fmt.Sprintf("connections:%d", userID)
}

// TrackConnection registers clientID for userID.
func (p *PresenceStore) TrackConnection(ctx context.Context, userID int64, clientID string) error {
	data, err := json.Marshal(Connection{ClientID: clientID, ConnectedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	key := connectionsKey(userID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, key, clientID, data)
	pipe.Expire(ctx, key, p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *PresenceStore) RemoveConnection(ctx context.Context, userID int64, clientID string) error {
	return p.client.HDel(ctx, connectionsKey(userID), clientID).Err()
}

func (p *PresenceStore) Connections(ctx context.Context, userID int64) ([]Connection, error) {
	data, err := p.client.HGetAll(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Connection, 0, len(data))
	for _, raw := range data {
		var c Connection
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := p.client.HLen(ctx, connectionsKey(userID)).Result()
	return n > 0, err
}
