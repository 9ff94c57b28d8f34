package chatclient

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Conversation drives one open chat: history paging, optimistic sends and
// live updates from the shared connection.
type Conversation struct {
	chatID int64
	userID int64
	api    *API
	conn   *Connection
	store  *Store
	log    *zap.Logger
	detach func()
	closed sync.Once
}

// Open watches chatID on conn and routes its events into a fresh store.
// Close must be called when the view goes away.
func Open(ctx context.Context, api *API, conn *Connection, chatID, userID int64, log *zap.Logger) *Conversation {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Conversation{
		chatID: chatID,
		userID: userID,
		api:    api,
		conn:   conn,
		store:  NewStore(chatID),
		log:    log.With(zap.Int64("chat_id", chatID)),
	}
	c.detach = conn.OnAny(func(e Event) {
		if e.ChatID == chatID {
			c.store.Apply(e)
		}
	})
	conn.Join(ctx, chatID)
	return c
}

func (c *Conversation) Store() *Store {
	return c.store
}

// LoadOlder fetches the page before the oldest loaded message. It reports
// false once history is exhausted.
func (c *Conversation) LoadOlder(ctx context.Context, limit int) (bool, error) {
	page, err := c.api.Messages(ctx, c.chatID, c.store.OldestID(), limit)
	if err != nil {
		return false, err
	}
	c.store.MergePage(page.Messages)
	return page.NextBefore > 0, nil
}

// Send renders the message at once and reconciles it with the server copy.
// On failure the entry stays in the store marked failed.
func (c *Conversation) Send(ctx context.Context, content string) (string, error) {
	key := c.store.AddOptimistic(c.userID, content)
	return key, c.submit(ctx, key, content)
}

// Resend submits a failed entry again as a fresh attempt.
func (c *Conversation) Resend(ctx context.Context, key string) error {
	content, ok := c.store.Retry(key)
	if !ok {
		return nil
	}
	return c.submit(ctx, key, content)
}

func (c *Conversation) submit(ctx context.Context, key, content string) error {
	msg, err := c.api.SendMessage(ctx, c.chatID, SendRequest{Content: content})
	if err != nil {
		c.log.Warn("send failed", zap.String("temp_id", key), zap.Error(err))
		c.store.Fail(key, err)
		return err
	}
	c.store.Confirm(key, msg)
	return nil
}

func (c *Conversation) Typing(ctx context.Context) {
	c.conn.Typing(ctx, c.chatID)
}

// Close stops watching the chat. The connection stays up for other chats.
func (c *Conversation) Close(ctx context.Context) {
	c.closed.Do(func() {
		c.detach()
		c.conn.Leave(ctx, c.chatID)
	})
}
