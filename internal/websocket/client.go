package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scope-chat/internal/commands"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Per-minute limits on client actions.
type RateLimits struct {
	MaxTypingEvents   int
	MaxControlActions int
}

var DefaultRateLimits = RateLimits{
	MaxTypingEvents:   60,
	MaxControlActions: 120,
}

// ClientRateLimiter refills every action bucket once a minute.
type ClientRateLimiter struct {
	typingTokens  int
	controlTokens int
	lastRefill    time.Time
	mu            sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		typingTokens:  DefaultRateLimits.MaxTypingEvents,
		controlTokens: DefaultRateLimits.MaxControlActions,
		lastRefill:    time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(action string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.typingTokens = DefaultRateLimits.MaxTypingEvents
		rl.controlTokens = DefaultRateLimits.MaxControlActions
		rl.lastRefill = now
	}

	switch action {
	case commands.TypeTyping:
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case commands.TypeJoinChat, commands.TypeLeaveChat:
		if rl.controlTokens > 0 {
			rl.controlTokens--
			return true
		}
	}
	return false
}

// ClientAction is a frame sent by a live client.
type ClientAction struct {
	Action string `json:"action"`
	ChatID int64  `json:"chat_id"`
}

// Client is one socket connection of an authenticated user.
type Client struct {
	ID     string
	UserID int64

	conn        *websocket.Conn
	send        chan []byte
	channels    map[string]bool
	closed      bool
	mu          sync.RWMutex
	rateLimiter *ClientRateLimiter
	connectedAt time.Time
	logger      *SocketLogger
}

func NewClient(conn *websocket.Conn, userID int64, logger *SocketLogger) *Client {
	return &Client{
		ID:          uuid.New().String(),
		UserID:      userID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		channels:    make(map[string]bool),
		rateLimiter: NewClientRateLimiter(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

func (c *Client) subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

// Channels returns a copy of the subscribed channels.
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return channels
}

// SendMessage queues msg without blocking. A full queue drops it.
func (c *Client) SendMessage(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send queue full, message dropped", c.UserID, c.ID)
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump decodes client actions until the connection fails, then returns.
func (c *Client) readPump(dispatch func(ClientAction)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket unexpected close", c.UserID, c.ID, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var action ClientAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.logger.Warn("malformed client frame", c.UserID, c.ID, zap.Error(err))
			continue
		}
		if !c.rateLimiter.Allow(action.Action) {
			c.logger.Warn("rate limit exceeded", c.UserID, c.ID, zap.String("action", action.Action))
			continue
		}
		dispatch(action)
	}
}

// writePump writes one event per frame and pings on idle.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
