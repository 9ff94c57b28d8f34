package chatclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketWriteWait = 10 * time.Second
	socketReadLimit = 1 << 20
)

var errNotConnected = errors.New("feed not connected")

// SocketFeed receives events over the server's websocket endpoint.
type SocketFeed struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewSocketFeed targets a ws:// or wss:// URL such as ws://host/v1/ws.
func NewSocketFeed(url, token string, log *zap.Logger) *SocketFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketFeed{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (f *SocketFeed) Transport() Transport {
	return TransportSocket
}

func (f *SocketFeed) Connect(ctx context.Context, deliver func(Event)) error {
	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return &ConnectError{Transport: TransportSocket, Err: err}
	}
	conn.SetReadLimit(socketReadLimit)

	done := make(chan struct{})
	f.mu.Lock()
	f.conn = conn
	f.done = done
	f.mu.Unlock()

	go f.readLoop(conn, done, deliver)
	return nil
}

func (f *SocketFeed) readLoop(conn *websocket.Conn, done chan struct{}, deliver func(Event)) {
	defer func() {
		conn.Close()
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		close(done)
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warn("socket read failed", zap.Error(err))
			}
			return
		}
		deliver(event)
	}
}

func (f *SocketFeed) Disconnect() error {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(socketWriteWait))
	return conn.Close()
}

func (f *SocketFeed) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		return closedChan()
	}
	return f.done
}

func (f *SocketFeed) Join(ctx context.Context, chatID int64) error {
	return f.send("join_chat", chatID)
}

func (f *SocketFeed) Leave(ctx context.Context, chatID int64) error {
	return f.send("leave_chat", chatID)
}

func (f *SocketFeed) Typing(ctx context.Context, chatID int64) error {
	return f.send("typing", chatID)
}

// send holds the lock for the write since gorilla allows one writer.
func (f *SocketFeed) send(action string, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return errNotConnected
	}
	if err := f.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	return f.conn.WriteJSON(socketAction{Action: action, ChatID: chatID})
}
