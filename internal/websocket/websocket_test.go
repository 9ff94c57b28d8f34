package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"scope-chat/internal/auth"
	"scope-chat/internal/domain/chat"
	"scope-chat/internal/repository"
	chatevents "scope-chat/pkg/events"
)

type harness struct {
	server   *httptest.Server
	hub      *Hub
	broker   *chatevents.MemoryBroker
	verifier *auth.Verifier
	chatID   int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := repository.NewMemoryStore()
	c := chat.Chat{Type: chat.TypeGroup, CreatedBy: 1}
	if err := store.Chats().Create(ctx, &c); err != nil {
		t.Fatal(err)
	}
	_ = store.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 1, Role: chat.RoleAdmin})
	_ = store.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 2, Role: chat.RoleMember})

	hub := NewHub(nil)
	broker := chatevents.NewMemoryBroker(100)
	verifier := auth.NewVerifier("test-secret")
	handler := NewHandler(verifier, hub, NewChannelAuthorizer(store.Chats(), nil), nil, nil)

	runCtx, cancel := context.WithCancel(ctx)
	bridge := NewBridge(broker, hub, nil)
	go func() { _ = bridge.Run(runCtx) }()

	engine := gin.New()
	engine.GET("/v1/ws", handler.Connect)
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	waitFor(t, func() bool { return broker.SubscriberCount() == 1 })
	return &harness{server: srv, hub: hub, broker: broker, verifier: verifier, chatID: c.ID}
}

func (h *harness) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := h.verifier.Issue(userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func readEvent(t *testing.T, conn *websocket.Conn) chatevents.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev chatevents.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestConnectRequiresToken(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.server.URL + "/v1/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestJoinedClientReceivesChatEvents(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 2)
	channel := chatevents.ChatChannel(h.chatID)

	if err := conn.WriteJSON(ClientAction{Action: "join_chat", ChatID: h.chatID}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.hub.GetChannelSubscriberCount(channel) == 1 })

	ev, _ := chatevents.New(h.chatID, chatevents.KindNewMessage, chat.Message{ID: 10, ChatID: h.chatID, Content: "hi"})
	if err := h.broker.Publish(context.Background(), channel, ev); err != nil {
		t.Fatal(err)
	}
	got := readEvent(t, conn)
	if got.Kind != chatevents.KindNewMessage || got.ChatID != h.chatID {
		t.Fatalf("unexpected event: %+v", got)
	}
	var msg chat.Message
	if err := got.Decode(&msg); err != nil || msg.ID != 10 {
		t.Fatalf("payload: %+v %v", msg, err)
	}

	if err := conn.WriteJSON(ClientAction{Action: "leave_chat", ChatID: h.chatID}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return h.hub.GetChannelSubscriberCount(channel) == 0 })
	if h.hub.GetClientCount() != 1 {
		t.Fatal("leaving the last chat must keep the connection")
	}
}

func TestNonMemberJoinIsRejected(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 77)

	if err := conn.WriteJSON(ClientAction{Action: "join_chat", ChatID: h.chatID}); err != nil {
		t.Fatal(err)
	}
	got := readEvent(t, conn)
	if got.Kind != chatevents.KindError {
		t.Fatalf("expected error event, got %+v", got)
	}
	var p chatevents.ErrorPayload
	if err := got.Decode(&p); err != nil || p.Code != "NOT_MEMBER" {
		t.Fatalf("error payload: %+v %v", p, err)
	}
	if n := h.hub.GetChannelSubscriberCount(chatevents.ChatChannel(h.chatID)); n != 0 {
		t.Fatalf("outsider subscribed: %d", n)
	}
}

func TestRemovedMemberIsDetached(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, 2)
	channel := chatevents.ChatChannel(h.chatID)

	_ = conn.WriteJSON(ClientAction{Action: "join_chat", ChatID: h.chatID})
	waitFor(t, func() bool { return h.hub.GetChannelSubscriberCount(channel) == 1 })

	ev, _ := chatevents.New(h.chatID, chatevents.KindUserLeft, chatevents.MemberPayload{UserID: 2})
	if err := h.broker.Publish(context.Background(), channel, ev); err != nil {
		t.Fatal(err)
	}
	if got := readEvent(t, conn); got.Kind != chatevents.KindUserLeft {
		t.Fatalf("expected user_left, got %s", got.Kind)
	}
	waitFor(t, func() bool { return h.hub.GetChannelSubscriberCount(channel) == 0 })
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{ID: "c1", UserID: 1, send: make(chan []byte, 1), channels: map[string]bool{}, logger: NewSocketLogger(nil)}
	hub.Register(client)
	hub.Subscribe(client, "channel:chat:1")
	hub.Unregister(client)
	hub.Unregister(client)
	if client.SendMessage([]byte("x")) {
		t.Fatal("send after unregister should be refused")
	}
	if hub.GetChannelSubscriberCount("channel:chat:1") != 0 || hub.GetClientCount() != 0 {
		t.Fatal("hub not cleaned up")
	}
}

// flakySubscriber fails the first attempts, then hands over to the broker.
type flakySubscriber struct {
	broker   *chatevents.MemoryBroker
	failures int32
	attempts int32
}

func (f *flakySubscriber) Subscribe(ctx context.Context, patterns []string, handler chatevents.Handler) error {
	if atomic.AddInt32(&f.attempts, 1) <= f.failures {
		return errors.New("redis: connection reset by peer")
	}
	return f.broker.Subscribe(ctx, patterns, handler)
}

func TestBridgeResubscribesAfterFailure(t *testing.T) {
	broker := chatevents.NewMemoryBroker(10)
	sub := &flakySubscriber{broker: broker, failures: 2}
	bridge := NewBridge(sub, NewHub(nil), nil)
	bridge.retry = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- bridge.Run(ctx) }()

	waitFor(t, func() bool { return broker.SubscriberCount() == 1 })
	if n := atomic.LoadInt32(&sub.attempts); n != 3 {
		t.Fatalf("subscribe attempts = %d, want 3", n)
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("run returned %v on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}
