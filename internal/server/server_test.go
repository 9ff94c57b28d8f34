package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scope-chat/config"
	"scope-chat/internal/auth"
	"scope-chat/internal/domain/chat"
	"scope-chat/internal/events"
	"scope-chat/internal/handler"
	"scope-chat/internal/metrics"
	"scope-chat/internal/repository"
	"scope-chat/internal/services"
	"scope-chat/internal/taskapi"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

type testApp struct {
	handler  http.Handler
	verifier *auth.Verifier
	gateway  *events.Gateway
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWithLog(t, nil)
}

// newTestAppWithLog lets a test wrap the event log served by the polling
// endpoint.
func newTestAppWithLog(t *testing.T, wrap func(chatevents.EventLog) chatevents.EventLog) *testApp {
	t.Helper()
	tasks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":55}`))
	}))
	t.Cleanup(tasks.Close)

	cfg := &config.Config{AppPort: "0", AppMode: TestMode}
	log := logger.NewNop()
	m := metrics.New()
	store := repository.NewMemoryStore()
	broker := chatevents.NewMemoryBroker(100)
	gateway := events.NewGateway(broker, log, events.Options{Workers: 1, Metrics: m})
	t.Cleanup(gateway.Close)

	chats := services.NewChatService(store, gateway, nil, log)
	messages := services.NewMessageService(store, gateway, taskapi.NewClient(tasks.URL, "", time.Second), log)
	typing := services.NewTypingService(store.Chats(), nil, gateway, log)
	verifier := auth.NewVerifier("test-secret")

	var eventLog chatevents.EventLog = broker
	if wrap != nil {
		eventLog = wrap(broker)
	}

	srv := New(cfg, log)
	srv.SetupRoutes(&Handlers{
		Chats:    handler.NewChatHandler(chats, messages),
		Messages: handler.NewMessageHandler(messages),
		Events:   handler.NewEventsHandler(chats, typing, eventLog),
	}, RouteDeps{Verifier: verifier, Metrics: m})

	return &testApp{handler: srv.Handler(), verifier: verifier, gateway: gateway}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (a *testApp) do(t *testing.T, userID int64, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := a.verifier.Issue(userID, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestChatFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, 1, http.MethodPost, "/v1/chats", map[string]interface{}{"type": "group", "name": "design"})
	if code != http.StatusCreated {
		t.Fatalf("create chat: %d %s", code, env.Error)
	}
	var c chat.Chat
	decode(t, env, &c)
	base := "/v1/chats/" + itoa(c.ID)

	if code, env = app.do(t, 1, http.MethodPost, base+"/members", map[string]interface{}{"user_id": 2}); code != http.StatusCreated {
		t.Fatalf("add member: %d %s", code, env.Error)
	}

	code, env = app.do(t, 2, http.MethodGet, base+"/events", nil)
	if code != http.StatusOK {
		t.Fatalf("events tail: %d %s", code, env.Error)
	}
	var tail struct {
		Cursor string `json:"cursor"`
	}
	decode(t, env, &tail)

	code, env = app.do(t, 2, http.MethodPost, base+"/messages", map[string]interface{}{"content": "hi @user:1"})
	if code != http.StatusCreated {
		t.Fatalf("send: %d %s", code, env.Error)
	}
	var sent chat.Message
	decode(t, env, &sent)
	if len(sent.Mentions) != 1 || sent.Mentions[0] != 1 {
		t.Fatalf("mentions: %v", sent.Mentions)
	}

	cursor := tail.Cursor
	deadline := time.Now().Add(2 * time.Second)
	for found := false; !found; {
		_, env = app.do(t, 2, http.MethodGet, base+"/events?after="+cursor, nil)
		var page struct {
			Events []chatevents.Event `json:"events"`
			Cursor string             `json:"cursor"`
		}
		decode(t, env, &page)
		for _, e := range page.Events {
			if e.Kind == chatevents.KindNewMessage {
				found = true
			}
		}
		if len(page.Events) > 0 && page.Cursor == cursor {
			t.Fatal("cursor did not advance")
		}
		cursor = page.Cursor
		if !found {
			if time.Now().After(deadline) {
				t.Fatal("new_message never reached the event log")
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	code, env = app.do(t, 1, http.MethodGet, base+"/messages?limit=10", nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %s", code, env.Error)
	}
	var page struct {
		Messages []chat.Message `json:"messages"`
	}
	decode(t, env, &page)
	if len(page.Messages) != 1 || page.Messages[0].ID != sent.ID {
		t.Fatalf("unexpected history: %+v", page.Messages)
	}

	if code, env = app.do(t, 3, http.MethodGet, base+"/messages", nil); code != http.StatusForbidden || env.Code != "NOT_MEMBER" {
		t.Fatalf("outsider list: %d %s", code, env.Code)
	}
	msgPath := "/v1/messages/" + itoa(sent.ID)
	if code, env = app.do(t, 1, http.MethodPatch, msgPath, map[string]string{"content": "edited"}); code != http.StatusForbidden || env.Code != "FORBIDDEN" {
		t.Fatalf("admin edit: %d %s", code, env.Code)
	}

	code, env = app.do(t, 1, http.MethodPost, msgPath+"/task", map[string]string{"title": "follow up"})
	if code != http.StatusCreated {
		t.Fatalf("create task: %d %s", code, env.Error)
	}
	var linked chat.Message
	decode(t, env, &linked)
	if linked.TaskID == nil || *linked.TaskID != 55 {
		t.Fatalf("task id: %v", linked.TaskID)
	}
	if code, env = app.do(t, 1, http.MethodPost, msgPath+"/task", map[string]string{"title": "again"}); code != http.StatusConflict || env.Code != "ALREADY_LINKED" {
		t.Fatalf("second task: %d %s", code, env.Code)
	}

	code, env = app.do(t, 1, http.MethodGet, "/v1/mentions", nil)
	if code != http.StatusOK {
		t.Fatalf("mentions: %d", code)
	}
	var mentions struct {
		Messages []chat.Message `json:"messages"`
	}
	decode(t, env, &mentions)
	if len(mentions.Messages) != 1 {
		t.Fatalf("expected one mention, got %d", len(mentions.Messages))
	}
}

func TestDirectChatEndpointIsIdempotent(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, 3, http.MethodPost, "/v1/chats/direct", map[string]int64{"user_id": 5})
	if code != http.StatusCreated {
		t.Fatalf("first: %d %s", code, env.Error)
	}
	var first struct {
		Chat chat.Chat `json:"chat"`
	}
	decode(t, env, &first)

	code, env = app.do(t, 5, http.MethodPost, "/v1/chats/direct", map[string]int64{"user_id": 3})
	if code != http.StatusOK {
		t.Fatalf("second: %d %s", code, env.Error)
	}
	var second struct {
		Chat    chat.Chat `json:"chat"`
		Created bool      `json:"created"`
	}
	decode(t, env, &second)
	if second.Created || second.Chat.ID != first.Chat.ID {
		t.Fatalf("expected chat %d reused, got %+v", first.Chat.ID, second)
	}
}

func TestAuthAndOperationalEndpoints(t *testing.T) {
	app := newTestApp(t)

	if code, env := app.do(t, 0, http.MethodGet, "/v1/chats", nil); code != http.StatusUnauthorized || env.Code != "UNAUTHORIZED" {
		t.Fatalf("anonymous: %d %s", code, env.Code)
	}
	if code, _ := app.do(t, 0, http.MethodGet, "/ping", nil); code != http.StatusOK {
		t.Fatalf("ping: %d", code)
	}
	if code, _ := app.do(t, 0, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "scope_chat_http_requests_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

type flakyLog struct {
	chatevents.EventLog
	down atomic.Bool
}

func (l *flakyLog) Since(ctx context.Context, chatID int64, cursor string, limit int64) ([]chatevents.Event, string, error) {
	if l.down.Load() {
		return nil, "", errors.New("redis: connection refused")
	}
	return l.EventLog.Since(ctx, chatID, cursor, limit)
}

func TestPollEndpointSeparatesBadCursorsFromOutages(t *testing.T) {
	var flaky *flakyLog
	app := newTestAppWithLog(t, func(inner chatevents.EventLog) chatevents.EventLog {
		flaky = &flakyLog{EventLog: inner}
		return flaky
	})

	code, env := app.do(t, 1, http.MethodPost, "/v1/chats", map[string]interface{}{"type": "group", "name": "ops"})
	if code != http.StatusCreated {
		t.Fatalf("create chat: %d %s", code, env.Error)
	}
	var c chat.Chat
	decode(t, env, &c)
	events := "/v1/chats/" + itoa(c.ID) + "/events"

	code, env = app.do(t, 1, http.MethodGet, events+"?after=garbage", nil)
	if code != http.StatusBadRequest || env.Code != "INVALID_REQUEST" {
		t.Fatalf("malformed cursor: %d %s", code, env.Code)
	}

	flaky.down.Store(true)
	code, env = app.do(t, 1, http.MethodGet, events+"?after=0-0", nil)
	if code != http.StatusInternalServerError || env.Code != "INTERNAL_ERROR" {
		t.Fatalf("log outage: %d %s", code, env.Code)
	}

	flaky.down.Store(false)
	if code, _ = app.do(t, 1, http.MethodGet, events+"?after=0-0", nil); code != http.StatusOK {
		t.Fatalf("after recovery: %d", code)
	}
}

func TestProjectChatsEndpoint(t *testing.T) {
	app := newTestApp(t)
	code, env := app.do(t, 1, http.MethodPost, "/v1/chats", map[string]interface{}{"type": "project", "name": "roadmap", "project_id": 7})
	if code != http.StatusCreated {
		t.Fatalf("create project chat: %d %s", code, env.Error)
	}

	var page struct {
		Chats []chat.Chat `json:"chats"`
	}
	code, env = app.do(t, 1, http.MethodGet, "/v1/projects/7/chats", nil)
	if code != http.StatusOK {
		t.Fatalf("project chats: %d %s", code, env.Error)
	}
	decode(t, env, &page)
	if len(page.Chats) != 1 {
		t.Fatalf("member sees %d chats", len(page.Chats))
	}

	code, env = app.do(t, 2, http.MethodGet, "/v1/projects/7/chats", nil)
	decode(t, env, &page)
	if code != http.StatusOK || len(page.Chats) != 0 {
		t.Fatalf("outsider: %d %d chats", code, len(page.Chats))
	}
}
