package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestConversationSendFailureAndResend(t *testing.T) {
	var attempts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chats/42/messages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if atomic.AddInt32(&attempts, 1) == 1 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "try later", "code": "UNAVAILABLE"})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": msg(11, "hello")})
		case http.MethodGet:
			if r.URL.Query().Get("before") == "11" {
				writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": MessagePage{Messages: []Message{msg(9, "a"), msg(10, "b")}}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": MessagePage{Messages: []Message{}}})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := NewConnection(nil, &fakeFeed{transport: TransportPolling}, ConnectionOptions{})
	conv := Open(context.Background(), NewAPI(srv.URL, "secret", time.Second), conn, 42, 1, nil)
	defer conv.Close(context.Background())

	key, err := conv.Send(context.Background(), "hello")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusServiceUnavailable || fe.Code != "UNAVAILABLE" {
		t.Fatalf("expected fetch error, got %v", err)
	}
	entries := conv.Store().Messages()
	if len(entries) != 1 || entries[0].Status != StatusFailed {
		t.Fatalf("failed send should stay visible: %+v", entries)
	}

	if err := conv.Resend(context.Background(), key); err != nil {
		t.Fatalf("resend: %v", err)
	}
	entries = conv.Store().Messages()
	if len(entries) != 1 || entries[0].ID != 11 || entries[0].Status != StatusActive {
		t.Fatalf("after resend: %+v", entries)
	}

	more, err := conv.LoadOlder(context.Background(), 2)
	if err != nil {
		t.Fatalf("load older: %v", err)
	}
	if more {
		t.Fatal("page without next_before reported more history")
	}
	if got := ids(conv.Store().Messages()); len(got) != 3 || got[0] != 9 || got[2] != 11 {
		t.Fatalf("history merge: %v", got)
	}
	if len(conn.Watched()) != 1 {
		t.Fatalf("conversation did not watch its chat: %v", conn.Watched())
	}
}
