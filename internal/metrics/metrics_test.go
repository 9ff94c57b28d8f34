package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.FanoutPublished("new_message")
	m.FanoutFailed("new_message")
	m.FanoutDropped()
	m.SocketConnected()
	m.ObserveRequest(http.MethodGet, "/v1/chats", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`scope_chat_fanout_published_total{kind="new_message"} 1`,
		`scope_chat_fanout_failed_total{kind="new_message"} 1`,
		`scope_chat_fanout_dropped_total 1`,
		`scope_chat_websocket_clients 1`,
		`scope_chat_http_requests_total{method="GET",route="/v1/chats",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.FanoutPublished("x")
	m.FanoutDropped()
	m.SocketConnected()
	m.SocketDisconnected()
	m.ObserveRequest("GET", "", 500, time.Second)
}
