package taskapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateTask(t *testing.T) {
	var got createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing service token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"task":{"id":314}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	id, err := c.CreateTask(context.Background(), 3, 42, 9, TaskData{Title: "Fix login"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if id != 314 {
		t.Fatalf("id = %d", id)
	}
	if got.Title != "Fix login" || got.CreatedBy != 3 || got.SourceChatID != 42 || got.SourceMessageID != 9 {
		t.Fatalf("request body %+v", got)
	}
}

func TestCreateTaskPropagatesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "project archived", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).CreateTask(context.Background(), 1, 1, 1, TaskData{Title: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Body != "project archived" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestCreateTaskRejectsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "", time.Second).CreateTask(context.Background(), 1, 1, 1, TaskData{Title: "x"}); err == nil {
		t.Fatal("expected an error for a response without id")
	}
}
