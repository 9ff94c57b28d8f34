package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TaskData is the caller supplied part of a task created from a message.
type TaskData struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
}

type createRequest struct {
	TaskData
	CreatedBy       int64 `json:"created_by"`
	SourceMessageID int64 `json:"source_message_id"`
	SourceChatID    int64 `json:"source_chat_id"`
}

type createResponse struct {
	ID   int64 `json:"id"`
	Task *struct {
		ID int64 `json:"id"`
	} `json:"task,omitempty"`
}

// Error is a non-2xx answer from the task service.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("task api returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateTask posts the task and returns its id.
func (c *Client) CreateTask(ctx context.Context, userID, chatID, messageID int64, data TaskData) (int64, error) {
	body, err := json.Marshal(createRequest{
		TaskData:        data,
		CreatedBy:       userID,
		SourceMessageID: messageID,
		SourceChatID:    chatID,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("failed to decode task api response: %w", err)
	}
	id := out.ID
	if out.Task != nil && out.Task.ID != 0 {
		id = out.Task.ID
	}
	if id <= 0 {
		return 0, fmt.Errorf("task api response carried no task id")
	}
	return id, nil
}
