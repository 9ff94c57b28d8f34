package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is a thin REST client for the chat endpoints. Every call returns a
// *FetchError on transport or status failure.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func NewAPI(baseURL, token string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	op := method + " " + path
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &FetchError{Op: op, Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := &FetchError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if decodeErr == nil && env.Error != "" {
			fe.Body = env.Error
			fe.Code = env.Code
		}
		return fe
	}
	if decodeErr != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func chatPath(chatID int64, rest string) string {
	return "/v1/chats/" + strconv.FormatInt(chatID, 10) + rest
}

func messagePath(messageID int64, rest string) string {
	return "/v1/messages/" + strconv.FormatInt(messageID, 10) + rest
}

// Ping checks the server answers at all.
func (a *API) Ping(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, "/ping", nil, nil, nil)
}

func (a *API) ListChats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/chats", nil, nil, &out)
	return out.Chats, err
}

// ProjectChats lists the project's chats the caller belongs to.
func (a *API) ProjectChats(ctx context.Context, projectID int64) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/projects/"+strconv.FormatInt(projectID, 10)+"/chats", nil, nil, &out)
	return out.Chats, err
}

// TeamChats lists the team's chats the caller belongs to.
func (a *API) TeamChats(ctx context.Context, teamID int64) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/teams/"+strconv.FormatInt(teamID, 10)+"/chats", nil, nil, &out)
	return out.Chats, err
}

type NewChat struct {
	Type      string  `json:"type"`
	Name      *string `json:"name,omitempty"`
	ProjectID *int64  `json:"project_id,omitempty"`
	TeamID    *int64  `json:"team_id,omitempty"`
}

func (a *API) CreateChat(ctx context.Context, in NewChat) (Chat, error) {
	var out Chat
	err := a.do(ctx, http.MethodPost, "/v1/chats", nil, in, &out)
	return out, err
}

// DirectChat finds or creates the direct chat with userID.
func (a *API) DirectChat(ctx context.Context, userID int64) (Chat, bool, error) {
	var out struct {
		Chat    Chat `json:"chat"`
		Created bool `json:"created"`
	}
	err := a.do(ctx, http.MethodPost, "/v1/chats/direct", nil, map[string]int64{"user_id": userID}, &out)
	return out.Chat, out.Created, err
}

func (a *API) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	var out Chat
	err := a.do(ctx, http.MethodGet, chatPath(chatID, ""), nil, nil, &out)
	return out, err
}

func (a *API) RenameChat(ctx context.Context, chatID int64, name string) (Chat, error) {
	var out Chat
	err := a.do(ctx, http.MethodPatch, chatPath(chatID, ""), nil, map[string]string{"name": name}, &out)
	return out, err
}

func (a *API) DeleteChat(ctx context.Context, chatID int64) error {
	return a.do(ctx, http.MethodDelete, chatPath(chatID, ""), nil, nil, nil)
}

func (a *API) Members(ctx context.Context, chatID int64) ([]Member, error) {
	var out struct {
		Members []Member `json:"members"`
	}
	err := a.do(ctx, http.MethodGet, chatPath(chatID, "/members"), nil, nil, &out)
	return out.Members, err
}

func (a *API) AddMember(ctx context.Context, chatID, userID int64, role string) (Member, error) {
	var out Member
	body := map[string]interface{}{"user_id": userID}
	if role != "" {
		body["role"] = role
	}
	err := a.do(ctx, http.MethodPost, chatPath(chatID, "/members"), nil, body, &out)
	return out, err
}

func (a *API) RemoveMember(ctx context.Context, chatID, userID int64) error {
	return a.do(ctx, http.MethodDelete, chatPath(chatID, "/members/"+strconv.FormatInt(userID, 10)), nil, nil, nil)
}

// Messages fetches the page of history before the given id (0 for newest).
func (a *API) Messages(ctx context.Context, chatID, before int64, limit int) (MessagePage, error) {
	q := url.Values{}
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out MessagePage
	err := a.do(ctx, http.MethodGet, chatPath(chatID, "/messages"), q, nil, &out)
	return out, err
}

type SendRequest struct {
	Content     string  `json:"content"`
	MessageType string  `json:"message_type,omitempty"`
	ReplyToID   *int64  `json:"reply_to_id,omitempty"`
	Metadata    *string `json:"metadata,omitempty"`
}

func (a *API) SendMessage(ctx context.Context, chatID int64, in SendRequest) (Message, error) {
	var out Message
	err := a.do(ctx, http.MethodPost, chatPath(chatID, "/messages"), nil, in, &out)
	return out, err
}

func (a *API) EditMessage(ctx context.Context, messageID int64, content string) (Message, error) {
	var out Message
	err := a.do(ctx, http.MethodPatch, messagePath(messageID, ""), nil, map[string]string{"content": content}, &out)
	return out, err
}

func (a *API) DeleteMessage(ctx context.Context, messageID int64) error {
	return a.do(ctx, http.MethodDelete, messagePath(messageID, ""), nil, nil, nil)
}

func (a *API) AddReaction(ctx context.Context, messageID int64, emoji string) (Reaction, error) {
	var out Reaction
	err := a.do(ctx, http.MethodPost, messagePath(messageID, "/reactions"), nil, map[string]string{"emoji": emoji}, &out)
	return out, err
}

func (a *API) RemoveReaction(ctx context.Context, messageID int64, emoji string) error {
	return a.do(ctx, http.MethodDelete, messagePath(messageID, "/reactions"), url.Values{"emoji": {emoji}}, nil, nil)
}

type TaskRequest struct {
	Title       string     `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
}

// CreateTask links a new task to the message and returns the updated message.
func (a *API) CreateTask(ctx context.Context, messageID int64, in TaskRequest) (Message, error) {
	var out Message
	err := a.do(ctx, http.MethodPost, messagePath(messageID, "/task"), nil, in, &out)
	return out, err
}

func (a *API) MarkChatRead(ctx context.Context, chatID int64) error {
	return a.do(ctx, http.MethodPost, chatPath(chatID, "/read"), nil, nil, nil)
}

func (a *API) Mentions(ctx context.Context, limit int) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	err := a.do(ctx, http.MethodGet, "/v1/mentions", q, nil, &out)
	return out.Messages, err
}

// Events returns the events after cursor. An empty cursor returns no events
// and the current tail.
func (a *API) Events(ctx context.Context, chatID int64, after string, limit int) ([]Event, string, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out eventsPage
	if err := a.do(ctx, http.MethodGet, chatPath(chatID, "/events"), q, nil, &out); err != nil {
		return nil, "", err
	}
	return out.Events, out.Cursor, nil
}

func (a *API) SendTyping(ctx context.Context, chatID int64) error {
	return a.do(ctx, http.MethodPost, chatPath(chatID, "/typing"), nil, nil, nil)
}
