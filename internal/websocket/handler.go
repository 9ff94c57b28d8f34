package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scope-chat/internal/auth"
	"scope-chat/internal/commands"
	"scope-chat/internal/transport/httpdto"
	scope_errors "scope-chat/pkg/errors"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TypingSender relays typing actions to the domain.
type TypingSender interface {
	SendTyping(ctx context.Context, chatID, userID int64) error
}

// ConnectionTracker records which users hold live sockets.
type ConnectionTracker interface {
	TrackConnection(ctx context.Context, userID int64, clientID string) error
	RemoveConnection(ctx context.Context, userID int64, clientID string) error
}

type Handler struct {
	verifier *auth.Verifier
	hub      *Hub
	bus      *commands.Bus
	presence ConnectionTracker
	logger   *SocketLogger
}

// NewHandler wires the socket actions onto a command bus guarded by the
// membership authorizer.
func NewHandler(verifier *auth.Verifier, hub *Hub, authorizer *ChannelAuthorizer, typing TypingSender, l *logger.Logger) *Handler {
	h := &Handler{
		verifier: verifier,
		hub:      hub,
		bus:      commands.NewBus(commands.NewMembershipProxy(authorizer)),
		logger:   NewSocketLogger(l),
	}
	h.bus.Register(commands.TypeJoinChat, commands.HandlerFunc(h.join))
	h.bus.Register(commands.TypeLeaveChat, commands.HandlerFunc(h.leave))
	if typing != nil {
		h.bus.Register(commands.TypeTyping, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
			c := cmd.(commands.ChatCommand)
			return commands.Result{ChatID: c.ChatID}, typing.SendTyping(ctx, c.ChatID, c.UserID)
		}))
	}
	return h
}

// WithPresence makes the handler record connections in tracker.
func (h *Handler) WithPresence(tracker ConnectionTracker) *Handler {
	h.presence = tracker
	return h
}

// Connect authenticates ?token= (or a bearer header) and upgrades.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	userID, err := h.verifier.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", userID, "", err)
		return
	}

	client := NewClient(conn, userID, h.logger)
	h.hub.Register(client)
	h.logger.Info("client connected", userID, client.ID)

	ctx := auth.WithUserID(context.Background(), userID)
	if h.presence != nil {
		if err := h.presence.TrackConnection(ctx, userID, client.ID); err != nil {
			h.logger.Error("presence tracking failed", userID, client.ID, err)
		}
	}
	go client.writePump()
	client.readPump(func(action ClientAction) {
		h.dispatch(ctx, client, action)
	})

	h.hub.Unregister(client)
	if h.presence != nil {
		if err := h.presence.RemoveConnection(ctx, userID, client.ID); err != nil {
			h.logger.Error("presence cleanup failed", userID, client.ID, err)
		}
	}
	h.logger.Info("client disconnected", userID, client.ID)
}

func (h *Handler) dispatch(ctx context.Context, client *Client, action ClientAction) {
	_, err := h.bus.Execute(ctx, commands.ChatCommand{
		Type:     action.Action,
		ClientID: client.ID,
		ChatID:   action.ChatID,
		UserID:   client.UserID,
	})
	if err == nil {
		return
	}
	if errors.Is(err, commands.ErrHandlerNotFound) {
		err = scope_errors.ErrInvalidInput
	}
	h.logger.Warn("client action rejected", client.UserID, client.ID,
		zap.String("action", action.Action), zap.Int64("chat_id", action.ChatID), zap.Error(err))

	ev, encErr := chatevents.New(action.ChatID, chatevents.KindError, chatevents.ErrorPayload{
		Message: err.Error(),
		Code:    scope_errors.Code(err),
	})
	if encErr != nil {
		return
	}
	if data, encErr := json.Marshal(ev); encErr == nil {
		client.SendMessage(data)
	}
}

func (h *Handler) join(ctx context.Context, cmd commands.Command) (commands.Result, error) {
	c := cmd.(commands.ChatCommand)
	client, ok := h.hub.Client(c.ClientID)
	if !ok {
		return commands.Result{}, scope_errors.ErrNotFound
	}
	h.hub.Subscribe(client, chatevents.ChatChannel(c.ChatID))
	return commands.Result{ChatID: c.ChatID}, nil
}

func (h *Handler) leave(ctx context.Context, cmd commands.Command) (commands.Result, error) {
	c := cmd.(commands.ChatCommand)
	client, ok := h.hub.Client(c.ClientID)
	if !ok {
		return commands.Result{}, scope_errors.ErrNotFound
	}
	h.hub.Unsubscribe(client, chatevents.ChatChannel(c.ChatID))
	return commands.Result{ChatID: c.ChatID}, nil
}
