package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scope-chat/internal/services"
	"scope-chat/internal/transport/httpdto"
	chatevents "scope-chat/pkg/events"
)

const (
	defaultPollLimit = 100
	maxPollLimit     = 500
)

// EventsHandler serves the polling feed and typing signals.
type EventsHandler struct {
	chats  *services.ChatService
	typing *services.TypingService
	log    chatevents.EventLog
}

func NewEventsHandler(chats *services.ChatService, typing *services.TypingService, log chatevents.EventLog) *EventsHandler {
	return &EventsHandler{chats: chats, typing: typing, log: log}
}

// Poll returns the events after ?after=. Without a cursor it returns only
// the current tail cursor so the caller can start following.
func (h *EventsHandler) Poll(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, err := parseInt(c.Query("limit"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return
	}
	if limit == 0 {
		limit = defaultPollLimit
	}
	if limit > maxPollLimit {
		limit = maxPollLimit
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, err := h.chats.GetChat(c.Request.Context(), chatID, userID); err != nil {
		writeError(c, err)
		return
	}

	evts, cursor, err := h.log.Since(c.Request.Context(), chatID, c.Query("after"), int64(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	if evts == nil {
		evts = []chatevents.Event{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.EventsResponse{Events: evts, Cursor: cursor}))
}

func (h *EventsHandler) Typing(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.typing.SendTyping(c.Request.Context(), chatID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse[any](nil))
}

func (h *EventsHandler) TypingUsers(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	users, err := h.typing.Typing(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"user_ids": users}))
}
