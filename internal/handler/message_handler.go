package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/services"
	"scope-chat/internal/taskapi"
	"scope-chat/internal/transport/httpdto"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), chat.NewMessage{
		ChatID:      chatID,
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyToID:   req.ReplyToID,
		Metadata:    req.Metadata,
	}, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) List(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	before, err := parseInt64(c.Query("before"))
	if err != nil || before < 0 {
		badRequest(c, "invalid before")
		return
	}
	limit, err := parseInt(c.Query("limit"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.service.GetChatMessages(c.Request.Context(), chatID, userID, limit, before)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit <= 0 {
		limit = services.DefaultPageSize
	}
	if limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewMessagePage(items, limit)))
}

func (h *MessageHandler) GetByID(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.GetMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.EditMessage(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.MarkAsRead(c.Request.Context(), messageID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) Reactions(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reactions, err := h.service.GetMessageReactions(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"reactions": reactions}))
}

func (h *MessageHandler) AddReaction(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reaction, err := h.service.AddReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(reaction))
}

func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	emoji := strings.TrimSpace(c.Query("emoji"))
	if emoji == "" {
		badRequest(c, "emoji is required")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.RemoveReaction(c.Request.Context(), messageID, userID, emoji); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *MessageHandler) CreateTask(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msg, err := h.service.CreateTaskFromMessage(c.Request.Context(), messageID, userID, taskapi.TaskData{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
		Assignee:    req.Assignee,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) Mentions(c *gin.Context) {
	limit, err := parseInt(c.Query("limit"))
	if err != nil || limit < 0 {
		badRequest(c, "invalid limit")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.GetMentionsForUser(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"messages": items}))
}
