package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/services"
	"scope-chat/internal/transport/httpdto"
)

type ChatHandler struct {
	chats    *services.ChatService
	messages *services.MessageService
}

func NewChatHandler(chats *services.ChatService, messages *services.MessageService) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages}
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chats, err := h.chats.GetUserChats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"chats": chats}))
}

// ProjectChats lists the chats of /projects/:id the caller belongs to.
func (h *ChatHandler) ProjectChats(c *gin.Context) {
	h.scoped(c, h.chats.GetProjectChats)
}

// TeamChats lists the chats of /teams/:id the caller belongs to.
func (h *ChatHandler) TeamChats(c *gin.Context) {
	h.scoped(c, h.chats.GetTeamChats)
}

func (h *ChatHandler) scoped(c *gin.Context, list func(ctx context.Context, scopeID, userID int64) ([]chat.Chat, error)) {
	scopeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chats, err := list(c.Request.Context(), scopeID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"chats": chats}))
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req httpdto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	created, err := h.chats.CreateChat(c.Request.Context(), chat.NewChat{
		Type:      req.Type,
		Name:      req.Name,
		ProjectID: req.ProjectID,
		TeamID:    req.TeamID,
	}, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(created))
}

func (h *ChatHandler) Direct(c *gin.Context) {
	var req httpdto.DirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	found, created, err := h.chats.FindOrCreateDirectChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.DirectChatResponse{Chat: found, Created: created}))
}

func (h *ChatHandler) Get(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	found, err := h.chats.GetChat(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(found))
}

func (h *ChatHandler) Update(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.chats.UpdateChat(c.Request.Context(), chatID, userID, chat.ChatUpdate{Name: req.Name})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(updated))
}

func (h *ChatHandler) Delete(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chats.DeleteChat(c.Request.Context(), chatID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ChatHandler) Members(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	members, err := h.chats.GetChatMembers(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"members": members}))
}

func (h *ChatHandler) AddMember(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req httpdto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	member, err := h.chats.AddMember(c.Request.Context(), chatID, req.UserID, userID, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(member))
}

func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chats.RemoveMember(c.Request.Context(), chatID, targetID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chats.MarkChatAsRead(c.Request.Context(), chatID, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

func (h *ChatHandler) Unread(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.messages.GetUnreadCount(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadCountResponse{ChatID: chatID, Count: count}))
}
