package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scope-chat/internal/auth"
	"scope-chat/internal/taskapi"
	"scope-chat/internal/transport/httpdto"
	scope_errors "scope-chat/pkg/errors"
)

// writeError maps a domain error to its status. Task service failures keep
// the upstream status and body.
func writeError(c *gin.Context, err error) {
	var upstream *taskapi.Error
	if errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse(upstream.Error(), "TASK_API_ERROR"))
		return
	}
	status := scope_errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, httpdto.NewErrorResponse("internal error", scope_errors.Code(err)))
		return
	}
	c.JSON(status, httpdto.NewErrorResponse(err.Error(), scope_errors.Code(err)))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(msg, "INVALID_REQUEST"))
}

func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return 0, false
	}
	return userID, true
}

// pathID reads a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseInt64(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
