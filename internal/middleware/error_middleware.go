package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scope-chat/internal/transport/httpdto"
	scope_errors "scope-chat/pkg/errors"
	"scope-chat/pkg/logger"
)

// ErrorHandler renders errors attached with c.Error when the handler did not
// write a response itself.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.With(c.Request.Context()).Error("request error", zap.Error(err))
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(scope_errors.HTTPStatus(err), httpdto.NewErrorResponse(err.Error(), scope_errors.Code(err)))
	}
}

// Recovery turns a panic into a 500 envelope and logs the stack.
func Recovery(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if l != nil {
					l.With(c.Request.Context()).Error("panic recovered",
						zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
			}
		}()
		c.Next()
	}
}
