package middleware

import (
	"net/http"

	"PPDirect/logger"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlerFunc is a gin handler that reports failure by returning an error.
type HandlerFunc func(c *gin.Context) error

// Wrap adapts h to gin; a returned error is rendered with RenderError.
func Wrap(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h(c); err != nil {
			RenderError(c, err)
		}
	}
}

// RenderError writes err as {code,msg,detail}. Errors without a code are
// logged and answered as an internal error.
func RenderError(c *gin.Context, err error) {
	ce, ok := errs.As(err)
	if !ok {
		logger.Log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errs.ErrInternalServer)
		return
	}
	status := errs.HTTPStatus(ce.Code)
	if status >= http.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ce)
}
