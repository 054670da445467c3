package middleware

import (
	"net/http"
	"sync"
	"time"

	"PPDirect/logger"
	"PPDirect/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MiddlewareManager 按注册顺序收集全局中间件
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

// NewManager 创建新的实例
func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add 注册一个中间件
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
}

// Handlers 返回当前中间件的快照，按注册顺序挂到 Engine 上
func (m *MiddlewareManager) Handlers() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gin.HandlerFunc{}, m.mids...)
}

// AccessLog logs one line per request after it completes.
func AccessLog(l *zap.Logger) gin.HandlerFunc {
	l = logger.Named(l, "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

// Recovery turns a handler panic into a 500 with a logged stack.
func Recovery(l *zap.Logger) gin.HandlerFunc {
	l = logger.Named(l, "http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.Error("panic in handler", zap.String("path", c.Request.URL.Path), zap.Error(errs.ErrPanic(r)), zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errs.ErrInternalServer)
			}
		}()
		c.Next()
	}
}
