package chat

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleWS upgrades the request and serves the socket until it closes.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败，Upgrade 已写回 HTTP 错误
		s.log.Info("upgrade websocket", zap.Error(err))
		return
	}
	conn := NewWsConn(ws, s.conf.WriteTimeout)
	s.log.Info("websocket connection accepted", zap.String("remote", conn.RemoteAddr()))
	s.Serve(c.Request.Context(), conn)
}
