package chat

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 关闭码
const (
	CloseNormal          = websocket.CloseNormalClosure
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
)

var ErrReadTimeout = errors.New("chat: read timeout")

// Conn is the socket of one session. Writes are safe for concurrent use;
// reads are done by the owning session goroutine only.
type Conn interface {
	// ReadMessage returns the next data frame. A zero deadline waits
	// forever; an expired one yields ErrReadTimeout.
	ReadMessage(deadline time.Time) ([]byte, error)
	WriteJSON(v any) error
	Close(code int, reason string) error
	RemoteAddr() string
}

// WsConn adapts a gorilla connection to Conn.
type WsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex // gorilla 只允许一个并发写者
	closeOnce sync.Once
}

func NewWsConn(ws *websocket.Conn, writeTimeout time.Duration) *WsConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *WsConn) ReadMessage(deadline time.Time) ([]byte, error) {
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrReadTimeout
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *WsConn) WriteJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close sends a close frame with code and reason, then drops the socket.
// Only the first call has an effect.
func (c *WsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(c.writeTimeout))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *WsConn) RemoteAddr() string {
	if a := c.ws.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// isPeerGone reports a normal client-side disconnect.
func isPeerGone(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
