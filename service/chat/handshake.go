package chat

import (
	"context"
	"errors"
	"time"

	"PPDirect/service/broker"
	"PPDirect/service/protocol"
	"PPDirect/tools/errs"

	"go.uber.org/zap"
)

// Phase of a socket's session.
type Phase int

const (
	PhaseAwaitingAuth Phase = iota
	PhaseAuthenticated
	PhaseStreaming
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingAuth:
		return "awaiting_auth"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// 握手失败原因，同时作为 error 事件内容与关闭原因
const (
	ReasonAuthTimeout  = "Authentication timeout"
	ReasonAuthRequired = "Authentication required"
	ReasonMissingToken = "Missing token"
	ReasonTokenExpired = "Token expired"
	ReasonInvalidToken = "Invalid token"
	ReasonUserNotFound = "User not found"
	ReasonInternal     = "Internal error"
)

// rejection is a terminal handshake failure.
type rejection struct {
	code    int
	reason  string
	content string // error 事件内容
}

type session struct {
	s     *Server
	conn  Conn
	phase Phase
	sess  *Session
	log   *zap.Logger
}

// Serve runs the whole lifecycle of one socket: handshake, streaming and
// cleanup. It returns when the socket is closed.
func (s *Server) Serve(ctx context.Context, conn Conn) {
	h := &session{s: s, conn: conn, phase: PhaseAwaitingAuth, log: s.log.With(zap.String("remote", conn.RemoteAddr()))}
	h.run(ctx)
}

func (h *session) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("session panic", zap.Error(errs.ErrPanic(r)), zap.Stack("stack"))
			h.close(CloseInternalError, ReasonInternal)
		}
		h.cleanup()
	}()

	if rej := h.authenticate(ctx); rej != nil {
		if rej.content != "" {
			_ = h.conn.WriteJSON(protocol.Error(rej.content))
		}
		h.close(rej.code, rej.reason)
		return
	}
	h.stream(ctx)
}

func (h *session) authenticate(ctx context.Context) *rejection {
	s := h.s
	raw, err := h.conn.ReadMessage(time.Now().Add(s.conf.AuthTimeout))
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			h.log.Warn("authentication timeout", zap.Duration("after", s.conf.AuthTimeout))
			return &rejection{ClosePolicyViolation, ReasonAuthTimeout, ReasonAuthTimeout}
		}
		// 认证前对端已断开
		h.log.Info("disconnected before authentication", zap.Error(err))
		return &rejection{code: CloseNormal}
	}

	f, err := protocol.ParseFrame(raw)
	auth, ok := f.(*protocol.AuthFrame)
	if err != nil || !ok {
		h.log.Warn("first frame is not auth")
		return &rejection{ClosePolicyViolation, ReasonAuthRequired, "first message not an auth token"}
	}
	if auth.Token == "" {
		h.log.Warn("missing token in auth frame")
		return &rejection{ClosePolicyViolation, ReasonMissingToken, ReasonMissingToken}
	}

	id, err := s.verifier.Verify(auth.Token)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrTokenExpired):
		h.log.Warn("token expired")
		return &rejection{ClosePolicyViolation, ReasonTokenExpired, ReasonTokenExpired}
	default:
		h.log.Warn("invalid token", zap.Error(err))
		return &rejection{ClosePolicyViolation, ReasonInvalidToken, ReasonInvalidToken}
	}
	if id == nil || id.Subject == "" {
		return &rejection{ClosePolicyViolation, ReasonUserNotFound, ReasonUserNotFound}
	}

	user, err := s.users.LookupByUsername(ctx, id.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			h.log.Warn("user not found", zap.String("username", id.Subject))
			return &rejection{ClosePolicyViolation, ReasonUserNotFound, ReasonUserNotFound}
		}
		h.log.Error("user lookup", zap.Error(err))
		return &rejection{code: CloseInternalError, reason: ReasonInternal}
	}

	h.phase = PhaseAuthenticated
	h.log = h.log.With(zap.Int64("user_id", user.ID))
	h.bind(ctx, user.ID)

	if err := h.conn.WriteJSON(protocol.AuthSuccess(user.Profile())); err != nil {
		h.log.Warn("send auth_success", zap.Error(err))
		return &rejection{code: CloseInternalError, reason: ReasonInternal}
	}
	h.log.Info("websocket authenticated", zap.String("username", user.Username))
	return nil
}

// bind registers the session and subscribes the user's channel.
func (h *session) bind(ctx context.Context, userID int64) {
	h.s.bindMu.Lock()
	defer h.s.bindMu.Unlock()
	h.sess = h.s.reg.Register(userID, h.conn)
	ch := broker.UserChannel(userID)
	if !h.s.relay.Subscribe(ctx, ch, h.s.HandleRelay) {
		// 已记入订阅表，broker 恢复后由重连补订
		h.log.Warn("subscribe deferred until broker reconnects", zap.String("channel", ch))
	}
}

func (h *session) stream(ctx context.Context) {
	h.phase = PhaseStreaming
	for {
		raw, err := h.conn.ReadMessage(time.Time{})
		if err != nil {
			if isPeerGone(err) {
				h.log.Info("websocket disconnected")
			} else {
				h.log.Info("websocket read ended", zap.Error(err))
			}
			return
		}
		f, err := protocol.ParseFrame(raw)
		if err != nil {
			h.log.Warn("malformed frame ignored", zap.Int("len", len(raw)), zap.Error(err))
			continue
		}
		if err := h.s.disp.Dispatch(ctx, h.sess, f); err != nil {
			h.log.Error("frame handling failed", zap.String("type", f.FrameType()), zap.Error(err))
			h.close(CloseInternalError, ReasonInternal)
			return
		}
	}
}

func (h *session) close(code int, reason string) {
	_ = h.conn.Close(code, reason)
}

// cleanup removes the session and, when the user has no other session
// here, the channel subscription.
func (h *session) cleanup() {
	last := h.phase
	h.phase = PhaseClosed
	if h.sess == nil {
		h.log.Debug("closed without session", zap.Stringer("phase", last))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.s.conf.WriteTimeout)
	defer cancel()

	h.s.bindMu.Lock()
	defer h.s.bindMu.Unlock()
	removed := h.s.reg.RemoveSession(h.sess)
	if !h.s.reg.IsOnline(h.sess.UserID) {
		h.s.relay.Unsubscribe(ctx, broker.UserChannel(h.sess.UserID))
	}
	_ = h.conn.Close(CloseNormal, "")
	h.log.Info("session cleaned up", zap.Stringer("phase", last), zap.Bool("removed", removed))
}
