package chat

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"PPDirect/logger"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/broker"
	"PPDirect/service/delivery"
	"PPDirect/service/protocol"
	"PPDirect/tools/security"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Relay is the part of the broker relay a session needs.
type Relay interface {
	Subscribe(ctx context.Context, channel string, h broker.Handler) bool
	Unsubscribe(ctx context.Context, channel string) bool
}

// Verifier checks a bearer credential.
type Verifier interface {
	Verify(token string) (*security.Identity, error)
}

// UserLookup resolves the subject of a verified credential.
type UserLookup interface {
	LookupByUsername(ctx context.Context, username string) (*usermodel.User, error)
}

// Sender persists and routes one chat frame.
type Sender interface {
	Send(ctx context.Context, senderID int64, f *protocol.ChatFrame) (*delivery.Receipt, error)
}

type ServerConf struct {
	NodeID         string
	AuthTimeout    time.Duration // 首帧等待，默认 10s
	WriteTimeout   time.Duration
	AllowedOrigins []string // 空 => 不校验
}

type Deps struct {
	Registry *Registry
	Relay    Relay
	Verifier Verifier
	Users    UserLookup
	Sender   Sender
	Logger   *zap.Logger
}

type Server struct {
	conf     ServerConf
	reg      *Registry
	relay    Relay
	verifier Verifier
	users    UserLookup
	sender   Sender
	disp     *Dispatcher
	upgrader websocket.Upgrader
	log      *zap.Logger

	// 串行化 注册+订阅 / 移除+退订，保证订阅与会话一一对应
	bindMu sync.Mutex
}

func NewServer(conf ServerConf, deps Deps) *Server {
	if conf.AuthTimeout <= 0 {
		conf.AuthTimeout = 10 * time.Second
	}
	if conf.WriteTimeout <= 0 {
		conf.WriteTimeout = 5 * time.Second
	}
	s := &Server{
		conf:     conf,
		reg:      deps.Registry,
		relay:    deps.Relay,
		verifier: deps.Verifier,
		users:    deps.Users,
		sender:   deps.Sender,
		log:      logger.Named(deps.Logger, "chat"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.disp = NewDispatcher(s.log)
	s.disp.Register(protocol.FrameMessage, s.handleChat)
	s.disp.Register(protocol.FramePing, s.handlePing)
	return s
}

func (s *Server) Registry() *Registry { return s.reg }

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.conf.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.conf.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	s.log.Warn("origin rejected", zap.String("origin", origin))
	return false
}

// Shutdown closes every local session with the normal closure code.
func (s *Server) Shutdown() {
	s.reg.CloseAll(CloseNormal, "server shutting down")
}
