package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/httpx"
	"github.com/sudo-init-do/gigmarket/internal/observability"
)

const sendTimeout = 5 * time.Second

// Gateway terminates the push channel: one websocket per authenticated user,
// speaking the joinRoom/typing/stopTyping/sendMessage protocol.
type Gateway struct {
	registry   *Registry
	dispatcher *Dispatcher
	typing     *TypingCoordinator
	cfg        config.RealtimeConfig
	upgrader   websocket.Upgrader
}

func NewGateway(r *Registry, d *Dispatcher, t *TypingCoordinator, cfg config.RealtimeConfig, allowedOrigins []string) *Gateway {
	return &Gateway{
		registry:   r,
		dispatcher: d,
		typing:     t,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// session is the per-connection state of the read loop.
type session struct {
	userID string
	conn   *wsConn
	joined bool
	log    zerolog.Logger
}

// ServeWS upgrades the request and runs the read loop until the peer goes
// away. The caller must already be authenticated.
func (g *Gateway) ServeWS(c echo.Context) error {
	userID := httpx.UserID(c)
	if userID == "" {
		return httpx.FailStatus(c, http.StatusUnauthorized, httpx.ErrCodeUnauthorized, "unauthorized")
	}

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		httpx.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	conn := newWSConn(ws, g.cfg.SendBuffer, g.cfg.PingInterval)
	go conn.writePump()
	observability.WSConnections.Inc()

	s := &session{
		userID: userID,
		conn:   conn,
		log:    httpx.LoggerFrom(c).With().Str("user_id", userID).Logger(),
	}
	defer g.teardown(s)

	ws.SetReadLimit(g.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(g.cfg.InboundRPS), g.cfg.InboundBurst)
	ctx := c.Request().Context()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return nil
		}
		if !limiter.Allow() {
			g.reject(s, "", http.StatusTooManyRequests, "rate_limited", "slow down")
			continue
		}
		var in inboundEvent
		if err := json.Unmarshal(raw, &in); err != nil {
			g.reject(s, "", http.StatusBadRequest, httpx.ErrCodeBadRequest, "malformed event")
			continue
		}
		g.handle(ctx, s, in)
	}
}

func (g *Gateway) handle(ctx context.Context, s *session, in inboundEvent) {
	if in.Type != EventJoinRoom && !s.joined {
		g.reject(s, "", http.StatusBadRequest, httpx.ErrCodeBadRequest, "joinRoom first")
		return
	}

	switch in.Type {
	case EventJoinRoom:
		var p joinRoomPayload
		_ = json.Unmarshal(in.Data, &p)
		if p.UserID != "" && p.UserID != s.userID {
			g.reject(s, "", http.StatusForbidden, httpx.ErrCodeForbidden, "cannot join as another user")
			return
		}
		s.joined = true
		g.registry.Register(s.userID, s.conn)

	case EventTyping, EventStopTyping:
		var p typingSignal
		if err := json.Unmarshal(in.Data, &p); err != nil || p.ReceiverID == "" {
			g.reject(s, "", http.StatusBadRequest, httpx.ErrCodeBadRequest, "receiverId is required")
			return
		}
		if in.Type == EventTyping {
			g.typing.StartTyping(s.userID, p.ReceiverID)
		} else {
			g.typing.StopTyping(s.userID, p.ReceiverID)
		}

	case EventSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			g.reject(s, "", http.StatusBadRequest, httpx.ErrCodeBadRequest, "malformed sendMessage")
			return
		}
		if p.SenderID != "" && p.SenderID != s.userID {
			g.reject(s, p.ClientID, http.StatusForbidden, httpx.ErrCodeForbidden, "senderId does not match the connection")
			return
		}
		sctx, cancel := context.WithTimeout(ctx, sendTimeout)
		m, err := g.dispatcher.Send(sctx, SendRequest{
			SenderID:   s.userID,
			ReceiverID: p.ReceiverID,
			Body:       p.Content,
			OrderID:    p.OrderID,
			GigID:      p.GigID,
			JobID:      p.JobID,
		})
		cancel()
		if err != nil {
			g.reject(s, p.ClientID, apperr.HTTPStatus(err), httpx.CodeFor(err), apperr.Message(err))
			if apperr.HTTPStatus(err) >= 500 {
				s.log.Warn().Err(err).Msg("sendMessage failed")
			}
			return
		}
		// a sent message ends the typing burst
		if g.typing.Active(s.userID, p.ReceiverID) {
			g.typing.StopTyping(s.userID, p.ReceiverID)
		}
		_ = s.conn.Send(EventMessageSent, MessageSentPayload{Message: m, ClientID: p.ClientID})

	default:
		g.reject(s, "", http.StatusBadRequest, httpx.ErrCodeBadRequest, "unknown event "+in.Type)
	}
}

func (g *Gateway) reject(s *session, clientID string, status int, code, msg string) {
	s.log.Debug().Int("status", status).Str("code", code).Msg(msg)
	_ = s.conn.Send(EventError, ErrorPayload{Code: code, Message: msg, ClientID: clientID})
}

func (g *Gateway) teardown(s *session) {
	if s.joined {
		if _, removed := g.registry.Unregister(s.conn); removed {
			g.typing.ClearSender(s.userID)
		}
	}
	s.conn.close()
	observability.WSConnections.Dec()
}
