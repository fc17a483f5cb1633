package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/live-commerce/internal/api/middleware"
	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

type sendMessagePayload struct {
	LiveID   string `json:"liveId" validate:"required,max=64"`
	UserID   string `json:"userId"`
	UserName string `json:"userName" validate:"max=64"`
	UserRole string `json:"userRole"`
	Message  string `json:"message"`
}

type deleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,max=32"`
	LiveID    string `json:"liveId" validate:"required,max=64"`
}

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.socket.AllowOrigins) == 0 {
				return true
			}
			for _, o := range h.socket.AllowOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// LiveSocket 直播间 websocket，帧格式 {"event": "...", "data": ...}
// @Summary 直播间实时连接
// @Tags 直播
// @Param token query string false "JWT"
// @Success 101
// @Router /ws/live [get]
func (h *Handler) LiveSocket(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	ws, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了响应
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	name := claims.Name
	if name == "" {
		name = claims.UserID
	}
	conn := realtime.NewConnection(claims.UserID, claims.Role, name, ws, h.socket.SendBuffer)
	conn.Start()
	h.registry.Register(conn)
	defer func() {
		h.registry.Disconnect(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(h.socket.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.socket.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.socket.ReadTimeout))
	})

	s := &liveSession{
		h:       h,
		conn:    conn,
		claims:  claims,
		limiter: rate.NewLimiter(rate.Limit(h.socket.RateLimit), h.socket.RateBurst),
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket closed", zap.String("user", claims.UserID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.socket.ReadTimeout))
		s.handle(c.Request.Context(), data)
	}
}

// liveSession 单个连接的事件处理，读循环串行调用
type liveSession struct {
	h       *Handler
	conn    *realtime.Connection
	claims  *middleware.Claims
	limiter *rate.Limiter
}

func (s *liveSession) handle(ctx context.Context, data []byte) {
	var frame realtime.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.fail("malformed frame")
		return
	}

	switch frame.Event {
	case realtime.EventJoinLive:
		if liveID, ok := s.liveID(frame.Data); ok {
			s.h.registry.Join(liveID, s.conn)
		}
	case realtime.EventLeaveLive:
		if liveID, ok := s.liveID(frame.Data); ok {
			s.h.registry.Leave(liveID, s.conn)
		}
	case realtime.EventSendMessage:
		s.sendMessage(ctx, frame.Data)
	case realtime.EventDeleteMessage:
		s.deleteMessage(ctx, frame.Data)
	default:
		s.fail("unknown event: " + frame.Event)
	}
}

func (s *liveSession) liveID(raw json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" || len(id) > 64 {
		s.fail("invalid live id")
		return "", false
	}
	return id, true
}

func (s *liveSession) sendMessage(ctx context.Context, raw json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.fail("invalid payload")
		return
	}
	if err := s.h.validate.Struct(p); err != nil {
		s.fail("invalid payload")
		return
	}
	if !s.limiter.Allow() {
		s.fail("too many messages, slow down")
		return
	}

	// 身份以 token 为准，userName 仅在 token 未携带昵称时用于展示
	name := s.claims.Name
	if name == "" {
		name = p.UserName
	}
	if name == "" {
		name = s.claims.UserID
	}

	wctx, cancel := context.WithTimeout(ctx, s.h.socket.WriteTimeout)
	defer cancel()
	if _, err := s.h.chat.SendMessage(wctx, p.LiveID, s.claims.UserID, name, s.claims.Role, p.Message); err != nil {
		s.failWith(err, "failed to send message")
	}
}

func (s *liveSession) deleteMessage(ctx context.Context, raw json.RawMessage) {
	var p deleteMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.fail("invalid payload")
		return
	}
	if err := s.h.validate.Struct(p); err != nil {
		s.fail("invalid payload")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, s.h.socket.WriteTimeout)
	defer cancel()

	allowed, err := s.canModerate(wctx, p.LiveID)
	if err != nil {
		s.failWith(err, "failed to delete message")
		return
	}
	if !allowed {
		s.fail("not allowed to delete messages in this live")
		return
	}
	if err := s.h.chat.DeleteMessage(wctx, p.LiveID, p.MessageID, s.claims.UserID); err != nil {
		s.failWith(err, "failed to delete message")
	}
}

// canModerate 管理员、版主、直播所属合作方可以删除消息
func (s *liveSession) canModerate(ctx context.Context, liveID string) (bool, error) {
	switch s.claims.Role {
	case middleware.RoleAdmin, middleware.RoleModerator:
		return true, nil
	case middleware.RolePartner:
		if s.claims.PartnerID == "" {
			return false, nil
		}
		ls, err := s.h.lives.Lookup(ctx, liveID)
		if err != nil {
			return false, err
		}
		return ls.PartnerID == s.claims.PartnerID, nil
	default:
		return false, nil
	}
}

// failWith 业务错误原样告知，存储类错误只返回概要
func (s *liveSession) failWith(err error, fallback string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindAuthorization:
		s.fail(err.Error())
	default:
		logger.Warn("live socket event failed", zap.String("user", s.claims.UserID), zap.Error(err))
		s.fail(fallback)
	}
}

func (s *liveSession) fail(msg string) {
	payload, err := realtime.Encode(realtime.EventError, msg)
	if err != nil {
		return
	}
	_ = s.conn.Send(payload)
}
