package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/cache"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// ChatUser 消息作者
type ChatUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// MessageView 下发给客户端的消息，已删除消息不带原文
type MessageView struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	User      ChatUser  `json:"user"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessageView 转换并脱敏
func NewMessageView(m *model.ChatMessage) MessageView {
	v := MessageView{
		ID:        m.ID,
		Message:   m.Message,
		User:      ChatUser{ID: m.UserID, Name: m.UserName, Role: m.UserRole},
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
	}
	if m.IsDeleted {
		v.Message = ""
	}
	return v
}

// ChatService 直播间聊天：校验 -> 落库 -> 广播
type ChatService interface {
	SendMessage(ctx context.Context, roomID, authorID, authorName, authorRole, text string) (*model.ChatMessage, error)
	// DeleteMessage 软删除并广播 message-deleted，权限由调用方判断
	DeleteMessage(ctx context.Context, roomID, messageID, deletedBy string) error
	History(ctx context.Context, roomID string, limit int) ([]MessageView, error)
}

type ChatOptions struct {
	MaxMessageLength int
	HistoryLimit     int
}

type chatService struct {
	repo    repository.ChatRepository
	rooms   realtime.Broadcaster
	history *cache.ChatHistory
	ids     *snowflake.Node
	opts    ChatOptions
	now     func() time.Time
}

// NewChatService history 可为 nil（不启用缓存）
func NewChatService(repo repository.ChatRepository, rooms realtime.Broadcaster, history *cache.ChatHistory, ids *snowflake.Node, opts ChatOptions) ChatService {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 500
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &chatService{repo: repo, rooms: rooms, history: history, ids: ids, opts: opts, now: time.Now}
}

func (s *chatService) SendMessage(ctx context.Context, roomID, authorID, authorName, authorRole, text string) (*model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("message is empty")
	}
	if utf8.RuneCountInString(text) > s.opts.MaxMessageLength {
		return nil, apperr.Validation("message exceeds %d characters", s.opts.MaxMessageLength)
	}
	if roomID == "" {
		return nil, apperr.Validation("live id is required")
	}

	msg := &model.ChatMessage{
		ID:           s.ids.Generate().String(),
		LiveStreamID: roomID,
		UserID:       authorID,
		UserName:     authorName,
		UserRole:     authorRole,
		Message:      text,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		return nil, err
	}

	if s.history != nil {
		s.history.Invalidate(ctx, roomID)
	}
	s.broadcast(roomID, realtime.EventNewMessage, NewMessageView(msg))
	return msg, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, roomID, messageID, deletedBy string) error {
	if messageID == "" || roomID == "" {
		return apperr.Validation("message id and live id are required")
	}
	if err := s.repo.SoftDelete(ctx, roomID, messageID, deletedBy, s.now().UTC()); err != nil {
		return err
	}
	if s.history != nil {
		s.history.Invalidate(ctx, roomID)
	}
	s.broadcast(roomID, realtime.EventMessageDeleted, messageID)
	return nil
}

func (s *chatService) History(ctx context.Context, roomID string, limit int) ([]MessageView, error) {
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}

	var msgs []*model.ChatMessage
	if s.history != nil {
		if cached, ok := s.history.Get(ctx, roomID, limit); ok {
			msgs = cached
		}
	}
	if msgs == nil {
		// 版本号必须在读库前取得，读库期间的删除会让回填作废
		var (
			version  int64
			fillable bool
		)
		if s.history != nil {
			version, fillable = s.history.Version(ctx, roomID)
		}
		// 缓存总是装满 HistoryLimit 条，任意 limit 都可以从尾部截取
		loaded, err := s.repo.ListRecent(ctx, roomID, s.opts.HistoryLimit)
		if err != nil {
			return nil, err
		}
		for _, m := range loaded {
			if m.IsDeleted {
				m.Message = ""
			}
		}
		if fillable {
			s.history.Set(ctx, roomID, loaded, version)
		}
		if len(loaded) > limit {
			loaded = loaded[len(loaded)-limit:]
		}
		msgs = loaded
	}

	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = NewMessageView(m)
	}
	return out, nil
}

func (s *chatService) broadcast(roomID, event string, data any) {
	payload, err := realtime.Encode(event, data)
	if err != nil {
		logger.Error("encode chat event", zap.String("event", event), zap.Error(err))
		return
	}
	n := s.rooms.Broadcast(roomID, payload)
	logger.Debug("chat broadcast", zap.String("room", roomID), zap.String("event", event), zap.Int("sessions", n))
}
