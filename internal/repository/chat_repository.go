package repository

import (
	"context"
	"time"

	"github.com/d60-Lab/live-commerce/internal/model"
)

// ChatRepository 直播聊天消息仓储
type ChatRepository interface {
	// Save 持久化消息，CreatedAt 由调用方在写入前确定
	Save(ctx context.Context, msg *model.ChatMessage) error

	// GetByID 查询房间内的消息
	GetByID(ctx context.Context, liveStreamID, messageID string) (*model.ChatMessage, error)

	// SoftDelete 标记删除，不物理删除；消息不在该房间时返回 NotFound
	SoftDelete(ctx context.Context, liveStreamID, messageID, deletedBy string, at time.Time) error

	// ListRecent 返回房间最近 limit 条消息，按 (created_at, id) 升序
	ListRecent(ctx context.Context, liveStreamID string, limit int) ([]*model.ChatMessage, error)

	// Count 统计房间消息数（含已删除）
	Count(ctx context.Context, liveStreamID string) (int64, error)
}
