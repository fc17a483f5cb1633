package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

// chatTable 在单表或某个分表上执行消息读写
type chatTable struct {
	db    *gorm.DB
	table string
}

func (t chatTable) scoped(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Table(t.table)
}

func (t chatTable) save(ctx context.Context, msg *model.ChatMessage) error {
	return translate(t.scoped(ctx).Create(msg).Error, "chat message")
}

func (t chatTable) get(ctx context.Context, liveStreamID, messageID string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := t.scoped(ctx).
		Where("id = ? AND live_stream_id = ?", messageID, liveStreamID).
		First(&msg).Error
	if err != nil {
		return nil, translate(err, "chat message")
	}
	return &msg, nil
}

// softDelete 只更新未删除的消息，保留第一次删除的操作人和时间；重复删除视为成功
func (t chatTable) softDelete(ctx context.Context, liveStreamID, messageID, deletedBy string, at time.Time) error {
	res := t.scoped(ctx).
		Where("id = ? AND live_stream_id = ? AND is_deleted = ?", messageID, liveStreamID, false).
		Updates(map[string]any{"is_deleted": true, "deleted_by": deletedBy, "deleted_at": at})
	if res.Error != nil {
		return translate(res.Error, "chat message")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// 不存在返回 NotFound，已删除则幂等
	_, err := t.get(ctx, liveStreamID, messageID)
	return err
}

func (t chatTable) listRecent(ctx context.Context, liveStreamID string, limit int) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	err := t.scoped(ctx).
		Where("live_stream_id = ?", liveStreamID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, translate(err, "chat messages")
	}
	// 反转为时间升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (t chatTable) count(ctx context.Context, liveStreamID string) (int64, error) {
	var n int64
	err := t.scoped(ctx).Where("live_stream_id = ?", liveStreamID).Count(&n).Error
	return n, translate(err, "chat messages")
}

// SingleTableChatRepository 单表消息仓储
type SingleTableChatRepository struct {
	t chatTable
}

// NewChatRepository 创建单表消息仓储
func NewChatRepository(db *gorm.DB) *SingleTableChatRepository {
	return &SingleTableChatRepository{t: chatTable{db: db, table: model.ChatMessage{}.TableName()}}
}

func (r *SingleTableChatRepository) Save(ctx context.Context, msg *model.ChatMessage) error {
	return r.t.save(ctx, msg)
}

func (r *SingleTableChatRepository) GetByID(ctx context.Context, liveStreamID, messageID string) (*model.ChatMessage, error) {
	return r.t.get(ctx, liveStreamID, messageID)
}

func (r *SingleTableChatRepository) SoftDelete(ctx context.Context, liveStreamID, messageID, deletedBy string, at time.Time) error {
	return r.t.softDelete(ctx, liveStreamID, messageID, deletedBy, at)
}

func (r *SingleTableChatRepository) ListRecent(ctx context.Context, liveStreamID string, limit int) ([]*model.ChatMessage, error) {
	return r.t.listRecent(ctx, liveStreamID, limit)
}

func (r *SingleTableChatRepository) Count(ctx context.Context, liveStreamID string) (int64, error) {
	return r.t.count(ctx, liveStreamID)
}

// InitSchema 初始化消息表
func (r *SingleTableChatRepository) InitSchema() error {
	return r.t.db.Table(r.t.table).AutoMigrate(&model.ChatMessage{})
}
