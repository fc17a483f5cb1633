package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

// ShardedChatRepository 按直播间分表的消息仓储。
// 同一直播间的消息始终落在同一张表，房间内顺序查询不需要跨表合并。
type ShardedChatRepository struct {
	tables []chatTable
}

// NewShardedChatRepository 创建分表消息仓储，tableCount 张表 live_chat_messages_{0..n-1}
func NewShardedChatRepository(db *gorm.DB, tableCount int) (*ShardedChatRepository, error) {
	if tableCount < 2 {
		return nil, fmt.Errorf("sharded chat repository needs at least 2 tables, got %d", tableCount)
	}
	tables := make([]chatTable, tableCount)
	for i := range tables {
		tables[i] = chatTable{db: db, table: shardTableName(i)}
	}
	return &ShardedChatRepository{tables: tables}, nil
}

func shardTableName(idx int) string {
	return fmt.Sprintf("%s_%d", model.ChatMessage{}.TableName(), idx)
}

// RouteByLiveStream 根据直播间ID路由到分表
func RouteByLiveStream(liveStreamID string, tableCount int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(liveStreamID))
	return int(h.Sum32() % uint32(tableCount))
}

func (r *ShardedChatRepository) route(liveStreamID string) chatTable {
	return r.tables[RouteByLiveStream(liveStreamID, len(r.tables))]
}

func (r *ShardedChatRepository) Save(ctx context.Context, msg *model.ChatMessage) error {
	return r.route(msg.LiveStreamID).save(ctx, msg)
}

func (r *ShardedChatRepository) GetByID(ctx context.Context, liveStreamID, messageID string) (*model.ChatMessage, error) {
	return r.route(liveStreamID).get(ctx, liveStreamID, messageID)
}

func (r *ShardedChatRepository) SoftDelete(ctx context.Context, liveStreamID, messageID, deletedBy string, at time.Time) error {
	return r.route(liveStreamID).softDelete(ctx, liveStreamID, messageID, deletedBy, at)
}

func (r *ShardedChatRepository) ListRecent(ctx context.Context, liveStreamID string, limit int) ([]*model.ChatMessage, error) {
	return r.route(liveStreamID).listRecent(ctx, liveStreamID, limit)
}

func (r *ShardedChatRepository) Count(ctx context.Context, liveStreamID string) (int64, error) {
	return r.route(liveStreamID).count(ctx, liveStreamID)
}

// chatShardRow 分表建表结构：索引名在库内全局唯一，不能沿用 model 上的命名索引
type chatShardRow struct {
	ID           string     `gorm:"primaryKey;type:varchar(32)"`
	LiveStreamID string     `gorm:"type:varchar(36);not null"`
	UserID       string     `gorm:"type:varchar(36);not null"`
	UserName     string     `gorm:"type:varchar(64)"`
	UserRole     string     `gorm:"type:varchar(16)"`
	Message      string     `gorm:"type:text;not null"`
	IsDeleted    bool       `gorm:"not null;default:false"`
	DeletedBy    string     `gorm:"type:varchar(36)"`
	DeletedAt    *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

// InitSchema 初始化所有分表的表结构
func (r *ShardedChatRepository) InitSchema() error {
	for _, t := range r.tables {
		if err := t.db.Table(t.table).AutoMigrate(&chatShardRow{}); err != nil {
			return fmt.Errorf("failed to migrate table %s: %w", t.table, err)
		}
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_live_created ON %s (live_stream_id, created_at)", t.table, t.table)
		if err := t.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to index table %s: %w", t.table, err)
		}
	}
	return nil
}
