package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

type LiveStreamRepository interface {
	Create(ctx context.Context, ls *model.LiveStream) error
	GetByID(ctx context.Context, id string) (*model.LiveStream, error)
	// IncrementViewCount 详情页访问计数 +1（尽力而为）
	IncrementViewCount(ctx context.Context, id string) error
	// ListLive 直播中的优先，其次按开播时间
	ListLive(ctx context.Context, offset, limit int) ([]*model.LiveStream, error)
	// TransitionStatus 仅当当前状态为 from 时更新
	TransitionStatus(ctx context.Context, id string, from, to model.LiveStreamStatus, updates map[string]any) (bool, error)
}

type liveStreamRepository struct{ db *gorm.DB }

func NewLiveStreamRepository(db *gorm.DB) LiveStreamRepository {
	return &liveStreamRepository{db: db}
}

func (r *liveStreamRepository) Create(ctx context.Context, ls *model.LiveStream) error {
	if ls.ID == "" {
		ls.ID = uuid.New().String()
	}
	if ls.Status == "" {
		ls.Status = model.LiveStreamScheduled
	}
	return translate(r.db.WithContext(ctx).Create(ls).Error, "live stream")
}

func (r *liveStreamRepository) GetByID(ctx context.Context, id string) (*model.LiveStream, error) {
	var ls model.LiveStream
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ls).Error; err != nil {
		return nil, translate(err, "live stream")
	}
	return &ls, nil
}

func (r *liveStreamRepository) IncrementViewCount(ctx context.Context, id string) error {
	return translate(r.db.WithContext(ctx).
		Model(&model.LiveStream{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error, "live stream")
}

func (r *liveStreamRepository) ListLive(ctx context.Context, offset, limit int) ([]*model.LiveStream, error) {
	var res []*model.LiveStream
	err := r.db.WithContext(ctx).
		Where("status <> ?", model.LiveStreamEnded).
		Order("is_live DESC, scheduled_at ASC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, translate(err, "live streams")
}

func (r *liveStreamRepository) TransitionStatus(ctx context.Context, id string, from, to model.LiveStreamStatus, updates map[string]any) (bool, error) {
	fields := map[string]any{"status": to}
	for k, v := range updates {
		fields[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&model.LiveStream{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, translate(res.Error, "live stream")
	}
	return res.RowsAffected == 1, nil
}
