package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// LiveRooms 直播间在线状态，由 realtime.Registry / RedisBridge 提供
type LiveRooms interface {
	ViewerCount(roomID string) int
	Broadcast(roomID string, payload []byte) int
}

// LiveStreamService 直播场次
type LiveStreamService interface {
	Create(ctx context.Context, partnerID, title string, scheduledAt time.Time, productIDs []string) (*model.LiveStream, error)
	Get(ctx context.Context, id string) (*model.LiveStream, error)
	// Lookup 只读查询，不计访问数
	Lookup(ctx context.Context, id string) (*model.LiveStream, error)
	ListLive(ctx context.Context, page, pageSize int) ([]*model.LiveStream, error)
	Start(ctx context.Context, id, partnerID string) (*model.LiveStream, error)
	End(ctx context.Context, id, partnerID string) (*model.LiveStream, error)
}

type liveStreamService struct {
	repo  repository.LiveStreamRepository
	rooms LiveRooms
	now   func() time.Time
}

func NewLiveStreamService(repo repository.LiveStreamRepository, rooms LiveRooms) LiveStreamService {
	return &liveStreamService{repo: repo, rooms: rooms, now: time.Now}
}

func (s *liveStreamService) Create(ctx context.Context, partnerID, title string, scheduledAt time.Time, productIDs []string) (*model.LiveStream, error) {
	title = strings.TrimSpace(title)
	if partnerID == "" || title == "" {
		return nil, apperr.Validation("partner id and title are required")
	}
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}
	ls := &model.LiveStream{
		PartnerID:   partnerID,
		Title:       title,
		Status:      model.LiveStreamScheduled,
		ScheduledAt: scheduledAt.UTC(),
		ProductIDs:  productIDs,
	}
	if err := s.repo.Create(ctx, ls); err != nil {
		return nil, err
	}
	return ls, nil
}

// Get 详情访问计数 +1，并附带实时在线人数
func (s *liveStreamService) Get(ctx context.Context, id string) (*model.LiveStream, error) {
	if err := s.repo.IncrementViewCount(ctx, id); err != nil {
		logger.Warn("increment view count failed", zap.String("live", id), zap.Error(err))
	}
	ls, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ls.ViewerCount = s.rooms.ViewerCount(id)
	return ls, nil
}

func (s *liveStreamService) Lookup(ctx context.Context, id string) (*model.LiveStream, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *liveStreamService) ListLive(ctx context.Context, page, pageSize int) ([]*model.LiveStream, error) {
	offset, limit := pagination(page, pageSize)
	list, err := s.repo.ListLive(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	for _, ls := range list {
		ls.ViewerCount = s.rooms.ViewerCount(ls.ID)
	}
	return list, nil
}

func (s *liveStreamService) Start(ctx context.Context, id, partnerID string) (*model.LiveStream, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, partnerID, model.LiveStreamScheduled, model.LiveStreamLive, map[string]any{
		"is_live":    true,
		"started_at": now,
	})
}

// End 结束直播并通知房间内观众
func (s *liveStreamService) End(ctx context.Context, id, partnerID string) (*model.LiveStream, error) {
	now := s.now().UTC()
	ls, err := s.transition(ctx, id, partnerID, model.LiveStreamLive, model.LiveStreamEnded, map[string]any{
		"is_live":  false,
		"ended_at": now,
	})
	if err != nil {
		return nil, err
	}
	if payload, err := realtime.Encode(realtime.EventLiveEnded, id); err == nil {
		s.rooms.Broadcast(id, payload)
	}
	return ls, nil
}

func (s *liveStreamService) transition(ctx context.Context, id, partnerID string, from, to model.LiveStreamStatus, updates map[string]any) (*model.LiveStream, error) {
	ls, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ls.PartnerID != partnerID {
		return nil, apperr.Authorization("live stream %s does not belong to partner", id)
	}
	if ls.Status != from {
		return nil, apperr.InvalidTransition("live stream %s is %s, expected %s", id, ls.Status, from)
	}
	ok, err := s.repo.TransitionStatus(ctx, id, from, to, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidTransition("live stream %s changed concurrently", id)
	}

	logger.Info("live stream status changed", zap.String("live", id), zap.String("from", string(from)), zap.String("to", string(to)))
	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated.ViewerCount = s.rooms.ViewerCount(id)
	return updated, nil
}
