// Package notify 站内通知投递：落库 + 推送到用户在线的 websocket 会话。
// 调用方只负责发起，投递失败只记录日志，不影响业务流程。
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/realtime"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// Notification 一条待投递的通知
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink 非阻塞的通知出口
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// Pusher 向用户在线会话推送，realtime.Registry / RedisBridge 实现
type Pusher interface {
	NotifyUser(userID string, payload []byte) int
}

// Deliverer 执行一次投递
type Deliverer struct {
	repo   repository.NotificationRepository
	pusher Pusher
}

func NewDeliverer(repo repository.NotificationRepository, pusher Pusher) *Deliverer {
	return &Deliverer{repo: repo, pusher: pusher}
}

// Deliver 先落库再推送；同一 ID 重复投递不会重复写入
func (d *Deliverer) Deliver(ctx context.Context, n Notification) error {
	prepare(&n)
	row := &model.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Content:   n.Content,
		Link:      n.Link,
		CreatedAt: n.CreatedAt,
	}
	if err := d.repo.Create(ctx, row); err != nil {
		return err
	}

	if d.pusher == nil {
		return nil
	}
	payload, err := realtime.Encode(realtime.EventNotification, n)
	if err != nil {
		return err
	}
	sent := d.pusher.NotifyUser(n.UserID, payload)
	logger.Debug("notification delivered", zap.String("user", n.UserID), zap.String("type", n.Type), zap.Int("sessions", sent))
	return nil
}

func prepare(n *Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
}

// Nop 丢弃所有通知
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
