package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/notify"
	"github.com/d60-Lab/live-commerce/internal/realtime"
)

// recordingSink 记录通知
type recordingSink struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notification) {
	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()
}

func (s *recordingSink) all() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.items...)
}

// fakeSession 记录收到的帧
type fakeSession struct {
	id string

	mu     sync.Mutex
	frames []realtime.Frame
}

func (f *fakeSession) ID() string     { return f.id }
func (f *fakeSession) UserID() string { return "user-" + f.id }

func (f *fakeSession) Send(payload []byte) error {
	var fr realtime.Frame
	if err := json.Unmarshal(payload, &fr); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) events(name string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, fr := range f.frames {
		if fr.Event == name {
			out = append(out, fr.Data)
		}
	}
	return out
}

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seedPartner(t *testing.T, db *gorm.DB, id, userID string) {
	t.Helper()
	require.NoError(t, db.Create(&model.Partner{ID: id, UserID: userID, Name: "shop " + id, CommissionRate: 10}).Error)
}

// seedDelivered 按顺序写入已送达订单，送达时间依次递增
func seedDelivered(t *testing.T, db *gorm.DB, partnerID string, revenues ...int64) []string {
	t.Helper()
	ids := make([]string, len(revenues))
	for i, rev := range revenues {
		delivered := baseTime.Add(time.Duration(i) * time.Hour)
		o := &model.Order{
			ID:             partnerID + "-order-" + string(rune('a'+i)),
			PartnerID:      partnerID,
			UserID:         "buyer",
			Total:          rev * 10 / 9,
			PartnerRevenue: rev,
			Status:         model.OrderStatusDelivered,
			DeliveredAt:    &delivered,
		}
		require.NoError(t, db.Create(o).Error)
		ids[i] = o.ID
	}
	return ids
}
