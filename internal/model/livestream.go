package model

import "time"

type LiveStreamStatus string

const (
	LiveStreamScheduled LiveStreamStatus = "SCHEDULED"
	LiveStreamLive      LiveStreamStatus = "LIVE"
	LiveStreamEnded     LiveStreamStatus = "ENDED"
)

// LiveStream 直播场次。ViewCount 只是详情页访问计数，实时在线人数以房间成员数为准。
type LiveStream struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PartnerID   string           `json:"partner_id" gorm:"type:varchar(36);index;not null"`
	Title       string           `json:"title" gorm:"type:varchar(200);not null"`
	Status      LiveStreamStatus `json:"status" gorm:"type:varchar(16);index;not null;default:SCHEDULED"`
	IsLive      bool             `json:"is_live" gorm:"index:idx_live_order;not null;default:false"`
	ViewCount   int64            `json:"view_count" gorm:"not null;default:0"`
	ScheduledAt time.Time        `json:"scheduled_at" gorm:"index:idx_live_order"`
	ProductIDs  []string         `json:"product_ids" gorm:"serializer:json;type:text"`
	StartedAt   *time.Time       `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	ViewerCount int `json:"viewer_count" gorm:"-"`
}

func (LiveStream) TableName() string { return "live_streams" }
