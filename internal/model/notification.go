package model

import "time"

const (
	NotificationTypeSettlement = "SETTLEMENT"
	NotificationTypeLive       = "LIVE"
)

type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index:idx_notification_user;not null"`
	Type      string    `json:"type" gorm:"type:varchar(32);not null"`
	Title     string    `json:"title" gorm:"type:varchar(200);not null"`
	Content   string    `json:"content" gorm:"type:text"`
	Link      string    `json:"link" gorm:"type:varchar(255)"`
	IsRead    bool      `json:"is_read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notification_user"`
}

func (Notification) TableName() string { return "notifications" }
