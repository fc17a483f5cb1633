package model

import "time"

// ChatMessage 直播聊天消息，只做软删除
type ChatMessage struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(32)"`
	LiveStreamID string     `json:"live_stream_id" gorm:"type:varchar(36);index:idx_chat_live_created;not null"`
	UserID       string     `json:"user_id" gorm:"type:varchar(36);not null"`
	UserName     string     `json:"user_name" gorm:"type:varchar(64)"`
	UserRole     string     `json:"user_role" gorm:"type:varchar(16)"`
	Message      string     `json:"message" gorm:"type:text;not null"`
	IsDeleted    bool       `json:"is_deleted" gorm:"not null;default:false"`
	DeletedBy    string     `json:"deleted_by,omitempty" gorm:"type:varchar(36)"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index:idx_chat_live_created;not null"`
}

func (ChatMessage) TableName() string { return "live_chat_messages" }
