package model

import "time"

// Partner 入驻商家，UserID 为其所属账号（接收结算通知）
type Partner struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	Name           string    `json:"name" gorm:"type:varchar(100);not null"`
	CommissionRate int       `json:"commission_rate" gorm:"not null;default:10"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }
