package model

import "time"

// SettlementStatus 结算状态
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "PENDING"
	SettlementStatusApproved   SettlementStatus = "APPROVED"
	SettlementStatusRejected   SettlementStatus = "REJECTED"
	SettlementStatusProcessing SettlementStatus = "PROCESSING" // 保留值，当前流程不会进入
	SettlementStatusCompleted  SettlementStatus = "COMPLETED"  // 同上
)

// Settlement 合作方结算申请
type Settlement struct {
	ID            string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PartnerID     string           `json:"partner_id" gorm:"type:varchar(36);index:idx_settlement_partner;not null"`
	Amount        int64            `json:"amount" gorm:"not null"`
	Status        SettlementStatus `json:"status" gorm:"type:varchar(16);index;not null;default:PENDING"`
	BankAccount   string           `json:"bank_account" gorm:"type:varchar(64);not null"`
	AccountHolder string           `json:"account_holder" gorm:"type:varchar(64);not null"`
	RequestDate   time.Time        `json:"request_date" gorm:"index:idx_settlement_partner"`
	ProcessedAt   *time.Time       `json:"processed_at"`
	CompletedAt   *time.Time       `json:"completed_at"`
	RejectReason  *string          `json:"reject_reason" gorm:"type:text"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (Settlement) TableName() string { return "settlements" }

// SettlementOrder 订单占用记录。一个订单的收益可以被多张结算单分段占用，
// 各段之和等于 orders.settled_amount，且不超过 partner_revenue。
type SettlementOrder struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	SettlementID string    `gorm:"type:varchar(36);uniqueIndex:idx_settlement_order;not null"`
	OrderID      string    `gorm:"type:varchar(36);uniqueIndex:idx_settlement_order;index;not null"`
	Amount       int64     `gorm:"not null"` // 本次占用的收益
	CreatedAt    time.Time
}

func (SettlementOrder) TableName() string { return "settlement_orders" }
