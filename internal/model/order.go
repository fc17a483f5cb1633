package model

import (
	"time"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order 订单模型。PartnerRevenue 在下单时按佣金率算好，结算只读取不重算。
type Order struct {
	ID             string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PartnerID      string      `json:"partner_id" gorm:"type:varchar(36);index:idx_order_partner_status;not null"`
	UserID         string      `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Total          int64       `json:"total" gorm:"not null"`
	PartnerRevenue int64       `json:"partner_revenue" gorm:"not null"`
	SettledAmount  int64       `json:"settled_amount" gorm:"not null;default:0"` // 已被结算单占用的收益
	Status         OrderStatus `json:"status" gorm:"type:varchar(16);index:idx_order_partner_status;not null;default:PENDING"`
	DeliveredAt    *time.Time  `json:"delivered_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Unsettled 尚未被任何结算单占用的收益
func (o *Order) Unsettled() int64 {
	return o.PartnerRevenue - o.SettledAmount
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
