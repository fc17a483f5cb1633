package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Create 创建订单
	Create(ctx context.Context, order *model.Order) error

	// GetByID 根据订单ID查询订单
	GetByID(ctx context.Context, orderID string) (*model.Order, error)

	// ListEligibleForSettlement 查询合作方已送达且仍有未占用收益的订单，按送达时间升序
	ListEligibleForSettlement(ctx context.Context, partnerID string) ([]*model.Order, error)

	// SumEligibleRevenue 未占用收益合计
	SumEligibleRevenue(ctx context.Context, partnerID string) (int64, error)

	// UpdateStatus 更新订单状态
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error

	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) OrderRepository
}
