package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

// GormOrderRepository 单库订单仓储实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) WithTx(tx *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: tx}
}

// Create 创建订单
func (r *GormOrderRepository) Create(ctx context.Context, order *model.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == model.OrderStatusDelivered && order.DeliveredAt == nil {
		now := time.Now()
		order.DeliveredAt = &now
	}
	return translate(r.db.WithContext(ctx).Create(order).Error, "order")
}

// GetByID 根据订单ID查询订单
func (r *GormOrderRepository) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, translate(err, "order")
	}
	return &order, nil
}

func (r *GormOrderRepository) eligible(ctx context.Context, partnerID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("orders.partner_id = ? AND orders.status = ?", partnerID, model.OrderStatusDelivered).
		Where("orders.settled_amount < orders.partner_revenue")
}

func (r *GormOrderRepository) ListEligibleForSettlement(ctx context.Context, partnerID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.eligible(ctx, partnerID).
		Order("orders.delivered_at ASC, orders.id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, translate(err, "eligible orders")
	}
	return orders, nil
}

func (r *GormOrderRepository) SumEligibleRevenue(ctx context.Context, partnerID string) (int64, error) {
	var sum int64
	err := r.eligible(ctx, partnerID).
		Select("COALESCE(SUM(orders.partner_revenue - orders.settled_amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, translate(err, "eligible revenue")
	}
	return sum, nil
}

// UpdateStatus 更新订单状态，送达时记录时间
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	updates := map[string]any{"status": status}
	if status == model.OrderStatusDelivered {
		updates["delivered_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "order")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "order")
	}
	return nil
}
