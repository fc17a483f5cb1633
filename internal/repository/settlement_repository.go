package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/model"
)

// SettlementRepository 结算仓储
type SettlementRepository interface {
	// Create 写入结算单及其订单占用记录，同时累加订单的 settled_amount。
	// 任一订单剩余收益不足时整体失败（InvalidTransition）。
	Create(ctx context.Context, s *model.Settlement, claims []model.SettlementOrder) error
	GetByID(ctx context.Context, id string) (*model.Settlement, error)
	ListByPartner(ctx context.Context, partnerID string, offset, limit int) ([]*model.Settlement, int64, error)
	List(ctx context.Context, status model.SettlementStatus, offset, limit int) ([]*model.Settlement, int64, error)
	// UpdateStatusGuard 仅当当前状态为 from 时更新，返回影响行数
	UpdateStatusGuard(ctx context.Context, id string, from model.SettlementStatus, updates map[string]any) (int64, error)
	// ReleaseClaims 删除结算单的订单占用并退回订单的 settled_amount
	ReleaseClaims(ctx context.Context, settlementID string) error
	ClaimedOrderIDs(ctx context.Context, settlementID string) ([]string, error)
	WithTx(tx *gorm.DB) SettlementRepository
}

type settlementRepository struct{ db *gorm.DB }

func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) WithTx(tx *gorm.DB) SettlementRepository {
	return &settlementRepository{db: tx}
}

func (r *settlementRepository) Create(ctx context.Context, s *model.Settlement, claims []model.SettlementOrder) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return translate(err, "settlement")
		}
		if len(claims) == 0 {
			return nil
		}
		for i := range claims {
			c := &claims[i]
			if c.Amount <= 0 {
				return apperr.Validation("claim on order %s must be positive", c.OrderID)
			}
			// 条件更新兜底：即使锁失效，同一笔收益也不会被占用两次
			res := tx.Model(&model.Order{}).
				Where("id = ? AND settled_amount + ? <= partner_revenue", c.OrderID, c.Amount).
				UpdateColumn("settled_amount", gorm.Expr("settled_amount + ?", c.Amount))
			if res.Error != nil {
				return translate(res.Error, "order")
			}
			if res.RowsAffected == 0 {
				return apperr.InvalidTransition("order %s has less than %d unsettled revenue", c.OrderID, c.Amount)
			}
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			c.SettlementID = s.ID
		}
		return translate(tx.Create(&claims).Error, "settlement claims")
	})
}

func (r *settlementRepository) GetByID(ctx context.Context, id string) (*model.Settlement, error) {
	var s model.Settlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, translate(err, "settlement")
	}
	return &s, nil
}

func (r *settlementRepository) ListByPartner(ctx context.Context, partnerID string, offset, limit int) ([]*model.Settlement, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Settlement{}).Where("partner_id = ?", partnerID)
	return r.page(q, offset, limit)
}

func (r *settlementRepository) List(ctx context.Context, status model.SettlementStatus, offset, limit int) ([]*model.Settlement, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Settlement{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return r.page(q, offset, limit)
}

func (r *settlementRepository) page(q *gorm.DB, offset, limit int) ([]*model.Settlement, int64, error) {
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "settlements")
	}
	var res []*model.Settlement
	err := q.Order("request_date DESC, id DESC").Offset(offset).Limit(limit).Find(&res).Error
	if err != nil {
		return nil, 0, translate(err, "settlements")
	}
	return res, total, nil
}

func (r *settlementRepository) UpdateStatusGuard(ctx context.Context, id string, from model.SettlementStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, translate(res.Error, "settlement")
}

func (r *settlementRepository) ReleaseClaims(ctx context.Context, settlementID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var claims []model.SettlementOrder
		if err := tx.Where("settlement_id = ?", settlementID).Find(&claims).Error; err != nil {
			return translate(err, "settlement claims")
		}
		for _, c := range claims {
			err := tx.Model(&model.Order{}).
				Where("id = ?", c.OrderID).
				UpdateColumn("settled_amount", gorm.Expr("settled_amount - ?", c.Amount)).Error
			if err != nil {
				return translate(err, "order")
			}
		}
		return translate(tx.Where("settlement_id = ?", settlementID).
			Delete(&model.SettlementOrder{}).Error, "settlement claims")
	})
}

func (r *settlementRepository) ClaimedOrderIDs(ctx context.Context, settlementID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.SettlementOrder{}).
		Where("settlement_id = ?", settlementID).
		Order("created_at ASC, order_id ASC").
		Pluck("order_id", &ids).Error
	return ids, translate(err, "settlement claims")
}
