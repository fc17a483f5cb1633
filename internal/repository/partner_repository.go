package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/model"
)

type PartnerRepository interface {
	Create(ctx context.Context, p *model.Partner) error
	GetByID(ctx context.Context, id string) (*model.Partner, error)
	GetByUserID(ctx context.Context, userID string) (*model.Partner, error)
}

type partnerRepository struct{ db *gorm.DB }

func NewPartnerRepository(db *gorm.DB) PartnerRepository { return &partnerRepository{db: db} }

func (r *partnerRepository) Create(ctx context.Context, p *model.Partner) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return translate(r.db.WithContext(ctx).Create(p).Error, "partner")
}

func (r *partnerRepository) GetByID(ctx context.Context, id string) (*model.Partner, error) {
	var p model.Partner
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err, "partner")
	}
	return &p, nil
}

func (r *partnerRepository) GetByUserID(ctx context.Context, userID string) (*model.Partner, error) {
	var p model.Partner
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate(err, "partner")
	}
	return &p, nil
}
