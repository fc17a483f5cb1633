package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/lock"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/notify"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// SettlementService 合作方结算：可结算金额、申请、审核
type SettlementService interface {
	RequestSettlement(ctx context.Context, partnerID string, amount int64, bankAccount, accountHolder string) (*model.Settlement, error)
	ResolveSettlement(ctx context.Context, settlementID string, decision model.SettlementStatus, rejectReason string) (*model.Settlement, error)
	Available(ctx context.Context, partnerID string) (int64, error)
	ListByPartner(ctx context.Context, partnerID string, page, pageSize int) ([]*model.Settlement, int64, error)
	List(ctx context.Context, status model.SettlementStatus, page, pageSize int) ([]*model.Settlement, int64, error)
	Get(ctx context.Context, settlementID string) (*model.Settlement, error)
}

type SettlementOptions struct {
	// ReleaseOnReject 驳回时释放订单占用，使其可以重新申请
	ReleaseOnReject bool
}

type settlementService struct {
	db          *gorm.DB
	orders      repository.OrderRepository
	settlements repository.SettlementRepository
	partners    repository.PartnerRepository
	locker      lock.Locker
	sink        notify.Sink
	opts        SettlementOptions
	now         func() time.Time
}

func NewSettlementService(
	db *gorm.DB,
	orders repository.OrderRepository,
	settlements repository.SettlementRepository,
	partners repository.PartnerRepository,
	locker lock.Locker,
	sink notify.Sink,
	opts SettlementOptions,
) SettlementService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &settlementService{
		db:          db,
		orders:      orders,
		settlements: settlements,
		partners:    partners,
		locker:      locker,
		sink:        sink,
		opts:        opts,
		now:         time.Now,
	}
}

func settlementLockKey(partnerID string) string { return "settlement:" + partnerID }

// RequestSettlement 同一合作方的申请串行执行；资格计算、订单占用、结算单写入在同一事务内完成。
// 按送达时间从早到晚占用订单的剩余收益，最后一单只占用差额，余下部分留给后续申请。
func (s *settlementService) RequestSettlement(ctx context.Context, partnerID string, amount int64, bankAccount, accountHolder string) (*model.Settlement, error) {
	bankAccount = strings.TrimSpace(bankAccount)
	accountHolder = strings.TrimSpace(accountHolder)
	switch {
	case partnerID == "":
		return nil, apperr.Validation("partner id is required")
	case amount <= 0:
		return nil, apperr.Validation("amount must be positive")
	case bankAccount == "":
		return nil, apperr.Validation("bank account is required")
	case accountHolder == "":
		return nil, apperr.Validation("account holder is required")
	}

	release, err := s.locker.Acquire(ctx, settlementLockKey(partnerID))
	if err != nil {
		return nil, apperr.TransientIO(err, "acquire settlement lock")
	}
	defer release()

	var created *model.Settlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eligible, err := s.orders.WithTx(tx).ListEligibleForSettlement(ctx, partnerID)
		if err != nil {
			return err
		}

		var available int64
		for _, o := range eligible {
			available += o.Unsettled()
		}
		if amount > available {
			return apperr.InsufficientFunds(available, amount)
		}

		now := s.now().UTC()
		remaining := amount
		claims := make([]model.SettlementOrder, 0, len(eligible))
		for _, o := range eligible {
			if remaining == 0 {
				break
			}
			take := min(o.Unsettled(), remaining)
			claims = append(claims, model.SettlementOrder{OrderID: o.ID, Amount: take, CreatedAt: now})
			remaining -= take
		}

		st := &model.Settlement{
			PartnerID:     partnerID,
			Amount:        amount,
			Status:        model.SettlementStatusPending,
			BankAccount:   bankAccount,
			AccountHolder: accountHolder,
			RequestDate:   now,
		}
		if err := s.settlements.WithTx(tx).Create(ctx, st, claims); err != nil {
			return err
		}
		created = st
		return nil
	})
	if err != nil {
		return nil, wrapTxErr(err, "request settlement")
	}

	logger.Info("settlement requested",
		zap.String("settlement", created.ID),
		zap.String("partner", partnerID),
		zap.Int64("amount", amount),
	)
	return created, nil
}

func (s *settlementService) ResolveSettlement(ctx context.Context, settlementID string, decision model.SettlementStatus, rejectReason string) (*model.Settlement, error) {
	if decision != model.SettlementStatusApproved && decision != model.SettlementStatusRejected {
		return nil, apperr.Validation("decision must be APPROVED or REJECTED")
	}

	var resolved *model.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.settlements.WithTx(tx)
		current, err := repo.GetByID(ctx, settlementID)
		if err != nil {
			return err
		}
		if current.Status != model.SettlementStatusPending {
			return apperr.InvalidTransition("settlement %s is %s, only PENDING can be resolved", settlementID, current.Status)
		}

		now := s.now().UTC()
		updates := map[string]any{"status": decision, "processed_at": now}
		if decision == model.SettlementStatusApproved {
			updates["completed_at"] = now
		} else if reason := strings.TrimSpace(rejectReason); reason != "" {
			updates["reject_reason"] = reason
		}

		n, err := repo.UpdateStatusGuard(ctx, settlementID, model.SettlementStatusPending, updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.InvalidTransition("settlement %s was resolved concurrently", settlementID)
		}
		if decision == model.SettlementStatusRejected && s.opts.ReleaseOnReject {
			if err := repo.ReleaseClaims(ctx, settlementID); err != nil {
				return err
			}
		}

		resolved, err = repo.GetByID(ctx, settlementID)
		return err
	})
	if err != nil {
		return nil, wrapTxErr(err, "resolve settlement")
	}

	logger.Info("settlement resolved", zap.String("settlement", settlementID), zap.String("status", string(resolved.Status)))
	s.notifyPartner(ctx, resolved)
	return resolved, nil
}

// notifyPartner 通知失败只记日志，不影响审核结果
func (s *settlementService) notifyPartner(ctx context.Context, st *model.Settlement) {
	partner, err := s.partners.GetByID(ctx, st.PartnerID)
	if err != nil {
		logger.Warn("settlement notification skipped", zap.String("partner", st.PartnerID), zap.Error(err))
		return
	}

	title := "Settlement approved"
	content := fmt.Sprintf("Your settlement request of %d has been approved.", st.Amount)
	if st.Status == model.SettlementStatusRejected {
		title = "Settlement rejected"
		content = fmt.Sprintf("Your settlement request of %d has been rejected.", st.Amount)
		if st.RejectReason != nil {
			content += " Reason: " + *st.RejectReason
		}
	}
	s.sink.Notify(ctx, notify.Notification{
		UserID:  partner.UserID,
		Type:    model.NotificationTypeSettlement,
		Title:   title,
		Content: content,
		Link:    "/partner/settlements/" + st.ID,
	})
}

func (s *settlementService) Available(ctx context.Context, partnerID string) (int64, error) {
	return s.orders.SumEligibleRevenue(ctx, partnerID)
}

func (s *settlementService) ListByPartner(ctx context.Context, partnerID string, page, pageSize int) ([]*model.Settlement, int64, error) {
	offset, limit := pagination(page, pageSize)
	return s.settlements.ListByPartner(ctx, partnerID, offset, limit)
}

func (s *settlementService) List(ctx context.Context, status model.SettlementStatus, page, pageSize int) ([]*model.Settlement, int64, error) {
	offset, limit := pagination(page, pageSize)
	return s.settlements.List(ctx, status, offset, limit)
}

func (s *settlementService) Get(ctx context.Context, settlementID string) (*model.Settlement, error) {
	return s.settlements.GetByID(ctx, settlementID)
}

func pagination(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return (page - 1) * pageSize, pageSize
}

// wrapTxErr 事务提交等非业务错误归为 TransientIO
func wrapTxErr(err error, op string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.TransientIO(err, "%s", op)
}
