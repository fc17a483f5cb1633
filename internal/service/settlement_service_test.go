package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/internal/apperr"
	"github.com/d60-Lab/live-commerce/internal/lock"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/internal/testutil"
)

func newSettlementService(t *testing.T, opts SettlementOptions) (*gorm.DB, SettlementService, *recordingSink) {
	t.Helper()
	db := testutil.NewDB(t)
	sink := &recordingSink{}
	svc := NewSettlementService(
		db,
		repository.NewOrderRepository(db),
		repository.NewSettlementRepository(db),
		repository.NewPartnerRepository(db),
		lock.NewLocalLocker(),
		sink,
		opts,
	)
	return db, svc, sink
}

func TestRequestSettlement_SecondRequestRejectedAfterFullClaim(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000, 2000, 1500)

	st, err := svc.RequestSettlement(ctx, "P", 4500, "110-222-333", "Kim")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusPending, st.Status)
	assert.Equal(t, int64(4500), st.Amount)
	assert.False(t, st.RequestDate.IsZero())

	_, err = svc.RequestSettlement(ctx, "P", 100, "110-222-333", "Kim")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	avail, ok := apperr.AvailableOf(err)
	require.True(t, ok)
	assert.Zero(t, avail)
	assert.Contains(t, err.Error(), "available 0")
}

func TestRequestSettlement_InsufficientFundsMessage(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000, 2000, 1500)

	_, err := svc.RequestSettlement(context.Background(), "P", 4600, "acct", "Kim")
	require.Error(t, err)
	assert.Equal(t, "requested 4600 exceeds available 4500", err.Error())
}

func settledAmounts(t *testing.T, db *gorm.DB, ids []string) []int64 {
	t.Helper()
	out := make([]int64, len(ids))
	for i, id := range ids {
		var o model.Order
		require.NoError(t, db.First(&o, "id = ?", id).Error)
		out[i] = o.SettledAmount
	}
	return out
}

func TestRequestSettlement_ClaimsOldestRevenueFirst(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	ids := seedDelivered(t, db, "P", 1000, 2000, 1500)

	st, err := svc.RequestSettlement(ctx, "P", 1500, "acct", "Kim")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), st.Amount)

	claimed, err := repository.NewSettlementRepository(db).ClaimedOrderIDs(ctx, st.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:2], claimed)
	// 第二单只占用差额
	assert.Equal(t, []int64{1000, 500, 0}, settledAmounts(t, db, ids))

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), avail)
}

func TestRequestSettlement_UnalignedRequestsConserveRevenue(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000, 2000, 1500)

	_, err := svc.RequestSettlement(ctx, "P", 100, "acct", "Kim")
	require.NoError(t, err)

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(4400), avail)

	_, err = svc.RequestSettlement(ctx, "P", avail, "acct", "Kim")
	require.NoError(t, err)

	avail, err = svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Zero(t, avail)

	list, _, err := svc.ListByPartner(ctx, "P", 1, 10)
	require.NoError(t, err)
	var requested int64
	for _, st := range list {
		requested += st.Amount
	}
	assert.Equal(t, int64(4500), requested)
}

func TestRequestSettlement_WithdrawsFullRevenueAcrossManyRequests(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	ids := seedDelivered(t, db, "P", 1000, 2000, 1500)

	for _, amount := range []int64{100, 1234, 777, 2389} {
		_, err := svc.RequestSettlement(ctx, "P", amount, "acct", "Kim")
		require.NoError(t, err, "amount %d", amount)
	}

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Zero(t, avail)
	assert.Equal(t, []int64{1000, 2000, 1500}, settledAmounts(t, db, ids))

	var claimed int64
	require.NoError(t, db.Model(&model.SettlementOrder{}).Select("COALESCE(SUM(amount), 0)").Scan(&claimed).Error)
	assert.Equal(t, int64(4500), claimed)

	_, err = svc.RequestSettlement(ctx, "P", 1, "acct", "Kim")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
}

func TestRequestSettlement_IgnoresUndeliveredAndOtherPartners(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedPartner(t, db, "Q", "owner-Q")
	seedDelivered(t, db, "P", 1000)
	seedDelivered(t, db, "Q", 9000)
	require.NoError(t, db.Create(&model.Order{ID: "p-shipping", PartnerID: "P", UserID: "buyer", Total: 800, PartnerRevenue: 700, Status: model.OrderStatusShipping}).Error)

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), avail)

	_, err = svc.RequestSettlement(ctx, "P", 1700, "acct", "Kim")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
}

func TestRequestSettlement_Validation(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000)

	cases := []struct {
		name    string
		amount  int64
		account string
		holder  string
	}{
		{"zero amount", 0, "acct", "Kim"},
		{"negative amount", -5, "acct", "Kim"},
		{"empty account", 100, "  ", "Kim"},
		{"empty holder", 100, "acct", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RequestSettlement(context.Background(), "P", tc.amount, tc.account, tc.holder)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	var n int64
	require.NoError(t, db.Model(&model.Settlement{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRequestSettlement_ConcurrentNeverOverAllocates(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000, 2000, 1500)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []*model.Settlement
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.RequestSettlement(context.Background(), "P", 1000, "acct", "Kim")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
				rejected++
				return
			}
			succeeded = append(succeeded, st)
		}()
	}
	wg.Wait()

	// 4500 可以支付 4 笔 1000，余下 500 留给下一次
	assert.Len(t, succeeded, 4)
	assert.Equal(t, workers-4, rejected)

	var claimed int64
	require.NoError(t, db.Model(&model.SettlementOrder{}).Select("COALESCE(SUM(amount), 0)").Scan(&claimed).Error)
	assert.Equal(t, int64(4000), claimed)

	avail, err := svc.Available(context.Background(), "P")
	require.NoError(t, err)
	assert.Equal(t, int64(500), avail)
}

func TestResolveSettlement_Approve(t *testing.T) {
	db, svc, sink := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000, 2000, 1500)

	st, err := svc.RequestSettlement(ctx, "P", 4500, "acct", "Kim")
	require.NoError(t, err)

	resolved, err := svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ProcessedAt)
	require.NotNil(t, resolved.CompletedAt)
	assert.True(t, resolved.ProcessedAt.Equal(*resolved.CompletedAt))
	assert.Nil(t, resolved.RejectReason)

	notes := sink.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "owner-P", notes[0].UserID)
	assert.Equal(t, model.NotificationTypeSettlement, notes[0].Type)
	assert.Contains(t, notes[0].Content, "4500")
	assert.Contains(t, notes[0].Content, "approved")

	_, err = svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusRejected, "late")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Len(t, sink.all(), 1)
}

func TestResolveSettlement_RejectKeepsClaimsByDefault(t *testing.T) {
	db, svc, sink := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000)

	st, err := svc.RequestSettlement(ctx, "P", 1000, "acct", "Kim")
	require.NoError(t, err)

	resolved, err := svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusRejected, "wrong account")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusRejected, resolved.Status)
	require.NotNil(t, resolved.RejectReason)
	assert.Equal(t, "wrong account", *resolved.RejectReason)
	assert.NotNil(t, resolved.ProcessedAt)
	assert.Nil(t, resolved.CompletedAt)

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Zero(t, avail)

	notes := sink.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Content, "wrong account")
}

func TestResolveSettlement_RejectReleasesClaimsWhenConfigured(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{ReleaseOnReject: true})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000)

	st, err := svc.RequestSettlement(ctx, "P", 1000, "acct", "Kim")
	require.NoError(t, err)
	_, err = svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusRejected, "")
	require.NoError(t, err)

	avail, err := svc.Available(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), avail)
	var claims int64
	require.NoError(t, db.Model(&model.SettlementOrder{}).Count(&claims).Error)
	assert.Zero(t, claims)

	again, err := svc.RequestSettlement(ctx, "P", 1000, "acct", "Kim")
	require.NoError(t, err)
	assert.NotEqual(t, st.ID, again.ID)
}

func TestResolveSettlement_Errors(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedDelivered(t, db, "P", 1000)
	st, err := svc.RequestSettlement(ctx, "P", 1000, "acct", "Kim")
	require.NoError(t, err)

	_, err = svc.ResolveSettlement(ctx, "missing", model.SettlementStatusApproved, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusCompleted, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusPending, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestResolveSettlement_NotificationFailureDoesNotFailTransition(t *testing.T) {
	db, svc, sink := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	// 没有 Partner 记录，无法找到通知对象
	seedDelivered(t, db, "ghost", 1000)

	st, err := svc.RequestSettlement(ctx, "ghost", 1000, "acct", "Kim")
	require.NoError(t, err)

	resolved, err := svc.ResolveSettlement(ctx, st.ID, model.SettlementStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusApproved, resolved.Status)
	assert.Empty(t, sink.all())
}

func TestSettlementQueries(t *testing.T) {
	db, svc, _ := newSettlementService(t, SettlementOptions{})
	ctx := context.Background()
	seedPartner(t, db, "P", "owner-P")
	seedPartner(t, db, "Q", "owner-Q")
	seedDelivered(t, db, "P", 100, 200, 300)
	seedDelivered(t, db, "Q", 500)

	first, err := svc.RequestSettlement(ctx, "P", 100, "acct", "Kim")
	require.NoError(t, err)
	_, err = svc.RequestSettlement(ctx, "P", 200, "acct", "Kim")
	require.NoError(t, err)
	_, err = svc.RequestSettlement(ctx, "Q", 500, "acct", "Lee")
	require.NoError(t, err)
	_, err = svc.ResolveSettlement(ctx, first.ID, model.SettlementStatusApproved, "")
	require.NoError(t, err)

	mine, total, err := svc.ListByPartner(ctx, "P", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mine, 2)

	pending, total, err := svc.List(ctx, model.SettlementStatusPending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, st := range pending {
		assert.Equal(t, model.SettlementStatusPending, st.Status)
	}

	all, total, err := svc.List(ctx, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SettlementStatusApproved, got.Status)
}
