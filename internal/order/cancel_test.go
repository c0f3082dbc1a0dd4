package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/events"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
)

func TestCancelRestoresCouponAndPoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	enrollment := f.enroll(t, "cust-1", 500)
	redemption := f.claim(t, "cust-1")
	usesBefore := f.coupon(t, "coupon-vip").CurrentUses
	balanceBefore := f.balance(t, enrollment)

	o, err := f.service.Settle(ctx, order.SettleRequest{
		OrganizationID: "org-1",
		TableSessionID: "session-active",
		Lines:          tenThousand(),
		CouponCode:     "VIP500",
		RedemptionID:   redemption.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, usesBefore+1, f.coupon(t, "coupon-vip").CurrentUses)

	cancelled, err := f.service.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	stored, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, stored.Status)
	for _, it := range stored.Items {
		assert.Equal(t, models.ItemCancelled, it.Status)
	}

	// Coupon side
	assert.Equal(t, usesBefore, f.coupon(t, "coupon-vip").CurrentUses)
	cr, err := f.coupons.GetRedemptionByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, cr)
	a, err := f.coupons.FindAssignment(ctx, "coupon-vip", "cust-1")
	require.NoError(t, err)
	assert.True(t, a.UsedAt.IsZero())

	// Loyalty side
	assert.Equal(t, balanceBefore, f.balance(t, enrollment))
	txs, err := f.loyalty.ListTransactions(ctx, enrollment)
	require.NoError(t, err)
	var adjustments []models.LoyaltyTransaction
	for _, tx := range txs {
		if tx.Type == models.LoyaltyAdjusted {
			adjustments = append(adjustments, tx)
		}
	}
	require.Len(t, adjustments, 1)
	assert.Equal(t, redemption.PointsSpent, adjustments[0].Points)
	assert.Equal(t, o.ID, adjustments[0].OrderID)
	assert.Contains(t, adjustments[0].Description, "cancelled")

	reusable, err := f.loyalty.GetRedemption(ctx, redemption.ID)
	require.NoError(t, err)
	assert.Empty(t, reusable.OrderID)

	// The redemption and the coupon can be used again.
	again, err := f.service.Settle(ctx, order.SettleRequest{
		OrganizationID: "org-1", TableSessionID: "session-active", Lines: tenThousand(),
		CouponCode: "VIP500", RedemptionID: redemption.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, o.Total, again.Total)

	assert.Equal(t, []events.Type{events.OrderNew, events.OrderCancelled, events.OrderNew}, f.events.types())
}

func TestCancelTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	enrollment := f.enroll(t, "cust-1", 500)
	redemption := f.claim(t, "cust-1")

	o, err := f.service.Settle(ctx, order.SettleRequest{
		OrganizationID: "org-1", TableSessionID: "session-active", Lines: tenThousand(),
		CouponCode: "HOLA10", RedemptionID: redemption.ID,
	})
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, o.ID)
	require.NoError(t, err)
	uses := f.coupon(t, "coupon-10").CurrentUses
	balance := f.balance(t, enrollment)

	_, err = f.service.Cancel(ctx, o.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.Equal(t, apperr.ReasonOrderAlreadyCanceled, apperr.ReasonOf(err))

	assert.Equal(t, uses, f.coupon(t, "coupon-10").CurrentUses)
	assert.Equal(t, balance, f.balance(t, enrollment))
	assert.Equal(t, []events.Type{events.OrderNew, events.OrderCancelled}, f.events.types())
}

func TestCancelBlockedByStartedItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.service.Settle(ctx, order.SettleRequest{
		OrganizationID: "org-1", TableSessionID: "session-anon", CouponCode: "HOLA10",
		Lines: []order.SettleLine{
			{MenuItemID: "item-lomo", Quantity: 1},
			{MenuItemID: "item-ceviche", Quantity: 1},
			{MenuItemID: "item-chicha", Quantity: 2},
		},
	})
	require.NoError(t, err)

	_, err = f.kitchen.AdvanceItem(ctx, o.Items[1].ID, models.ItemPreparing)
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, o.ID)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
	assert.Equal(t, apperr.ReasonItemsInProgress, apperr.ReasonOf(err))

	stored, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.OrderCancelled, stored.Status)
	for _, it := range stored.Items {
		assert.NotEqual(t, models.ItemCancelled, it.Status)
	}
	assert.Equal(t, int64(1), f.coupon(t, "coupon-10").CurrentUses)
}

func TestCancelReasons(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.service.Cancel(ctx, "missing")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	o, err := f.service.Settle(ctx, order.SettleRequest{OrganizationID: "org-1", BranchID: "branch-1", Lines: tenThousand()})
	require.NoError(t, err)
	_, err = f.kitchen.UpdateStatus(ctx, o.ID, models.OrderConfirmed)
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, o.ID)
	assert.Equal(t, apperr.ReasonOrderNotCancellable, apperr.ReasonOf(err))
}
