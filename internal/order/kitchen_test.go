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

func TestTransitionTables(t *testing.T) {
	assert.True(t, order.CanTransitionOrder(models.OrderPending, models.OrderConfirmed))
	assert.True(t, order.CanTransitionOrder(models.OrderPending, models.OrderCancelled))
	assert.True(t, order.CanTransitionOrder(models.OrderServed, models.OrderCompleted))
	assert.False(t, order.CanTransitionOrder(models.OrderConfirmed, models.OrderCancelled))
	assert.False(t, order.CanTransitionOrder(models.OrderCompleted, models.OrderPending))
	assert.False(t, order.CanTransitionOrder(models.OrderCancelled, models.OrderPending))
	assert.False(t, order.CanTransitionOrder(models.OrderPending, models.OrderReady))

	assert.True(t, order.CanTransitionItem(models.ItemPending, models.ItemCancelled))
	assert.True(t, order.CanTransitionItem(models.ItemReady, models.ItemServed))
	assert.False(t, order.CanTransitionItem(models.ItemPreparing, models.ItemCancelled))
	assert.False(t, order.CanTransitionItem(models.ItemServed, models.ItemReady))
}

func items(statuses ...models.ItemStatus) []models.OrderItem {
	out := make([]models.OrderItem, len(statuses))
	for i, s := range statuses {
		out[i] = models.OrderItem{Status: s}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		current models.OrderStatus
		items   []models.OrderItem
		want    models.OrderStatus
	}{
		{"nothing started", models.OrderPending, items(models.ItemPending, models.ItemPending), models.OrderPending},
		{"first item started", models.OrderPending, items(models.ItemPreparing, models.ItemPending), models.OrderPreparing},
		{"confirmed then started", models.OrderConfirmed, items(models.ItemPreparing), models.OrderPreparing},
		{"one ready one pending", models.OrderPreparing, items(models.ItemReady, models.ItemPending), models.OrderPreparing},
		{"all ready", models.OrderPreparing, items(models.ItemReady, models.ItemReady), models.OrderReady},
		{"ready and served", models.OrderPreparing, items(models.ItemReady, models.ItemServed), models.OrderReady},
		{"all served", models.OrderReady, items(models.ItemServed, models.ItemServed), models.OrderServed},
		{"cancelled items ignored", models.OrderPreparing, items(models.ItemReady, models.ItemCancelled), models.OrderReady},
		{"served order untouched", models.OrderServed, items(models.ItemServed), models.OrderServed},
		{"cancelled order untouched", models.OrderCancelled, items(models.ItemCancelled), models.OrderCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := order.Aggregate(tt.current, tt.items)
			assert.Equal(t, tt.want, got)
			if got == models.OrderReady {
				for _, it := range tt.items {
					assert.NotContains(t, []models.ItemStatus{models.ItemPending, models.ItemPreparing}, it.Status)
				}
			}
		})
	}
}

func TestKitchenFlowEarnsPoints(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	enrollment := f.enroll(t, "cust-1", 0)

	o, err := f.service.Settle(ctx, order.SettleRequest{
		OrganizationID: "org-1", TableSessionID: "session-active", CouponCode: "HOLA10",
		Lines: []order.SettleLine{
			{MenuItemID: "item-lomo", Quantity: 1, ModifierIDs: []string{"mod-egg"}},
			{MenuItemID: "item-lomo", Quantity: 1, ModifierIDs: []string{"mod-egg"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10620), o.Total)
	first, second := o.Items[0].ID, o.Items[1].ID

	step := func(itemID string, to models.ItemStatus, want models.OrderStatus) {
		t.Helper()
		updated, err := f.kitchen.AdvanceItem(ctx, itemID, to)
		require.NoError(t, err)
		assert.Equal(t, want, updated.Status)
	}
	step(first, models.ItemPreparing, models.OrderPreparing)
	step(second, models.ItemPreparing, models.OrderPreparing)
	step(first, models.ItemReady, models.OrderPreparing)
	step(second, models.ItemReady, models.OrderReady)
	step(first, models.ItemServed, models.OrderReady)
	step(second, models.ItemServed, models.OrderServed)

	_, err = f.kitchen.AdvanceItem(ctx, first, models.ItemReady)
	assert.Equal(t, apperr.ReasonInvalidTransition, apperr.ReasonOf(err))

	completed, err := f.kitchen.UpdateStatus(ctx, o.ID, models.OrderCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)

	// 10620 / 100 = 106 points.
	assert.Equal(t, int64(106), f.balance(t, enrollment))
	e, err := f.loyalty.GetEnrollment(ctx, enrollment)
	require.NoError(t, err)
	assert.Equal(t, int64(106), e.TotalPointsEarned)

	_, err = f.kitchen.UpdateStatus(ctx, o.ID, models.OrderCompleted)
	assert.Equal(t, apperr.ReasonInvalidTransition, apperr.ReasonOf(err))
	assert.Equal(t, int64(106), f.balance(t, enrollment))

	assert.Contains(t, f.events.types(), events.OrderItemChanged)
	assert.Contains(t, f.events.types(), events.OrderStatusChanged)
}

func TestUpdateStatusGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.service.Settle(ctx, order.SettleRequest{OrganizationID: "org-1", BranchID: "branch-1", Lines: tenThousand()})
	require.NoError(t, err)

	_, err = f.kitchen.UpdateStatus(ctx, o.ID, models.OrderReady)
	assert.Equal(t, apperr.ReasonInvalidTransition, apperr.ReasonOf(err))

	_, err = f.kitchen.UpdateStatus(ctx, o.ID, models.OrderPreparing)
	require.NoError(t, err)
	_, err = f.kitchen.UpdateStatus(ctx, o.ID, models.OrderReady)
	assert.Equal(t, apperr.ReasonItemsInProgress, apperr.ReasonOf(err))

	_, err = f.kitchen.AdvanceItem(ctx, o.Items[0].ID, models.ItemCancelled)
	assert.Equal(t, apperr.ReasonInvalidTransition, apperr.ReasonOf(err))

	_, err = f.kitchen.AdvanceItem(ctx, "missing", models.ItemPreparing)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	_, err = f.kitchen.UpdateStatus(ctx, "missing", models.OrderConfirmed)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestUpdateStatusToCancelledRunsCancellation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	o, err := f.service.Settle(ctx, order.SettleRequest{OrganizationID: "org-1", BranchID: "branch-1", Lines: tenThousand(), CouponCode: "HOLA10"})
	require.NoError(t, err)

	cancelled, err := f.kitchen.UpdateStatus(ctx, o.ID, models.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Zero(t, f.coupon(t, "coupon-10").CurrentUses)
}
