package order

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/events"
	"ms-ordering/internal/loyalty"
	"ms-ordering/internal/models"
)

// Cancel cancels a pending order whose items have not been started and
// reverses its coupon and reward effects. Everything commits together or not
// at all; cancelling twice is rejected without side effects.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r := s.bind(tx)

		o, err := r.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order %s: %w", orderID, err)
		}
		if o == nil {
			return apperr.NotFound(apperr.ReasonOrderNotFound, "order not found")
		}
		if err := cancellable(o); err != nil {
			return err
		}

		// The status swap is the idempotency guard: a concurrent cancel loses here.
		ok, err := r.orders.UpdateOrderStatus(ctx, o.ID, models.OrderPending, models.OrderCancelled)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if !ok {
			return apperr.Conflict(apperr.ReasonOrderAlreadyCanceled, "order was changed concurrently")
		}
		n, err := r.orders.CancelPendingItems(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel order items: %w", err)
		}
		if n != int64(len(o.Items)) {
			return apperr.Conflict(apperr.ReasonItemsInProgress, "an item entered preparation while cancelling")
		}

		now := s.now()
		if err := s.restoreCoupon(ctx, r, o); err != nil {
			return err
		}
		if err := s.refundReward(ctx, r, o, now); err != nil {
			return err
		}

		o.Status = models.OrderCancelled
		o.UpdatedAt = now
		for i := range o.Items {
			o.Items[i].Status = models.ItemCancelled
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("CANCELLED", cancelled.ID, fmt.Sprintf("Order %s cancelled", summarize(cancelled).Display))
	s.emit(events.OrderCancelled, cancelled)
	return cancelled, nil
}

func cancellable(o *models.Order) error {
	if o.Status == models.OrderCancelled {
		return apperr.Conflict(apperr.ReasonOrderAlreadyCanceled, "order is already cancelled")
	}
	for _, it := range o.Items {
		if it.Status != models.ItemPending {
			return apperr.Conflict(apperr.ReasonItemsInProgress,
				fmt.Sprintf("%s is already %s", it.Name, it.Status))
		}
	}
	if o.Status != models.OrderPending {
		return apperr.Conflict(apperr.ReasonOrderNotCancellable,
			fmt.Sprintf("orders in status %s cannot be cancelled", o.Status))
	}
	return nil
}

func (s *OrderService) restoreCoupon(ctx context.Context, r repos, o *models.Order) error {
	redemption, err := r.coupons.GetRedemptionByOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("failed to load coupon redemption: %w", err)
	}
	if redemption == nil {
		return nil
	}

	ok, err := r.coupons.DecrementUses(ctx, redemption.CouponID)
	if err != nil {
		return fmt.Errorf("failed to restore coupon use: %w", err)
	}
	if !ok {
		s.Logger.Warn("ORDER", fmt.Sprintf("Coupon %s had no uses left to restore for order %s", redemption.CouponID, o.ID))
	}
	if err := r.coupons.DeleteRedemption(ctx, redemption.ID); err != nil {
		return fmt.Errorf("failed to delete coupon redemption: %w", err)
	}
	if o.CustomerID != "" {
		if err := r.coupons.SetAssignmentUsed(ctx, redemption.CouponID, o.CustomerID, time.Time{}); err != nil {
			return fmt.Errorf("failed to reset coupon assignment: %w", err)
		}
	}
	return nil
}

func (s *OrderService) refundReward(ctx context.Context, r repos, o *models.Order, now time.Time) error {
	redemption, err := r.loyalty.GetRedemptionByOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("failed to load reward redemption: %w", err)
	}
	if redemption == nil {
		return nil
	}
	if _, err := loyalty.RefundRedemption(ctx, r.loyalty, redemption, o.OrderNumber, now); err != nil {
		return err
	}
	return nil
}
