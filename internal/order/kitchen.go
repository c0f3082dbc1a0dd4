package order

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/events"
	"ms-ordering/internal/loyalty"
	"ms-ordering/internal/models"
)

// KitchenService moves orders and their items along the kitchen workflow.
type KitchenService struct {
	Orders *OrderService
}

func NewKitchenService(orders *OrderService) *KitchenService {
	return &KitchenService{Orders: orders}
}

// AdvanceItem moves one item forward and re-derives its order's status from all items.
func (k *KitchenService) AdvanceItem(ctx context.Context, itemID string, to models.ItemStatus) (*models.Order, error) {
	if to == models.ItemCancelled {
		return nil, apperr.Conflict(apperr.ReasonInvalidTransition, "items are cancelled together with their order")
	}

	s := k.Orders
	var (
		updated       *models.Order
		statusChanged bool
	)
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r := s.bind(tx)

		item, err := r.orders.GetItemByID(ctx, itemID)
		if err != nil {
			return fmt.Errorf("failed to load order item: %w", err)
		}
		if item == nil {
			return apperr.NotFound(apperr.ReasonItemNotFound, "order item not found")
		}
		o, err := r.orders.GetOrderByID(ctx, item.OrderID)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if o == nil {
			return apperr.Invariant(fmt.Sprintf("item %s references missing order %s", item.ID, item.OrderID))
		}
		if o.Status == models.OrderCancelled || o.Status == models.OrderCompleted {
			return apperr.Conflict(apperr.ReasonInvalidTransition, fmt.Sprintf("order is %s", o.Status))
		}
		if err := checkItemTransition(item.Status, to); err != nil {
			return err
		}

		ok, err := r.orders.UpdateItemStatus(ctx, item.ID, item.Status, to)
		if err != nil {
			return fmt.Errorf("failed to update order item: %w", err)
		}
		if !ok {
			return apperr.Conflict(apperr.ReasonInvalidTransition, "item was changed concurrently")
		}
		for i := range o.Items {
			if o.Items[i].ID == item.ID {
				o.Items[i].Status = to
			}
		}

		next := Aggregate(o.Status, o.Items)
		if next != o.Status {
			ok, err := r.orders.UpdateOrderStatus(ctx, o.ID, o.Status, next)
			if err != nil {
				return fmt.Errorf("failed to update order status: %w", err)
			}
			if !ok {
				return apperr.Conflict(apperr.ReasonInvalidTransition, "order was changed concurrently")
			}
			o.Status = next
			statusChanged = true
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("ITEM", updated.ID, fmt.Sprintf("Item %s is now %s; order is %s", itemID, to, updated.Status))
	s.emit(events.OrderItemChanged, updated)
	if statusChanged {
		s.emit(events.OrderStatusChanged, updated)
	}
	return updated, nil
}

// UpdateStatus applies a staff status change. Moving to cancelled runs the
// full cancellation; moving to completed credits loyalty points.
func (k *KitchenService) UpdateStatus(ctx context.Context, orderID string, to models.OrderStatus) (*models.Order, error) {
	if to == models.OrderCancelled {
		return k.Orders.Cancel(ctx, orderID)
	}

	s := k.Orders
	var updated *models.Order
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r := s.bind(tx)

		o, err := r.orders.GetOrderByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if o == nil {
			return apperr.NotFound(apperr.ReasonOrderNotFound, "order not found")
		}
		if err := checkOrderTransition(o.Status, to); err != nil {
			return err
		}
		if (to == models.OrderReady || to == models.OrderServed) && kitchenBusy(o.Items) {
			return apperr.Conflict(apperr.ReasonItemsInProgress,
				fmt.Sprintf("order cannot be %s while items are still being prepared", to))
		}

		ok, err := r.orders.UpdateOrderStatus(ctx, o.ID, o.Status, to)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !ok {
			return apperr.Conflict(apperr.ReasonInvalidTransition, "order was changed concurrently")
		}
		o.Status = to
		o.UpdatedAt = s.now()

		if to == models.OrderCompleted {
			earned, err := loyalty.EarnForOrder(ctx, r.loyalty, o, s.Pricing.PointsPerUnit, o.UpdatedAt)
			if err != nil {
				return err
			}
			if earned != nil {
				s.Logger.Info("LOYALTY", fmt.Sprintf("Customer %s earned %d points on order %s", o.CustomerID, earned.Points, o.ID))
			}
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("STATUS", updated.ID, fmt.Sprintf("Order %s is now %s", summarize(updated).Display, to))
	s.emit(events.OrderStatusChanged, updated)
	return updated, nil
}

func kitchenBusy(items []models.OrderItem) bool {
	for _, it := range items {
		if it.Status == models.ItemPending || it.Status == models.ItemPreparing {
			return true
		}
	}
	return false
}
