package order

import (
	"fmt"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/models"
)

// orderTransitions is the complete set of allowed order status changes.
// pending→preparing happens when the kitchen starts an unconfirmed order.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderPreparing, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderPreparing},
	models.OrderPreparing: {models.OrderReady},
	models.OrderReady:     {models.OrderServed},
	models.OrderServed:    {models.OrderCompleted},
}

var itemTransitions = map[models.ItemStatus][]models.ItemStatus{
	models.ItemPending:   {models.ItemPreparing, models.ItemCancelled},
	models.ItemPreparing: {models.ItemReady},
	models.ItemReady:     {models.ItemServed},
}

// CanTransitionOrder reports whether from→to is in the order transition table.
func CanTransitionOrder(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionItem reports whether from→to is in the item transition table.
func CanTransitionItem(from, to models.ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkOrderTransition(from, to models.OrderStatus) error {
	if !CanTransitionOrder(from, to) {
		return apperr.Conflict(apperr.ReasonInvalidTransition,
			fmt.Sprintf("order cannot move from %s to %s", from, to))
	}
	return nil
}

func checkItemTransition(from, to models.ItemStatus) error {
	if !CanTransitionItem(from, to) {
		return apperr.Conflict(apperr.ReasonInvalidTransition,
			fmt.Sprintf("item cannot move from %s to %s", from, to))
	}
	return nil
}

// Aggregate derives the order status implied by its items, given the current
// order status. It only ever moves the order forward along the kitchen path
// and returns current when the items imply no change. Cancelled items are ignored.
func Aggregate(current models.OrderStatus, items []models.OrderItem) models.OrderStatus {
	switch current {
	case models.OrderPending, models.OrderConfirmed, models.OrderPreparing, models.OrderReady:
	default:
		return current
	}

	var active, started, unfinished, unserved int
	for _, it := range items {
		switch it.Status {
		case models.ItemCancelled:
			continue
		case models.ItemPending:
			unfinished++
			unserved++
		case models.ItemPreparing:
			started++
			unfinished++
			unserved++
		case models.ItemReady:
			started++
			unserved++
		case models.ItemServed:
			started++
		}
		active++
	}
	if active == 0 || started == 0 {
		return current
	}

	target := models.OrderPreparing
	switch {
	case unserved == 0:
		target = models.OrderServed
	case unfinished == 0:
		target = models.OrderReady
	}

	// Walk forward through the table so the result is always a legal sequence of steps.
	status := current
	for status != target {
		next, ok := forwardStep(status)
		if !ok {
			return current
		}
		status = next
	}
	return status
}

func forwardStep(s models.OrderStatus) (models.OrderStatus, bool) {
	switch s {
	case models.OrderPending, models.OrderConfirmed:
		return models.OrderPreparing, true
	case models.OrderPreparing:
		return models.OrderReady, true
	case models.OrderReady:
		return models.OrderServed, true
	}
	return "", false
}
