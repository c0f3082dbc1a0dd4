package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/coupon"
	"ms-ordering/internal/database"
	"ms-ordering/internal/discount"
	"ms-ordering/internal/events"
	"ms-ordering/internal/loyalty"
	"ms-ordering/internal/models"
)

// SettleLine is one requested menu item.
type SettleLine struct {
	MenuItemID  string   `json:"menu_item_id"`
	Quantity    int64    `json:"quantity"`
	ModifierIDs []string `json:"modifier_ids,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// SettleRequest is a cart to be priced and persisted. Identity fields come
// from the caller's verified token, never from the request body.
type SettleRequest struct {
	OrganizationID string
	BranchID       string
	TableSessionID string
	// TableID is filled from the table session.
	TableID      string
	CustomerID   string
	Type         models.OrderType
	CustomerName string
	Notes        string
	Lines        []SettleLine
	CouponCode   string
	RedemptionID string
}

// Settle prices the cart, applies the coupon and the reward, and persists the
// order with its side effects in one transaction. order:new is emitted after commit.
func (s *OrderService) Settle(ctx context.Context, req SettleRequest) (*models.Order, error) {
	if req.Type == "" {
		req.Type = models.OrderTypeTakeout
		if req.TableSessionID != "" {
			req.Type = models.OrderTypeDineIn
		}
	}
	if !req.Type.Valid() {
		return nil, apperr.BadRequest(apperr.ReasonInvalidType, fmt.Sprintf("unknown order type %q", req.Type))
	}
	if req.Type == models.OrderTypeDineIn && req.TableSessionID == "" {
		return nil, apperr.BadRequest(apperr.ReasonInvalidType, "dine-in orders need a table session")
	}

	var (
		o   *models.Order
		err error
	)
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		o, err = s.settleOnce(ctx, req)
		if err == nil || !database.IsUniqueViolation(err) {
			break
		}
		s.Logger.Warn("ORDER", fmt.Sprintf("Order number collision in branch %s, attempt %d", req.BranchID, attempt))
	}
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("SETTLED", o.ID, fmt.Sprintf("Order %s in branch %s: subtotal=%d discount=%d tax=%d total=%d",
		summarize(o).Display, o.BranchID, o.Subtotal, o.Discount, o.Tax, o.Total))
	s.emit(events.OrderNew, o)
	return o, nil
}

func (s *OrderService) settleOnce(ctx context.Context, req SettleRequest) (*models.Order, error) {
	var settled *models.Order
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r := s.bind(tx)

		if err := s.gate(ctx, r, &req); err != nil {
			return err
		}
		if len(req.Lines) == 0 {
			return apperr.BadRequest(apperr.ReasonEmptyOrder, "order has no items")
		}

		now := s.now()
		o := &models.Order{
			ID:             uuid.NewString(),
			OrganizationID: req.OrganizationID,
			BranchID:       req.BranchID,
			TableSessionID: req.TableSessionID,
			TableID:        req.TableID,
			CustomerID:     req.CustomerID,
			Type:           req.Type,
			Status:         models.OrderPending,
			CustomerName:   req.CustomerName,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		items, lines, err := s.priceLines(ctx, r, o, req.Lines)
		if err != nil {
			return err
		}
		o.Items = items
		subtotal, err := discount.CheckedSubtotal(lines)
		if err != nil {
			return apperr.Invariant("order subtotal out of range")
		}

		var (
			applied        *models.Coupon
			assignment     *models.CouponAssignment
			couponDiscount int64
		)
		if req.CouponCode != "" {
			applied, assignment, err = coupon.Resolve(ctx, r.coupons, coupon.NormalizeCode(req.CouponCode), coupon.Context{
				OrganizationID: req.OrganizationID,
				Subtotal:       subtotal,
				CustomerID:     req.CustomerID,
				Now:            now,
			})
			if err != nil {
				return err
			}
			couponDiscount = discount.Calculate(lines, subtotal, discount.RuleFromCoupon(applied))
		}

		var (
			redemption     *models.RewardRedemption
			rewardDiscount int64
		)
		if req.RedemptionID != "" {
			var reward *models.LoyaltyReward
			redemption, reward, err = loyalty.ResolveRedemption(ctx, r.loyalty, req.RedemptionID, req.CustomerID, req.OrganizationID)
			if err != nil {
				return err
			}
			// The reward applies to what is left after the coupon.
			rewardDiscount = discount.Calculate(lines, subtotal-couponDiscount, discount.RuleFromReward(reward))
		}

		totals := discount.Summarize(subtotal, couponDiscount, rewardDiscount, s.Pricing.TaxRateBps)
		o.Subtotal = totals.Subtotal
		o.CouponDiscount = totals.CouponDiscount
		o.RewardDiscount = totals.RewardDiscount
		o.Discount = totals.Discount
		o.Tax = totals.Tax
		o.Total = totals.Total

		number, err := r.orders.NextOrderNumber(ctx, o.BranchID)
		if err != nil {
			return fmt.Errorf("failed to allocate order number: %w", err)
		}
		o.OrderNumber = number
		if err := r.orders.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		if applied != nil {
			if err := s.consumeCoupon(ctx, r, o, applied, assignment, couponDiscount); err != nil {
				return err
			}
		}
		if redemption != nil {
			linked, err := r.loyalty.LinkRedemption(ctx, redemption.ID, o.ID, rewardDiscount, now)
			if err != nil {
				return fmt.Errorf("failed to link redemption: %w", err)
			}
			if !linked {
				return apperr.BadRequest(apperr.ReasonRedemptionAlreadyUsed, "redemption is already applied to an order")
			}
		}

		settled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// gate checks the table session and fills the order's location from it.
// Orders without a session must name a branch of the caller's organization.
func (s *OrderService) gate(ctx context.Context, r repos, req *SettleRequest) error {
	if req.TableSessionID == "" {
		req.TableID = ""
		if req.BranchID == "" {
			return apperr.BadRequest(apperr.ReasonInvalidType, "branch is required")
		}
		org, err := r.sessions.BranchOrganization(ctx, req.BranchID)
		if err != nil {
			return fmt.Errorf("failed to resolve branch %s: %w", req.BranchID, err)
		}
		if org != req.OrganizationID {
			return apperr.NotFound(apperr.ReasonBranchNotFound, "branch not found")
		}
		return nil
	}

	sess, err := r.sessions.GetSession(ctx, req.TableSessionID)
	if err != nil {
		return fmt.Errorf("failed to load table session: %w", err)
	}
	if sess == nil || sess.OrganizationID != req.OrganizationID {
		return apperr.NotFound(apperr.ReasonSessionNotFound, "table session not found")
	}

	switch sess.Status {
	case models.SessionActive:
	case models.SessionPending:
		return apperr.New(apperr.CodeSessionPending, apperr.ReasonSessionPending, "waiting for staff to approve the table")
	default:
		return apperr.New(apperr.CodeSessionEnded, apperr.ReasonSessionEnded, "table session has ended")
	}

	req.BranchID = sess.BranchID
	req.TableID = sess.TableID
	if req.CustomerID == "" {
		req.CustomerID = sess.CustomerID
	}
	if req.CustomerName == "" {
		req.CustomerName = sess.CustomerName
	}
	return nil
}

// priceLines snapshots catalog prices into order items.
func (s *OrderService) priceLines(ctx context.Context, r repos, o *models.Order, reqLines []SettleLine) ([]models.OrderItem, []discount.Line, error) {
	if r.catalog == nil {
		return nil, nil, errors.New("no catalog configured")
	}

	ids := make([]string, 0, len(reqLines))
	for i, l := range reqLines {
		if l.MenuItemID == "" || l.Quantity <= 0 {
			return nil, nil, apperr.BadRequest(apperr.ReasonInvalidLine,
				fmt.Sprintf("line %d needs a menu item and a positive quantity", i+1))
		}
		if l.Quantity > s.Pricing.MaxLineQuantity {
			return nil, nil, apperr.BadRequest(apperr.ReasonInvalidLine,
				fmt.Sprintf("line %d asks for %d units, at most %d per line", i+1, l.Quantity, s.Pricing.MaxLineQuantity))
		}
		ids = append(ids, l.MenuItemID)
	}

	catalogItems, err := r.catalog.GetItems(ctx, o.OrganizationID, ids)
	if err != nil {
		return nil, nil, err
	}

	items := make([]models.OrderItem, 0, len(reqLines))
	lines := make([]discount.Line, 0, len(reqLines))
	for _, l := range reqLines {
		ci, ok := catalogItems[l.MenuItemID]
		if !ok {
			return nil, nil, apperr.BadRequest(apperr.ReasonItemNotFound, fmt.Sprintf("menu item %s not found", l.MenuItemID))
		}
		if !ci.Available {
			return nil, nil, apperr.BadRequest(apperr.ReasonItemUnavailable, fmt.Sprintf("%s is not available", ci.Name))
		}

		unitPrice := ci.Price
		var snapshots []models.ModifierSnapshot
		seen := make(map[string]bool, len(l.ModifierIDs))
		for _, modID := range l.ModifierIDs {
			mod, ok := ci.Modifiers[modID]
			if !ok || !mod.Available || seen[modID] {
				return nil, nil, apperr.BadRequest(apperr.ReasonModifierInvalid,
					fmt.Sprintf("modifier %s cannot be selected on %s", modID, ci.Name))
			}
			seen[modID] = true
			unitPrice += mod.Price
			snapshots = append(snapshots, models.ModifierSnapshot{ID: mod.ID, Name: mod.Name, Price: mod.Price})
		}
		lineTotal, err := discount.LineTotal(unitPrice, l.Quantity)
		if err != nil {
			return nil, nil, apperr.Invariant(fmt.Sprintf("line total of %s out of range: %d x %d", ci.Name, unitPrice, l.Quantity))
		}

		items = append(items, models.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			MenuItemID: ci.ID,
			CategoryID: ci.CategoryID,
			Name:       ci.Name,
			BasePrice:  ci.Price,
			UnitPrice:  unitPrice,
			Quantity:   l.Quantity,
			LineTotal:  lineTotal,
			Modifiers:  snapshots,
			Notes:      l.Notes,
			Status:     models.ItemPending,
			CreatedAt:  o.CreatedAt,
			UpdatedAt:  o.CreatedAt,
		})
		lines = append(lines, discount.Line{
			MenuItemID: ci.ID,
			CategoryID: ci.CategoryID,
			UnitPrice:  unitPrice,
			Quantity:   l.Quantity,
		})
	}
	return items, lines, nil
}

// consumeCoupon takes one use of the coupon for o. The cap is re-checked by
// the conditional increment, so a concurrent settlement cannot overshoot it.
func (s *OrderService) consumeCoupon(ctx context.Context, r repos, o *models.Order, c *models.Coupon, a *models.CouponAssignment, amount int64) error {
	ok, err := r.coupons.IncrementUses(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to consume coupon: %w", err)
	}
	if !ok {
		return apperr.BadRequest(apperr.ReasonCouponUsageLimit, "coupon usage limit reached")
	}

	// IncrementUses holds the coupon row until commit, so this count sees
	// every redemption committed by a competing settlement.
	if o.CustomerID != "" && c.MaxUsesPerCustomer > 0 {
		used, err := r.coupons.CountCustomerRedemptions(ctx, c.ID, o.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to count coupon redemptions: %w", err)
		}
		if used >= c.MaxUsesPerCustomer {
			return apperr.BadRequest(apperr.ReasonCouponCustomerLimit, "coupon already used by this customer")
		}
	}

	err = r.coupons.CreateRedemption(ctx, &models.CouponRedemption{
		ID:              uuid.NewString(),
		CouponID:        c.ID,
		OrderID:         o.ID,
		CustomerID:      o.CustomerID,
		DiscountApplied: amount,
		CreatedAt:       o.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to record coupon redemption: %w", err)
	}

	if a != nil && o.CustomerID != "" {
		if err := r.coupons.SetAssignmentUsed(ctx, c.ID, o.CustomerID, o.CreatedAt); err != nil {
			return fmt.Errorf("failed to mark coupon assignment used: %w", err)
		}
	}
	return nil
}
