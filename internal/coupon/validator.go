package coupon

import (
	"context"
	"fmt"
	"time"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/models"
)

// Context is the order state a coupon is validated against.
type Context struct {
	OrganizationID string
	Subtotal       int64
	// CustomerID is empty for anonymous orders.
	CustomerID string
	// Assignment is the customer's assignment for this coupon, if any.
	Assignment *models.CouponAssignment
	// CustomerUses is how many orders of this customer already redeemed the coupon.
	CustomerUses int64
	Now          time.Time
}

// Validate runs the coupon checks in order and stops at the first failure.
// Every rejection is a BAD_REQUEST carrying one of the COUPON_* reasons.
func Validate(c *models.Coupon, vc Context) error {
	if c == nil || c.OrganizationID != vc.OrganizationID {
		return apperr.BadRequest(apperr.ReasonCouponNotFound, "coupon not found")
	}

	switch c.Status {
	case models.CouponActive:
	case models.CouponExpired:
		return apperr.BadRequest(apperr.ReasonCouponExpired, "coupon has expired")
	default:
		return apperr.BadRequest(apperr.ReasonCouponInactive, "coupon is not active")
	}

	if !c.StartsAt.IsZero() && vc.Now.Before(c.StartsAt) {
		return apperr.BadRequest(apperr.ReasonCouponNotStarted,
			fmt.Sprintf("coupon is valid from %s", c.StartsAt.Format(time.RFC3339)))
	}
	if !c.ExpiresAt.IsZero() && vc.Now.After(c.ExpiresAt) {
		return apperr.BadRequest(apperr.ReasonCouponExpired, "coupon has expired")
	}

	if c.MaxUsesTotal != nil && c.CurrentUses >= *c.MaxUsesTotal {
		return apperr.BadRequest(apperr.ReasonCouponUsageLimit, "coupon usage limit reached")
	}

	if c.RequiresAssignment && (vc.CustomerID == "" || vc.Assignment == nil) {
		return apperr.BadRequest(apperr.ReasonCouponNotAssigned, "coupon is not assigned to this customer")
	}
	if vc.CustomerID != "" && c.MaxUsesPerCustomer > 0 && vc.CustomerUses >= c.MaxUsesPerCustomer {
		return apperr.BadRequest(apperr.ReasonCouponCustomerLimit, "coupon already used by this customer")
	}

	if c.MinOrderAmount != nil && vc.Subtotal < *c.MinOrderAmount {
		return apperr.BadRequest(apperr.ReasonCouponMinOrder,
			fmt.Sprintf("order subtotal must be at least %d", *c.MinOrderAmount))
	}

	return nil
}

// Reader is the data a coupon lookup needs. Implementations may be bound to a transaction.
type Reader interface {
	FindByCode(ctx context.Context, organizationID, code string) (*models.Coupon, error)
	FindAssignment(ctx context.Context, couponID, customerID string) (*models.CouponAssignment, error)
	CountCustomerRedemptions(ctx context.Context, couponID, customerID string) (int64, error)
}

// Resolve loads a coupon by code together with the customer's state and validates it.
// The returned assignment is nil when the customer has none.
func Resolve(ctx context.Context, r Reader, code string, vc Context) (*models.Coupon, *models.CouponAssignment, error) {
	c, err := r.FindByCode(ctx, vc.OrganizationID, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load coupon %q: %w", code, err)
	}
	if c == nil {
		return nil, nil, apperr.BadRequest(apperr.ReasonCouponNotFound, fmt.Sprintf("coupon %q not found", code))
	}

	if vc.CustomerID != "" {
		vc.Assignment, err = r.FindAssignment(ctx, c.ID, vc.CustomerID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load coupon assignment: %w", err)
		}
		vc.CustomerUses, err = r.CountCustomerRedemptions(ctx, c.ID, vc.CustomerID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count coupon redemptions: %w", err)
		}
	}

	if err := Validate(c, vc); err != nil {
		return nil, nil, err
	}
	return c, vc.Assignment, nil
}
