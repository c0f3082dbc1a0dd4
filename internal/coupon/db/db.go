package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// DB is the coupon repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

// WithTx → a copy of the repository bound to tx
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// ---------------- COUPONS ----------------

// CreateCoupon → insert a new coupon
func (d *DB) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	_, err := d.Bun.NewInsert().Model(c).Exec(ctx)
	return err
}

// GetCouponByID → fetch one coupon, nil when missing
func (d *DB) GetCouponByID(ctx context.Context, id string) (*models.Coupon, error) {
	var c models.Coupon
	err := d.Bun.NewSelect().Model(&c).Where("c.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByCode → fetch a coupon by organization and code, nil when missing
func (d *DB) FindByCode(ctx context.Context, organizationID, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := d.Bun.NewSelect().
		Model(&c).
		Where("c.organization_id = ?", organizationID).
		Where("c.code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IncrementUses → consume one use unless the total cap is reached.
// Returns false when the cap was already reached.
func (d *DB) IncrementUses(ctx context.Context, couponID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("current_uses = current_uses + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", couponID).
		Where("max_uses_total IS NULL OR current_uses < max_uses_total").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DecrementUses → give one use back, never below zero.
// Returns false when the counter was already zero.
func (d *DB) DecrementUses(ctx context.Context, couponID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("current_uses = current_uses - 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", couponID).
		Where("current_uses > 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ---------------- ASSIGNMENTS ----------------

// CreateAssignment → target a coupon at a customer
func (d *DB) CreateAssignment(ctx context.Context, a *models.CouponAssignment) error {
	_, err := d.Bun.NewInsert().Model(a).Exec(ctx)
	return err
}

// FindAssignment → the customer's assignment for a coupon, nil when missing
func (d *DB) FindAssignment(ctx context.Context, couponID, customerID string) (*models.CouponAssignment, error) {
	var a models.CouponAssignment
	err := d.Bun.NewSelect().
		Model(&a).
		Where("ca.coupon_id = ?", couponID).
		Where("ca.customer_id = ?", customerID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkAssignmentSeen → set seen_at once; later calls keep the first timestamp
func (d *DB) MarkAssignmentSeen(ctx context.Context, couponID, customerID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.CouponAssignment)(nil)).
		Set("seen_at = ?", at).
		Where("coupon_id = ?", couponID).
		Where("customer_id = ?", customerID).
		Where("seen_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetAssignmentUsed → stamp used_at, or clear it when at is zero
func (d *DB) SetAssignmentUsed(ctx context.Context, couponID, customerID string, at time.Time) error {
	q := d.Bun.NewUpdate().
		Model((*models.CouponAssignment)(nil)).
		Where("coupon_id = ?", couponID).
		Where("customer_id = ?", customerID)
	if at.IsZero() {
		q = q.Set("used_at = NULL")
	} else {
		q = q.Set("used_at = ?", at)
	}
	_, err := q.Exec(ctx)
	return err
}

// ---------------- REDEMPTIONS ----------------

// CreateRedemption → record a coupon applied to an order
func (d *DB) CreateRedemption(ctx context.Context, r *models.CouponRedemption) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

// GetRedemptionByOrder → the redemption of an order, nil when none
func (d *DB) GetRedemptionByOrder(ctx context.Context, orderID string) (*models.CouponRedemption, error) {
	var r models.CouponRedemption
	err := d.Bun.NewSelect().Model(&r).Where("cr.order_id = ?", orderID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRedemption → remove a redemption row
func (d *DB) DeleteRedemption(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().Model((*models.CouponRedemption)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

// CountCustomerRedemptions → how many orders of a customer used the coupon
func (d *DB) CountCustomerRedemptions(ctx context.Context, couponID, customerID string) (int64, error) {
	n, err := d.Bun.NewSelect().
		Model((*models.CouponRedemption)(nil)).
		Where("coupon_id = ?", couponID).
		Where("customer_id = ?", customerID).
		Count(ctx)
	return int64(n), err
}
