package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// DB is the loyalty repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

// WithTx → a copy of the repository bound to tx
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

func notFoundAsNil(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// ---------------- PROGRAMS ----------------

// CreateProgram → insert a program
func (d *DB) CreateProgram(ctx context.Context, p *models.LoyaltyProgram) error {
	_, err := d.Bun.NewInsert().Model(p).Exec(ctx)
	return err
}

// GetProgram → fetch a program, nil when missing
func (d *DB) GetProgram(ctx context.Context, id string) (*models.LoyaltyProgram, error) {
	var p models.LoyaltyProgram
	if err := d.Bun.NewSelect().Model(&p).Where("lp.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundAsNil(err)
	}
	return &p, nil
}

// CreateTier → insert a tier
func (d *DB) CreateTier(ctx context.Context, t *models.LoyaltyTier) error {
	_, err := d.Bun.NewInsert().Model(t).Exec(ctx)
	return err
}

// ListTiers → tiers of a program, lowest threshold first
func (d *DB) ListTiers(ctx context.Context, programID string) ([]models.LoyaltyTier, error) {
	var tiers []models.LoyaltyTier
	err := d.Bun.NewSelect().Model(&tiers).Where("lt.program_id = ?", programID).Order("lt.min_points ASC").Scan(ctx)
	return tiers, err
}

// CreateReward → insert a reward
func (d *DB) CreateReward(ctx context.Context, r *models.LoyaltyReward) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

// GetReward → fetch a reward, nil when missing
func (d *DB) GetReward(ctx context.Context, id string) (*models.LoyaltyReward, error) {
	var r models.LoyaltyReward
	if err := d.Bun.NewSelect().Model(&r).Where("lr.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundAsNil(err)
	}
	return &r, nil
}

// ---------------- ENROLLMENTS ----------------

// CreateEnrollment → insert a customer enrollment
func (d *DB) CreateEnrollment(ctx context.Context, e *models.CustomerLoyalty) error {
	_, err := d.Bun.NewInsert().Model(e).Exec(ctx)
	return err
}

// GetEnrollment → fetch an enrollment, nil when missing
func (d *DB) GetEnrollment(ctx context.Context, id string) (*models.CustomerLoyalty, error) {
	var e models.CustomerLoyalty
	if err := d.Bun.NewSelect().Model(&e).Where("cl.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundAsNil(err)
	}
	return &e, nil
}

// FindEnrollment → the customer's enrollment in a program, nil when missing
func (d *DB) FindEnrollment(ctx context.Context, customerID, programID string) (*models.CustomerLoyalty, error) {
	var e models.CustomerLoyalty
	err := d.Bun.NewSelect().
		Model(&e).
		Where("cl.customer_id = ?", customerID).
		Where("cl.program_id = ?", programID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &e, nil
}

// FindActiveEnrollment → the customer's enrollment in the organization's active program
func (d *DB) FindActiveEnrollment(ctx context.Context, customerID, organizationID string) (*models.CustomerLoyalty, error) {
	var e models.CustomerLoyalty
	err := d.Bun.NewSelect().
		Model(&e).
		Join("JOIN loyalty_programs AS lp ON lp.id = cl.program_id").
		Where("cl.customer_id = ?", customerID).
		Where("lp.organization_id = ?", organizationID).
		Where("lp.active = ?", true).
		OrderExpr("lp.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &e, nil
}

// ApplyDelta → add delta to points_balance unless the result would be negative.
// Earned deltas also grow total_points_earned. Returns false when refused.
func (d *DB) ApplyDelta(ctx context.Context, enrollmentID string, delta int64, earned bool) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.CustomerLoyalty)(nil)).
		Set("points_balance = points_balance + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", enrollmentID).
		Where("points_balance + ? >= 0", delta)
	if earned && delta > 0 {
		q = q.Set("total_points_earned = total_points_earned + ?", delta)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetTier → update the cached tier pointer
func (d *DB) SetTier(ctx context.Context, enrollmentID, tierID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.CustomerLoyalty)(nil)).
		Set("tier_id = ?", tierID).
		Where("id = ?", enrollmentID).
		Exec(ctx)
	return err
}

// ---------------- LEDGER ----------------

// InsertTransaction → append a ledger row
func (d *DB) InsertTransaction(ctx context.Context, tx *models.LoyaltyTransaction) error {
	_, err := d.Bun.NewInsert().Model(tx).Exec(ctx)
	return err
}

// SumTransactions → the balance according to the ledger
func (d *DB) SumTransactions(ctx context.Context, enrollmentID string) (int64, error) {
	var sum sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.LoyaltyTransaction)(nil)).
		ColumnExpr("SUM(ltx.points)").
		Where("ltx.customer_loyalty_id = ?", enrollmentID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, err
	}
	return sum.Int64, nil
}

// ListTransactions → ledger rows of an enrollment, oldest first
func (d *DB) ListTransactions(ctx context.Context, enrollmentID string) ([]models.LoyaltyTransaction, error) {
	var txs []models.LoyaltyTransaction
	err := d.Bun.NewSelect().
		Model(&txs).
		Where("ltx.customer_loyalty_id = ?", enrollmentID).
		Order("ltx.created_at ASC").
		Scan(ctx)
	return txs, err
}

// ---------------- REDEMPTIONS ----------------

// CreateRedemption → insert a claimed reward
func (d *DB) CreateRedemption(ctx context.Context, r *models.RewardRedemption) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

// GetRedemption → fetch a redemption, nil when missing
func (d *DB) GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error) {
	var r models.RewardRedemption
	if err := d.Bun.NewSelect().Model(&r).Where("rr.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundAsNil(err)
	}
	return &r, nil
}

// GetRedemptionByOrder → the redemption applied to an order, nil when none
func (d *DB) GetRedemptionByOrder(ctx context.Context, orderID string) (*models.RewardRedemption, error) {
	var r models.RewardRedemption
	if err := d.Bun.NewSelect().Model(&r).Where("rr.order_id = ?", orderID).Limit(1).Scan(ctx); err != nil {
		return nil, notFoundAsNil(err)
	}
	return &r, nil
}

// LinkRedemption → attach an unlinked redemption to an order.
// Returns false when it was already linked.
func (d *DB) LinkRedemption(ctx context.Context, id, orderID string, discount int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RewardRedemption)(nil)).
		Set("order_id = ?", orderID).
		Set("discount_applied = ?", discount).
		Set("applied_at = ?", at).
		Where("id = ?", id).
		Where("order_id IS NULL").
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

// UnlinkRedemption → detach a redemption from its order so it can be reused
func (d *DB) UnlinkRedemption(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.RewardRedemption)(nil)).
		Set("order_id = NULL").
		Set("discount_applied = 0").
		Set("applied_at = NULL").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListOpenRedemptions → claimed, not yet applied redemptions of an enrollment
func (d *DB) ListOpenRedemptions(ctx context.Context, enrollmentID string) ([]models.RewardRedemption, error) {
	var rs []models.RewardRedemption
	err := d.Bun.NewSelect().
		Model(&rs).
		Where("rr.customer_loyalty_id = ?", enrollmentID).
		Where("rr.order_id IS NULL").
		Order("rr.created_at ASC").
		Scan(ctx)
	return rs, err
}
