package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// Models lists every table in creation order.
var Models = []interface{}{
	(*models.MenuItem)(nil),
	(*models.MenuModifier)(nil),
	(*models.DiningTable)(nil),
	(*models.TableSession)(nil),
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.Coupon)(nil),
	(*models.CouponAssignment)(nil),
	(*models.CouponRedemption)(nil),
	(*models.LoyaltyProgram)(nil),
	(*models.LoyaltyTier)(nil),
	(*models.LoyaltyReward)(nil),
	(*models.CustomerLoyalty)(nil),
	(*models.LoyaltyTransaction)(nil),
	(*models.RewardRedemption)(nil),
}

// OpenSessionIndex enforces at most one pending/active session per table.
const OpenSessionIndex = "uq_table_sessions_open"

// CreateSchema creates all tables and indexes from the bun models. Production
// deployments use the SQL migrations; this is for tests and local tooling and
// produces the same constraints.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range Models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.TableSession)(nil)).
		Unique().
		IfNotExists().
		Index(OpenSessionIndex).
		Column("table_id").
		Where("status IN ('pending', 'active')").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create open session index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*models.RewardRedemption)(nil)).
		IfNotExists().
		Index("idx_reward_redemptions_order").
		Column("order_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create reward redemption index: %w", err)
	}

	return nil
}

// IsUniqueViolation reports whether err came from a unique constraint, for both
// Postgres (SQLSTATE 23505) and SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
