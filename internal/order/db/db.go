package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// DB is the order repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

// WithTx → a copy of the repository bound to tx
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// ---------------- ORDERS ----------------

// NextOrderNumber → one past the highest order number of a branch.
// Concurrent callers may get the same number; the unique index decides.
func (d *DB) NextOrderNumber(ctx context.Context, branchID string) (int64, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("MAX(o.order_number)").
		Where("o.branch_id = ?", branchID).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// CreateOrder → insert an order together with its items
func (d *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	if _, err := d.Bun.NewInsert().Model(o).Exec(ctx); err != nil {
		return err
	}
	if len(o.Items) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&o.Items).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order with its items, nil when missing
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("oi.created_at ASC", "oi.id ASC")
		}).
		Where("o.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListSessionOrders → orders placed during a table session, newest first
func (d *DB) ListSessionOrders(ctx context.Context, sessionID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("o.table_session_id = ?", sessionID).
		Order("o.created_at DESC").
		Scan(ctx)
	return orders, err
}

// UpdateOrderStatus → compare-and-set the order status.
// Returns false when the order was no longer in status from.
func (d *DB) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", from).
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

// ---------------- ITEMS ----------------

// GetItemByID → fetch one order item, nil when missing
func (d *DB) GetItemByID(ctx context.Context, id string) (*models.OrderItem, error) {
	var it models.OrderItem
	err := d.Bun.NewSelect().Model(&it).Where("oi.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ListItems → all items of an order
func (d *DB) ListItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("oi.order_id = ?", orderID).
		Order("oi.created_at ASC", "oi.id ASC").
		Scan(ctx)
	return items, err
}

// UpdateItemStatus → compare-and-set one item's status
func (d *DB) UpdateItemStatus(ctx context.Context, id string, from, to models.ItemStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderItem)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", from).
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

// CancelPendingItems → cancel every item of an order.
// Returns how many items were still pending; callers compare it with the item count.
func (d *DB) CancelPendingItems(ctx context.Context, orderID string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.OrderItem)(nil)).
		Set("status = ?", models.ItemCancelled).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", orderID).
		Where("status = ?", models.ItemPending).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- REPORTING ----------------

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Status models.OrderStatus `bun:"status" json:"status"`
	Count  int64              `bun:"count" json:"count"`
}

// CountByStatus → order counts per status for a branch and period
func (d *DB) CountByStatus(ctx context.Context, branchID string, from, to time.Time) ([]StatusCount, error) {
	var counts []StatusCount
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("o.status AS status").
		ColumnExpr("COUNT(*) AS count").
		Where("o.branch_id = ?", branchID).
		Where("o.created_at >= ?", from).
		Where("o.created_at < ?", to).
		Group("o.status").
		OrderExpr("o.status ASC").
		Scan(ctx, &counts)
	return counts, err
}

// Totals is the money summed over a set of orders.
type Totals struct {
	Orders         int64 `bun:"orders" json:"orders"`
	Subtotal       int64 `bun:"subtotal" json:"subtotal"`
	CouponDiscount int64 `bun:"coupon_discount" json:"coupon_discount"`
	RewardDiscount int64 `bun:"reward_discount" json:"reward_discount"`
	Tax            int64 `bun:"tax" json:"tax"`
	Total          int64 `bun:"total" json:"total"`
}

// SumTotals → money totals over the non-cancelled orders of a branch and period
func (d *DB) SumTotals(ctx context.Context, branchID string, from, to time.Time) (*Totals, error) {
	var t Totals
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(o.subtotal), 0) AS subtotal").
		ColumnExpr("COALESCE(SUM(o.coupon_discount), 0) AS coupon_discount").
		ColumnExpr("COALESCE(SUM(o.reward_discount), 0) AS reward_discount").
		ColumnExpr("COALESCE(SUM(o.tax), 0) AS tax").
		ColumnExpr("COALESCE(SUM(o.total), 0) AS total").
		Where("o.branch_id = ?", branchID).
		Where("o.created_at >= ?", from).
		Where("o.created_at < ?", to).
		Where("o.status != ?", models.OrderCancelled).
		Scan(ctx, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
