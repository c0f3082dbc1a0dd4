package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// DB runs the reporting queries that have no place in the order repository.
type DB struct {
	bun bun.IDB
}

// NewDB creates a new analytics DB handler
func NewDB(db bun.IDB) *DB {
	return &DB{bun: db}
}

// DailySalesData represents raw daily sales metrics from the database
type DailySalesData struct {
	SalesDate     time.Time `bun:"sales_date"`
	DailyRevenue  int64     `bun:"daily_revenue"`
	DailyOrders   int64     `bun:"daily_orders"`
	DailyDiscount int64     `bun:"daily_discount"`
}

// GetDailySales retrieves per-day totals of the non-cancelled orders of a branch
func (db *DB) GetDailySales(ctx context.Context, branchID string, from, to time.Time) ([]DailySalesData, error) {
	var daily []DailySalesData
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("DATE(o.created_at) AS sales_date").
		ColumnExpr("COALESCE(SUM(o.total), 0) AS daily_revenue").
		ColumnExpr("COUNT(*) AS daily_orders").
		ColumnExpr("COALESCE(SUM(o.discount), 0) AS daily_discount").
		Where("o.branch_id = ?", branchID).
		Where("o.created_at >= ?", from).
		Where("o.created_at < ?", to).
		Where("o.status != ?", models.OrderCancelled).
		GroupExpr("DATE(o.created_at)").
		OrderExpr("DATE(o.created_at)").
		Scan(ctx, &daily)
	return daily, err
}

// CouponUsageData represents how often each coupon code was redeemed
type CouponUsageData struct {
	Code           string `bun:"code" json:"code"`
	Redemptions    int64  `bun:"redemptions" json:"redemptions"`
	DiscountAmount int64  `bun:"discount_amount" json:"discount_amount"`
}

// GetCouponUsage retrieves coupon redemptions of a branch. Cancelled orders
// have their redemption removed, so only live redemptions are counted.
func (db *DB) GetCouponUsage(ctx context.Context, branchID string, from, to time.Time) ([]CouponUsageData, error) {
	var usage []CouponUsageData
	err := db.bun.NewSelect().
		TableExpr("coupon_redemptions AS cr").
		Join("JOIN coupons AS c ON c.id = cr.coupon_id").
		Join("JOIN orders AS o ON o.id = cr.order_id").
		ColumnExpr("c.code AS code").
		ColumnExpr("COUNT(*) AS redemptions").
		ColumnExpr("COALESCE(SUM(cr.discount_applied), 0) AS discount_amount").
		Where("o.branch_id = ?", branchID).
		Where("o.created_at >= ?", from).
		Where("o.created_at < ?", to).
		GroupExpr("c.code").
		OrderExpr("redemptions DESC, c.code ASC").
		Scan(ctx, &usage)
	return usage, err
}

// ItemSalesData represents units and revenue of one menu item
type ItemSalesData struct {
	MenuItemID string `bun:"menu_item_id" json:"menu_item_id"`
	Name       string `bun:"name" json:"name"`
	Quantity   int64  `bun:"quantity" json:"quantity"`
	Revenue    int64  `bun:"revenue" json:"revenue"`
}

// GetTopItems retrieves the best selling items of a branch by units
func (db *DB) GetTopItems(ctx context.Context, branchID string, from, to time.Time, limit int) ([]ItemSalesData, error) {
	var items []ItemSalesData
	err := db.bun.NewSelect().
		Model((*models.OrderItem)(nil)).
		Join("JOIN orders AS o ON o.id = oi.order_id").
		ColumnExpr("oi.menu_item_id AS menu_item_id").
		ColumnExpr("MAX(oi.name) AS name").
		ColumnExpr("COALESCE(SUM(oi.quantity), 0) AS quantity").
		ColumnExpr("COALESCE(SUM(oi.line_total), 0) AS revenue").
		Where("o.branch_id = ?", branchID).
		Where("o.created_at >= ?", from).
		Where("o.created_at < ?", to).
		Where("oi.status != ?", models.ItemCancelled).
		GroupExpr("oi.menu_item_id").
		OrderExpr("quantity DESC, menu_item_id ASC").
		Limit(limit).
		Scan(ctx, &items)
	return items, err
}

// GetBranchOrganization returns the organization that owns a branch, as seen
// through its tables or orders. Empty when the branch has neither.
func (db *DB) GetBranchOrganization(ctx context.Context, branchID string) (string, error) {
	var orgs []string
	err := db.bun.NewSelect().
		Model((*models.DiningTable)(nil)).
		Column("organization_id").
		Where("branch_id = ?", branchID).
		Limit(1).
		Scan(ctx, &orgs)
	if err != nil || len(orgs) > 0 {
		return first(orgs), err
	}
	err = db.bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("organization_id").
		Where("branch_id = ?", branchID).
		Limit(1).
		Scan(ctx, &orgs)
	return first(orgs), err
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
