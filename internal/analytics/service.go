package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/models"
	orderdb "ms-ordering/internal/order/db"
)

const topItemsLimit = 10

// Service handles analytics operations
type Service struct {
	db     *DB
	orders *orderdb.DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db), orders: &orderdb.DB{Bun: db}}
}

// BranchSummary is the settlement picture of a branch over [From, To).
// Money figures exclude cancelled orders.
type BranchSummary struct {
	BranchID       string                       `json:"branch_id"`
	From           time.Time                    `json:"from"`
	To             time.Time                    `json:"to"`
	OrdersByStatus map[models.OrderStatus]int64 `json:"orders_by_status"`
	Orders         int64                        `json:"orders"`
	GrossSubtotal  int64                        `json:"gross_subtotal"`
	CouponDiscount int64                        `json:"coupon_discount"`
	RewardDiscount int64                        `json:"reward_discount"`
	Tax            int64                        `json:"tax"`
	NetRevenue     int64                        `json:"net_revenue"`
	AverageTicket  int64                        `json:"average_ticket"`
	DailySales     []DailySalesMetrics          `json:"daily_sales"`
	CouponUsage    []CouponUsageData            `json:"coupon_usage"`
	TopItems       []ItemSalesData              `json:"top_items"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date     string `json:"date"`
	Revenue  int64  `json:"revenue"`
	Orders   int64  `json:"orders"`
	Discount int64  `json:"discount"`
}

// Summary aggregates the orders of a branch created in [from, to). A
// non-empty organizationID must own the branch.
func (s *Service) Summary(ctx context.Context, organizationID, branchID string, from, to time.Time) (*BranchSummary, error) {
	if branchID == "" {
		return nil, apperr.New(apperr.CodeBadRequest, "", "branch is required")
	}
	if !from.Before(to) {
		return nil, apperr.New(apperr.CodeBadRequest, "", "from must be before to")
	}
	if organizationID != "" {
		owner, err := s.db.GetBranchOrganization(ctx, branchID)
		if err != nil {
			return nil, fmt.Errorf("branch owner: %w", err)
		}
		if owner != "" && owner != organizationID {
			return nil, apperr.NotFound("", "branch not found")
		}
	}

	counts, err := s.orders.CountByStatus(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	totals, err := s.orders.SumTotals(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum orders: %w", err)
	}
	daily, err := s.db.GetDailySales(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}
	coupons, err := s.db.GetCouponUsage(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("coupon usage: %w", err)
	}
	items, err := s.db.GetTopItems(ctx, branchID, from, to, topItemsLimit)
	if err != nil {
		return nil, fmt.Errorf("top items: %w", err)
	}

	summary := &BranchSummary{
		BranchID:       branchID,
		From:           from,
		To:             to,
		OrdersByStatus: make(map[models.OrderStatus]int64, len(counts)),
		Orders:         totals.Orders,
		GrossSubtotal:  totals.Subtotal,
		CouponDiscount: totals.CouponDiscount,
		RewardDiscount: totals.RewardDiscount,
		Tax:            totals.Tax,
		NetRevenue:     totals.Total,
		DailySales:     make([]DailySalesMetrics, 0, len(daily)),
		CouponUsage:    coupons,
		TopItems:       items,
	}
	for _, c := range counts {
		summary.OrdersByStatus[c.Status] = c.Count
	}
	if totals.Orders > 0 {
		summary.AverageTicket = totals.Total / totals.Orders
	}
	for _, d := range daily {
		summary.DailySales = append(summary.DailySales, DailySalesMetrics{
			Date:     d.SalesDate.Format("2006-01-02"),
			Revenue:  d.DailyRevenue,
			Orders:   d.DailyOrders,
			Discount: d.DailyDiscount,
		})
	}
	return summary, nil
}
