package analytics_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-ordering/internal/analytics"
	analytics_api "ms-ordering/internal/analytics/api"
	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func order(id string, number int64, status models.OrderStatus, at time.Time, subtotal, coupon, reward int64) models.Order {
	tax := (subtotal - coupon - reward) * 18 / 100
	return models.Order{
		ID: id, OrganizationID: "org-1", BranchID: "branch-1", OrderNumber: number,
		Type: models.OrderTypeTakeout, Status: status,
		Subtotal: subtotal, CouponDiscount: coupon, RewardDiscount: reward, Discount: coupon + reward,
		Tax: tax, Total: subtotal - coupon - reward + tax,
		CreatedAt: at, UpdatedAt: at,
	}
}

func item(id, orderID, menuItemID, name string, qty, unit int64, status models.ItemStatus, at time.Time) models.OrderItem {
	return models.OrderItem{
		ID: id, OrderID: orderID, MenuItemID: menuItemID, Name: name,
		BasePrice: unit, UnitPrice: unit, Quantity: qty, LineTotal: qty * unit,
		Status: status, CreatedAt: at, UpdatedAt: at,
	}
}

func seed(t *testing.T) *bun.DB {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	orders := []models.Order{
		order("o-1", 1, models.OrderCompleted, day.Add(9*time.Hour), 10000, 1000, 0),
		order("o-2", 2, models.OrderPreparing, day.Add(13*time.Hour), 5000, 0, 1000),
		order("o-3", 3, models.OrderCancelled, day.Add(14*time.Hour), 8000, 0, 0),
		order("o-4", 4, models.OrderPending, day.Add(33*time.Hour), 3000, 500, 0),
		order("o-old", 5, models.OrderCompleted, day.Add(-48*time.Hour), 99999, 0, 0),
	}
	other := order("o-x", 1, models.OrderCompleted, day.Add(10*time.Hour), 7777, 0, 0)
	other.BranchID, other.OrganizationID = "branch-2", "org-2"
	orders = append(orders, other)
	_, err := db.NewInsert().Model(&orders).Exec(ctx)
	require.NoError(t, err)

	items := []models.OrderItem{
		item("i-1", "o-1", "item-lomo", "Lomo saltado", 2, 5000, models.ItemServed, day),
		item("i-2", "o-2", "item-chicha", "Chicha", 5, 1000, models.ItemPreparing, day),
		item("i-3", "o-3", "item-chicha", "Chicha", 8, 1000, models.ItemCancelled, day),
		item("i-4", "o-4", "item-lomo", "Lomo saltado", 1, 3000, models.ItemPending, day),
	}
	_, err = db.NewInsert().Model(&items).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&models.Coupon{
		ID: "coupon-10", OrganizationID: "org-1", Code: "HOLA10", Type: models.DiscountPercentage,
		Status: models.CouponActive, DiscountValue: decimal.NewFromInt(10), MaxUsesPerCustomer: 1,
		CreatedAt: day, UpdatedAt: day,
	}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&[]models.CouponRedemption{
		{ID: "r-1", CouponID: "coupon-10", OrderID: "o-1", DiscountApplied: 1000, CreatedAt: day},
		{ID: "r-2", CouponID: "coupon-10", OrderID: "o-4", DiscountApplied: 500, CreatedAt: day},
	}).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&models.DiningTable{
		ID: "table-1", OrganizationID: "org-1", BranchID: "branch-1", Label: "Mesa 1", Status: models.TableFree,
	}).Exec(ctx)
	require.NoError(t, err)
	return db
}

func TestSummary(t *testing.T) {
	service := analytics.NewService(seed(t))

	s, err := service.Summary(context.Background(), "org-1", "branch-1", day, day.Add(48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, map[models.OrderStatus]int64{
		models.OrderCompleted: 1,
		models.OrderPreparing: 1,
		models.OrderCancelled: 1,
		models.OrderPending:   1,
	}, s.OrdersByStatus)

	// o-1: 9000 + 1620, o-2: 4000 + 720, o-4: 2500 + 450
	assert.Equal(t, int64(3), s.Orders)
	assert.Equal(t, int64(18000), s.GrossSubtotal)
	assert.Equal(t, int64(1500), s.CouponDiscount)
	assert.Equal(t, int64(1000), s.RewardDiscount)
	assert.Equal(t, int64(2790), s.Tax)
	assert.Equal(t, int64(18290), s.NetRevenue)
	assert.Equal(t, int64(18290/3), s.AverageTicket)

	require.Len(t, s.DailySales, 2)
	assert.Equal(t, analytics.DailySalesMetrics{Date: "2026-03-14", Revenue: 10620 + 4720, Orders: 2, Discount: 2000}, s.DailySales[0])
	assert.Equal(t, analytics.DailySalesMetrics{Date: "2026-03-15", Revenue: 2950, Orders: 1, Discount: 500}, s.DailySales[1])

	require.Len(t, s.CouponUsage, 1)
	assert.Equal(t, analytics.CouponUsageData{Code: "HOLA10", Redemptions: 2, DiscountAmount: 1500}, s.CouponUsage[0])

	require.Len(t, s.TopItems, 2)
	assert.Equal(t, "item-chicha", s.TopItems[0].MenuItemID)
	assert.Equal(t, int64(5), s.TopItems[0].Quantity, "cancelled lines are not sold")
	assert.Equal(t, analytics.ItemSalesData{MenuItemID: "item-lomo", Name: "Lomo saltado", Quantity: 3, Revenue: 13000}, s.TopItems[1])
}

func TestSummaryEmptyAndInvalidPeriods(t *testing.T) {
	service := analytics.NewService(seed(t))
	ctx := context.Background()

	s, err := service.Summary(ctx, "org-1", "branch-1", day.Add(72*time.Hour), day.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, s.Orders)
	assert.Zero(t, s.NetRevenue)
	assert.Zero(t, s.AverageTicket)
	assert.Empty(t, s.DailySales)
	assert.Empty(t, s.OrdersByStatus)

	_, err = service.Summary(ctx, "org-1", "branch-1", day, day)
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
	_, err = service.Summary(ctx, "org-1", "", day, day.Add(time.Hour))
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))

	_, err = service.Summary(ctx, "org-1", "branch-2", day, day.Add(24*time.Hour))
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err), "branch of another organization")
}

func TestBranchSummaryHandler(t *testing.T) {
	handler := analytics_api.NewHandler(analytics.NewService(seed(t)), logger.NewTestLogger())
	r := chi.NewRouter()
	handler.RegisterStaffRoutes(r)

	get := func(id auth.Identity, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(rec, req.WithContext(auth.WithIdentity(req.Context(), id)))
		return rec
	}
	manager := auth.Identity{Subject: "staff-1", OrganizationID: "org-1", Staff: true}

	rec := get(manager, "/branches/branch-1/summary?from=2026-03-14&to=2026-03-15")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data analytics.BranchSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.Orders)
	assert.Equal(t, int64(15340), resp.Data.NetRevenue)

	rec = get(manager, "/branches/branch-1/summary?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(auth.Identity{Subject: "staff-2", OrganizationID: "org-1", BranchID: "branch-9", Staff: true}, "/branches/branch-1/summary")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(manager, "/branches/branch-2/summary?from=2026-03-14&to=2026-03-15")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
