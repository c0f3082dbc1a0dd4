package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/database"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order/db"
)

func setupTestDB(t *testing.T) *db.DB {
	return &db.DB{Bun: dbtest.New(t)}
}

func newOrder(branchID string, number int64, status models.OrderStatus, total int64, createdAt time.Time) *models.Order {
	id := uuid.NewString()
	return &models.Order{
		ID:             id,
		OrganizationID: "org-1",
		BranchID:       branchID,
		OrderNumber:    number,
		Type:           models.OrderTypeTakeout,
		Status:         status,
		Subtotal:       total,
		Total:          total,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		Items: []models.OrderItem{
			{
				ID: uuid.NewString(), OrderID: id, MenuItemID: "item-lomo", Name: "Lomo saltado",
				BasePrice: 4500, UnitPrice: 5000, Quantity: 1, LineTotal: 5000, Status: models.ItemPending,
				Modifiers: []models.ModifierSnapshot{{ID: "mod-egg", Name: "Huevo frito", Price: 500}},
				CreatedAt: createdAt, UpdatedAt: createdAt,
			},
			{
				ID: uuid.NewString(), OrderID: id, MenuItemID: "item-chicha", Name: "Chicha morada",
				BasePrice: 1200, UnitPrice: 1200, Quantity: 2, LineTotal: 2400, Status: models.ItemPending,
				CreatedAt: createdAt.Add(time.Millisecond), UpdatedAt: createdAt,
			},
		},
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	orderDB := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	o := newOrder("branch-1", 1, models.OrderPending, 7400, now)
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	got, err := orderDB.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7400), got.Total)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Lomo saltado", got.Items[0].Name)
	assert.Equal(t, []models.ModifierSnapshot{{ID: "mod-egg", Name: "Huevo frito", Price: 500}}, got.Items[0].Modifiers)

	missing, err := orderDB.GetOrderByID(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNextOrderNumber(t *testing.T) {
	orderDB := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	n, err := orderDB.NextOrderNumber(ctx, "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-1", 1, models.OrderPending, 100, now)))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-1", 7, models.OrderPending, 100, now)))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-2", 40, models.OrderPending, 100, now)))

	n, err = orderDB.NextOrderNumber(ctx, "branch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	err = orderDB.CreateOrder(ctx, newOrder("branch-1", 7, models.OrderPending, 100, now))
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestStatusUpdatesAreConditional(t *testing.T) {
	orderDB := setupTestDB(t)
	ctx := context.Background()
	o := newOrder("branch-1", 1, models.OrderPending, 100, time.Now().UTC())
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	ok, err := orderDB.UpdateOrderStatus(ctx, o.ID, models.OrderPending, models.OrderConfirmed)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = orderDB.UpdateOrderStatus(ctx, o.ID, models.OrderPending, models.OrderCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = orderDB.UpdateItemStatus(ctx, o.Items[0].ID, models.ItemPending, models.ItemPreparing)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := orderDB.CancelPendingItems(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	items, err := orderDB.ListItems(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemPreparing, items[0].Status)
	assert.Equal(t, models.ItemCancelled, items[1].Status)
}

func TestReportingQueries(t *testing.T) {
	orderDB := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	paid := newOrder("branch-1", 1, models.OrderCompleted, 5000, now)
	paid.CouponDiscount = 500
	paid.Tax = 810
	require.NoError(t, orderDB.CreateOrder(ctx, paid))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-1", 2, models.OrderPending, 3000, now)))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-1", 3, models.OrderCancelled, 9999, now)))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-1", 4, models.OrderCompleted, 7000, now.Add(-48*time.Hour))))
	require.NoError(t, orderDB.CreateOrder(ctx, newOrder("branch-2", 1, models.OrderCompleted, 1234, now)))

	from, to := now.Add(-time.Hour), now.Add(time.Hour)
	counts, err := orderDB.CountByStatus(ctx, "branch-1", from, to)
	require.NoError(t, err)
	got := map[models.OrderStatus]int64{}
	for _, c := range counts {
		got[c.Status] = c.Count
	}
	assert.Equal(t, map[models.OrderStatus]int64{
		models.OrderCancelled: 1,
		models.OrderCompleted: 1,
		models.OrderPending:   1,
	}, got)

	totals, err := orderDB.SumTotals(ctx, "branch-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Orders)
	assert.Equal(t, int64(8000), totals.Total)
	assert.Equal(t, int64(500), totals.CouponDiscount)
	assert.Equal(t, int64(810), totals.Tax)

	empty, err := orderDB.SumTotals(ctx, "branch-9", from, to)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
}
