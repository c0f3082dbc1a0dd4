package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-ordering/internal/catalog"
	"ms-ordering/internal/config"
	coupondb "ms-ordering/internal/coupon/db"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/loyalty"
	loyaltydb "ms-ordering/internal/loyalty/db"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	bun     *bun.DB
	service *order.OrderService
	kitchen *order.KitchenService
	coupons *coupondb.DB
	loyalty *loyaltydb.DB
	events  *recorder
}

func ptr(v int64) *int64 { return &v }

func setup(t *testing.T) *fixture {
	t.Helper()
	bunDB := dbtest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(model interface{}) {
		_, err := bunDB.NewInsert().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	insert(&[]models.MenuItem{
		{ID: "item-lomo", OrganizationID: "org-1", CategoryID: "cat-mains", Name: "Lomo saltado", Price: 4500, Available: true},
		{ID: "item-ceviche", OrganizationID: "org-1", CategoryID: "cat-mains", Name: "Ceviche", Price: 3800, Available: true},
		{ID: "item-chicha", OrganizationID: "org-1", CategoryID: "cat-drinks", Name: "Chicha morada", Price: 1200, Available: true},
		{ID: "item-off", OrganizationID: "org-1", CategoryID: "cat-mains", Name: "Seco", Price: 3000, Available: false},
		{ID: "item-other-org", OrganizationID: "org-2", Name: "Pizza", Price: 2000, Available: true},
	})
	insert(&[]models.MenuModifier{
		{ID: "mod-egg", MenuItemID: "item-lomo", Name: "Huevo frito", Price: 500, Available: true},
		{ID: "mod-gone", MenuItemID: "item-lomo", Name: "Palta", Price: 700, Available: false},
	})
	insert(&[]models.DiningTable{
		{ID: "table-1", OrganizationID: "org-1", BranchID: "branch-1", Label: "Mesa 1", Status: models.TableOccupied},
		{ID: "table-b2", OrganizationID: "org-1", BranchID: "branch-2", Label: "Mesa 1", Status: models.TableFree},
		{ID: "table-x", OrganizationID: "org-2", BranchID: "branch-x", Label: "Mesa X", Status: models.TableFree},
	})
	insert(&[]models.TableSession{
		{ID: "session-active", OrganizationID: "org-1", BranchID: "branch-1", TableID: "table-1", CustomerID: "cust-1", CustomerName: "Ana", Status: models.SessionActive, CreatedAt: now, UpdatedAt: now},
		{ID: "session-pending", OrganizationID: "org-1", BranchID: "branch-1", TableID: "table-2", Status: models.SessionPending, CreatedAt: now, UpdatedAt: now},
		{ID: "session-ended", OrganizationID: "org-1", BranchID: "branch-1", TableID: "table-3", Status: models.SessionCompleted, CreatedAt: now, UpdatedAt: now},
		{ID: "session-anon", OrganizationID: "org-1", BranchID: "branch-1", TableID: "table-4", Status: models.SessionActive, CreatedAt: now, UpdatedAt: now},
	})
	insert(&[]models.Coupon{
		{ID: "coupon-10", OrganizationID: "org-1", Code: "HOLA10", Type: models.DiscountPercentage, Status: models.CouponActive,
			DiscountValue: decimal.NewFromInt(10), MaxUsesTotal: ptr(3), MaxUsesPerCustomer: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "coupon-vip", OrganizationID: "org-1", Code: "VIP500", Type: models.DiscountFixed, Status: models.CouponActive,
			DiscountValue: decimal.NewFromInt(500), MaxUsesPerCustomer: 1, RequiresAssignment: true, CreatedAt: now, UpdatedAt: now},
		{ID: "coupon-min", OrganizationID: "org-1", Code: "BIG", Type: models.DiscountFixed, Status: models.CouponActive,
			DiscountValue: decimal.NewFromInt(500), MinOrderAmount: ptr(50000), CreatedAt: now, UpdatedAt: now},
	})
	insert(&models.CouponAssignment{ID: "assign-1", CouponID: "coupon-vip", CustomerID: "cust-1", SentAt: now, CreatedAt: now})

	insert(&models.LoyaltyProgram{ID: "program-1", OrganizationID: "org-1", Name: "Puntos", Active: true, CreatedAt: now})
	insert(&models.LoyaltyTier{ID: "bronze", ProgramID: "program-1", Name: "Bronce", MinPoints: 0})
	insert(&models.LoyaltyReward{
		ID: "reward-20", ProgramID: "program-1", Name: "20% off", PointsCost: 200,
		DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(20), Active: true,
	})

	rec := &recorder{}
	service := order.NewOrderService(bunDB, &catalog.DB{Bun: bunDB}, rec,
		config.SettlementConfig{TaxRateBps: 1800, PointsPerUnit: 100}, logger.NewTestLogger())

	return &fixture{
		bun:     bunDB,
		service: service,
		kitchen: order.NewKitchenService(service),
		coupons: &coupondb.DB{Bun: bunDB},
		loyalty: &loyaltydb.DB{Bun: bunDB},
		events:  rec,
	}
}

// enroll gives a customer points and returns the enrollment id.
func (f *fixture) enroll(t *testing.T, customerID string, points int64) string {
	t.Helper()
	svc := loyalty.NewLoyaltyService(f.bun, logger.NewTestLogger())
	e, err := svc.Enroll(context.Background(), customerID, "program-1")
	require.NoError(t, err)
	if points > 0 {
		_, err = loyalty.Append(context.Background(), f.loyalty, loyalty.Entry{
			EnrollmentID: e.ID, Points: points, Type: models.LoyaltyEarned, Description: "test credit",
		}, time.Now())
		require.NoError(t, err)
	}
	return e.ID
}

func (f *fixture) claim(t *testing.T, customerID string) *models.RewardRedemption {
	t.Helper()
	svc := loyalty.NewLoyaltyService(f.bun, logger.NewTestLogger())
	r, err := svc.ClaimReward(context.Background(), customerID, "reward-20")
	require.NoError(t, err)
	return r
}

func (f *fixture) coupon(t *testing.T, id string) *models.Coupon {
	t.Helper()
	c, err := f.coupons.GetCouponByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (f *fixture) balance(t *testing.T, enrollmentID string) int64 {
	t.Helper()
	e, err := f.loyalty.GetEnrollment(context.Background(), enrollmentID)
	require.NoError(t, err)
	sum, err := f.loyalty.SumTransactions(context.Background(), enrollmentID)
	require.NoError(t, err)
	require.Equal(t, sum, e.PointsBalance, "cached balance must equal ledger sum")
	return e.PointsBalance
}

// tenThousand is two lomo saltado with egg: (4500+500) x 2.
func tenThousand() []order.SettleLine {
	return []order.SettleLine{{MenuItemID: "item-lomo", Quantity: 2, ModifierIDs: []string{"mod-egg"}}}
}
