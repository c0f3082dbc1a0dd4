package coupon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/coupon"
	"ms-ordering/internal/models"
)

func ptr(v int64) *int64 { return &v }

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func activeCoupon() *models.Coupon {
	return &models.Coupon{
		ID:                 "coupon-1",
		OrganizationID:     "org-1",
		Code:               "HOLA10",
		Type:               models.DiscountPercentage,
		Status:             models.CouponActive,
		DiscountValue:      decimal.NewFromInt(10),
		MaxUsesPerCustomer: 1,
	}
}

func baseContext() coupon.Context {
	return coupon.Context{OrganizationID: "org-1", Subtotal: 10000, Now: now}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.Coupon, vc *coupon.Context)
		nilC   bool
		reason apperr.Reason
	}{
		{name: "valid", mutate: func(*models.Coupon, *coupon.Context) {}},
		{name: "missing coupon", nilC: true, reason: apperr.ReasonCouponNotFound},
		{
			name:   "other organization",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.OrganizationID = "org-2" },
			reason: apperr.ReasonCouponNotFound,
		},
		{
			name:   "inactive",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.Status = models.CouponInactive },
			reason: apperr.ReasonCouponInactive,
		},
		{
			name:   "status expired",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.Status = models.CouponExpired },
			reason: apperr.ReasonCouponExpired,
		},
		{
			name:   "not started",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.StartsAt = now.Add(time.Hour) },
			reason: apperr.ReasonCouponNotStarted,
		},
		{
			name:   "starts exactly now",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.StartsAt = now },
		},
		{
			name:   "expired window",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.ExpiresAt = now.Add(-time.Second) },
			reason: apperr.ReasonCouponExpired,
		},
		{
			name:   "expires exactly now",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.ExpiresAt = now },
		},
		{
			name: "usage cap reached",
			mutate: func(c *models.Coupon, _ *coupon.Context) {
				c.MaxUsesTotal = ptr(5)
				c.CurrentUses = 5
			},
			reason: apperr.ReasonCouponUsageLimit,
		},
		{
			name: "usage below cap",
			mutate: func(c *models.Coupon, _ *coupon.Context) {
				c.MaxUsesTotal = ptr(5)
				c.CurrentUses = 4
			},
		},
		{
			name:   "assignment required without customer",
			mutate: func(c *models.Coupon, _ *coupon.Context) { c.RequiresAssignment = true },
			reason: apperr.ReasonCouponNotAssigned,
		},
		{
			name: "assignment required but missing",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.RequiresAssignment = true
				vc.CustomerID = "cust-1"
			},
			reason: apperr.ReasonCouponNotAssigned,
		},
		{
			name: "assigned customer",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.RequiresAssignment = true
				vc.CustomerID = "cust-1"
				vc.Assignment = &models.CouponAssignment{CouponID: c.ID, CustomerID: "cust-1"}
			},
		},
		{
			name: "per customer limit",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				vc.CustomerID = "cust-1"
				vc.CustomerUses = 1
			},
			reason: apperr.ReasonCouponCustomerLimit,
		},
		{
			name: "per customer limit ignored for anonymous orders",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				vc.CustomerUses = 3
			},
		},
		{
			name: "below minimum order",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.MinOrderAmount = ptr(20000)
			},
			reason: apperr.ReasonCouponMinOrder,
		},
		{
			name: "exactly minimum order",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.MinOrderAmount = ptr(10000)
			},
		},
		{
			name: "inactive wins over expired window",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.Status = models.CouponInactive
				c.ExpiresAt = now.Add(-time.Hour)
			},
			reason: apperr.ReasonCouponInactive,
		},
		{
			name: "usage cap checked before minimum order",
			mutate: func(c *models.Coupon, vc *coupon.Context) {
				c.MaxUsesTotal = ptr(1)
				c.CurrentUses = 1
				c.MinOrderAmount = ptr(50000)
			},
			reason: apperr.ReasonCouponUsageLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon()
			vc := baseContext()
			if tt.nilC {
				c = nil
			} else {
				tt.mutate(c, &vc)
			}

			err := coupon.Validate(c, vc)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
			assert.Equal(t, tt.reason, apperr.ReasonOf(err))
		})
	}
}

type MockReader struct {
	mock.Mock
}

func (m *MockReader) FindByCode(ctx context.Context, organizationID, code string) (*models.Coupon, error) {
	args := m.Called(ctx, organizationID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *MockReader) FindAssignment(ctx context.Context, couponID, customerID string) (*models.CouponAssignment, error) {
	args := m.Called(ctx, couponID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CouponAssignment), args.Error(1)
}

func (m *MockReader) CountCustomerRedemptions(ctx context.Context, couponID, customerID string) (int64, error) {
	args := m.Called(ctx, couponID, customerID)
	return args.Get(0).(int64), args.Error(1)
}

func TestResolveLoadsCustomerState(t *testing.T) {
	ctx := context.Background()
	c := activeCoupon()
	c.RequiresAssignment = true
	assignment := &models.CouponAssignment{ID: "a-1", CouponID: c.ID, CustomerID: "cust-1"}

	reader := new(MockReader)
	reader.On("FindByCode", ctx, "org-1", "HOLA10").Return(c, nil)
	reader.On("FindAssignment", ctx, c.ID, "cust-1").Return(assignment, nil)
	reader.On("CountCustomerRedemptions", ctx, c.ID, "cust-1").Return(int64(0), nil)

	vc := baseContext()
	vc.CustomerID = "cust-1"
	got, gotAssignment, err := coupon.Resolve(ctx, reader, "HOLA10", vc)

	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.Equal(t, assignment, gotAssignment)
	reader.AssertExpectations(t)
}

func TestResolveAnonymousSkipsCustomerLookups(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	reader.On("FindByCode", ctx, "org-1", "HOLA10").Return(activeCoupon(), nil)

	got, assignment, err := coupon.Resolve(ctx, reader, "HOLA10", baseContext())

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Nil(t, assignment)
	reader.AssertNotCalled(t, "FindAssignment", mock.Anything, mock.Anything, mock.Anything)
	reader.AssertNotCalled(t, "CountCustomerRedemptions", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveUnknownCode(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	reader.On("FindByCode", ctx, "org-1", "NOPE").Return(nil, nil)

	_, _, err := coupon.Resolve(ctx, reader, "NOPE", baseContext())

	assert.Equal(t, apperr.ReasonCouponNotFound, apperr.ReasonOf(err))
	assert.Equal(t, apperr.CodeBadRequest, apperr.CodeOf(err))
}

func TestResolveStoreFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	reader := new(MockReader)
	reader.On("FindByCode", ctx, "org-1", "HOLA10").Return(nil, errors.New("connection reset"))

	_, _, err := coupon.Resolve(ctx, reader, "HOLA10", baseContext())

	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

func TestResolveCustomerLimit(t *testing.T) {
	ctx := context.Background()
	c := activeCoupon()
	reader := new(MockReader)
	reader.On("FindByCode", ctx, "org-1", "HOLA10").Return(c, nil)
	reader.On("FindAssignment", ctx, c.ID, "cust-1").Return(nil, nil)
	reader.On("CountCustomerRedemptions", ctx, c.ID, "cust-1").Return(int64(1), nil)

	vc := baseContext()
	vc.CustomerID = "cust-1"
	_, _, err := coupon.Resolve(ctx, reader, "HOLA10", vc)

	assert.Equal(t, apperr.ReasonCouponCustomerLimit, apperr.ReasonOf(err))
}
