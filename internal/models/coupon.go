package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// DiscountType is shared by coupons and loyalty rewards.
type DiscountType string

const (
	DiscountPercentage       DiscountType = "percentage"
	DiscountFixed            DiscountType = "fixed"
	DiscountItemFree         DiscountType = "item_free"
	DiscountItemDiscount     DiscountType = "item_discount"
	DiscountCategoryDiscount DiscountType = "category_discount"
	DiscountBuyXGetY         DiscountType = "buy_x_get_y"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixed, DiscountItemFree, DiscountItemDiscount,
		DiscountCategoryDiscount, DiscountBuyXGetY:
		return true
	}
	return false
}

type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponInactive CouponStatus = "inactive"
	CouponExpired  CouponStatus = "expired"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons,alias:c"`

	ID             string       `bun:"id,pk" json:"id"`
	OrganizationID string       `bun:"organization_id,notnull,unique:org_code" json:"organization_id"`
	Code           string       `bun:"code,notnull,unique:org_code" json:"code"`
	Description    string       `bun:"description" json:"description,omitempty"`
	Type           DiscountType `bun:"type,notnull" json:"type"`
	Status         CouponStatus `bun:"status,notnull" json:"status"`
	// DiscountValue is a percent for percentage-based types and minor units for fixed.
	DiscountValue      decimal.Decimal `bun:"discount_value,type:numeric,notnull" json:"discount_value"`
	TargetItemID       string          `bun:"target_item_id,nullzero" json:"target_item_id,omitempty"`
	TargetCategoryID   string          `bun:"target_category_id,nullzero" json:"target_category_id,omitempty"`
	BuyQuantity        int64           `bun:"buy_quantity,notnull" json:"buy_quantity,omitempty"`
	GetQuantity        int64           `bun:"get_quantity,notnull" json:"get_quantity,omitempty"`
	MinOrderAmount     *int64          `bun:"min_order_amount" json:"min_order_amount,omitempty"`
	MaxDiscountAmount  *int64          `bun:"max_discount_amount" json:"max_discount_amount,omitempty"`
	MaxUsesTotal       *int64          `bun:"max_uses_total" json:"max_uses_total,omitempty"`
	MaxUsesPerCustomer int64           `bun:"max_uses_per_customer,notnull" json:"max_uses_per_customer"`
	CurrentUses        int64           `bun:"current_uses,notnull" json:"current_uses"`
	RequiresAssignment bool            `bun:"requires_assignment,notnull" json:"requires_assignment"`
	StartsAt           time.Time       `bun:"starts_at,nullzero" json:"starts_at,omitempty"`
	ExpiresAt          time.Time       `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt          time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

// CouponAssignment targets a coupon at one customer.
type CouponAssignment struct {
	bun.BaseModel `bun:"table:coupon_assignments,alias:ca"`

	ID         string    `bun:"id,pk" json:"id"`
	CouponID   string    `bun:"coupon_id,notnull,unique:coupon_customer" json:"coupon_id"`
	CustomerID string    `bun:"customer_id,notnull,unique:coupon_customer" json:"customer_id"`
	SentAt     time.Time `bun:"sent_at,nullzero" json:"sent_at,omitempty"`
	SeenAt     time.Time `bun:"seen_at,nullzero" json:"seen_at,omitempty"`
	UsedAt     time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

// CouponRedemption records one coupon application to one order.
type CouponRedemption struct {
	bun.BaseModel `bun:"table:coupon_redemptions,alias:cr"`

	ID              string    `bun:"id,pk" json:"id"`
	CouponID        string    `bun:"coupon_id,notnull" json:"coupon_id"`
	OrderID         string    `bun:"order_id,notnull,unique" json:"order_id"`
	CustomerID      string    `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	DiscountApplied int64     `bun:"discount_applied,notnull" json:"discount_applied"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"created_at"`
}
