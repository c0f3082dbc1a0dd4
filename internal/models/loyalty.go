package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type LoyaltyProgram struct {
	bun.BaseModel `bun:"table:loyalty_programs,alias:lp"`

	ID             string    `bun:"id,pk" json:"id"`
	OrganizationID string    `bun:"organization_id,notnull" json:"organization_id"`
	Name           string    `bun:"name,notnull" json:"name"`
	Active         bool      `bun:"active,notnull" json:"active"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
}

type LoyaltyTier struct {
	bun.BaseModel `bun:"table:loyalty_tiers,alias:lt"`

	ID        string `bun:"id,pk" json:"id"`
	ProgramID string `bun:"program_id,notnull" json:"program_id"`
	Name      string `bun:"name,notnull" json:"name"`
	MinPoints int64  `bun:"min_points,notnull" json:"min_points"`
}

// LoyaltyReward is a discount a customer can claim with points.
type LoyaltyReward struct {
	bun.BaseModel `bun:"table:loyalty_rewards,alias:lr"`

	ID                string          `bun:"id,pk" json:"id"`
	ProgramID         string          `bun:"program_id,notnull" json:"program_id"`
	Name              string          `bun:"name,notnull" json:"name"`
	PointsCost        int64           `bun:"points_cost,notnull" json:"points_cost"`
	DiscountType      DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue     decimal.Decimal `bun:"discount_value,type:numeric,notnull" json:"discount_value"`
	TargetItemID      string          `bun:"target_item_id,nullzero" json:"target_item_id,omitempty"`
	TargetCategoryID  string          `bun:"target_category_id,nullzero" json:"target_category_id,omitempty"`
	BuyQuantity       int64           `bun:"buy_quantity,notnull" json:"buy_quantity,omitempty"`
	GetQuantity       int64           `bun:"get_quantity,notnull" json:"get_quantity,omitempty"`
	MaxDiscountAmount *int64          `bun:"max_discount_amount" json:"max_discount_amount,omitempty"`
	Active            bool            `bun:"active,notnull" json:"active"`
}

// CustomerLoyalty is an enrollment. PointsBalance is spendable; TotalPointsEarned only grows.
type CustomerLoyalty struct {
	bun.BaseModel `bun:"table:customer_loyalty,alias:cl"`

	ID                string    `bun:"id,pk" json:"id"`
	CustomerID        string    `bun:"customer_id,notnull,unique:customer_program" json:"customer_id"`
	ProgramID         string    `bun:"program_id,notnull,unique:customer_program" json:"program_id"`
	PointsBalance     int64     `bun:"points_balance,notnull" json:"points_balance"`
	TotalPointsEarned int64     `bun:"total_points_earned,notnull" json:"total_points_earned"`
	TierID            string    `bun:"tier_id,nullzero" json:"tier_id,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

type LoyaltyTransactionType string

const (
	LoyaltyEarned   LoyaltyTransactionType = "earned"
	LoyaltyRedeemed LoyaltyTransactionType = "redeemed"
	LoyaltyAdjusted LoyaltyTransactionType = "adjusted"
	LoyaltyExpired  LoyaltyTransactionType = "expired"
)

// LoyaltyTransaction is an append-only ledger row; Points is signed.
type LoyaltyTransaction struct {
	bun.BaseModel `bun:"table:loyalty_transactions,alias:ltx"`

	ID                string                 `bun:"id,pk" json:"id"`
	CustomerLoyaltyID string                 `bun:"customer_loyalty_id,notnull" json:"customer_loyalty_id"`
	Points            int64                  `bun:"points,notnull" json:"points"`
	Type              LoyaltyTransactionType `bun:"type,notnull" json:"type"`
	OrderID           string                 `bun:"order_id,nullzero" json:"order_id,omitempty"`
	Description       string                 `bun:"description" json:"description"`
	CreatedAt         time.Time              `bun:"created_at,notnull" json:"created_at"`
}

// RewardRedemption is claimed (OrderID empty) until applied to an order.
type RewardRedemption struct {
	bun.BaseModel `bun:"table:reward_redemptions,alias:rr"`

	ID                string    `bun:"id,pk" json:"id"`
	CustomerLoyaltyID string    `bun:"customer_loyalty_id,notnull" json:"customer_loyalty_id"`
	RewardID          string    `bun:"reward_id,notnull" json:"reward_id"`
	PointsSpent       int64     `bun:"points_spent,notnull" json:"points_spent"`
	OrderID           string    `bun:"order_id,nullzero" json:"order_id,omitempty"`
	DiscountApplied   int64     `bun:"discount_applied,notnull" json:"discount_applied"`
	AppliedAt         time.Time `bun:"applied_at,nullzero" json:"applied_at,omitempty"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`
}
