package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeout  OrderType = "takeout"
	OrderTypeDelivery OrderType = "delivery"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDineIn, OrderTypeTakeout, OrderTypeDelivery:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
	ItemCancelled ItemStatus = "cancelled"
)

// Order is the priced snapshot produced by settlement. Money fields are minor currency units.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                string      `bun:"id,pk" json:"id"`
	OrganizationID    string      `bun:"organization_id,notnull" json:"organization_id"`
	BranchID          string      `bun:"branch_id,notnull,unique:branch_order_number" json:"branch_id"`
	TableSessionID    string      `bun:"table_session_id,nullzero" json:"table_session_id,omitempty"`
	TableID           string      `bun:"table_id,nullzero" json:"table_id,omitempty"`
	CustomerID        string      `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	OrderNumber       int64       `bun:"order_number,notnull,unique:branch_order_number" json:"order_number"`
	Type              OrderType   `bun:"type,notnull" json:"type"`
	Status            OrderStatus `bun:"status,notnull" json:"status"`
	CustomerName      string      `bun:"customer_name" json:"customer_name"`
	Subtotal          int64       `bun:"subtotal,notnull" json:"subtotal"`
	CouponDiscount    int64       `bun:"coupon_discount,notnull" json:"coupon_discount"`
	RewardDiscount    int64       `bun:"reward_discount,notnull" json:"reward_discount"`
	Discount          int64       `bun:"discount,notnull" json:"discount"`
	Tax               int64       `bun:"tax,notnull" json:"tax"`
	Total             int64       `bun:"total,notnull" json:"total"`
	Notes             string      `bun:"notes" json:"notes,omitempty"`
	InventoryDeducted bool        `bun:"inventory_deducted,notnull" json:"inventory_deducted"`
	CreatedAt         time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time   `bun:"updated_at,notnull" json:"updated_at"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// ModifierSnapshot is the price of a selected modifier at settlement time.
type ModifierSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// OrderItem is immutable once written, except for Status.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID         string             `bun:"id,pk" json:"id"`
	OrderID    string             `bun:"order_id,notnull" json:"order_id"`
	MenuItemID string             `bun:"menu_item_id,notnull" json:"menu_item_id"`
	CategoryID string             `bun:"category_id,nullzero" json:"category_id,omitempty"`
	Name       string             `bun:"name,notnull" json:"name"`
	BasePrice  int64              `bun:"base_price,notnull" json:"base_price"`
	UnitPrice  int64              `bun:"unit_price,notnull" json:"unit_price"`
	Quantity   int64              `bun:"quantity,notnull" json:"quantity"`
	LineTotal  int64              `bun:"line_total,notnull" json:"line_total"`
	Modifiers  []ModifierSnapshot `bun:"modifiers" json:"modifiers,omitempty"`
	Notes      string             `bun:"notes" json:"notes,omitempty"`
	Status     ItemStatus         `bun:"status,notnull" json:"status"`
	CreatedAt  time.Time          `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time          `bun:"updated_at,notnull" json:"updated_at"`
}
