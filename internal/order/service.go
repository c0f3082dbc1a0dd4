package order

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/catalog"
	"ms-ordering/internal/config"
	coupondb "ms-ordering/internal/coupon/db"
	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
	loyaltydb "ms-ordering/internal/loyalty/db"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order/db"
	sessiondb "ms-ordering/internal/session/db"
	"ms-ordering/internal/utils"
)

// maxNumberAttempts bounds retries when two settlements of a branch pick the same order number.
const maxNumberAttempts = 3

// OrderService settles, cancels and reads orders. Every write runs in one
// transaction that also covers the coupon and loyalty side effects.
type OrderService struct {
	Bun      *bun.DB
	Orders   *db.DB
	Coupons  *coupondb.DB
	Loyalty  *loyaltydb.DB
	Sessions *sessiondb.DB
	Catalog  catalog.TxProvider
	Events   events.Publisher
	Logger   *logger.Logger
	Pricing  config.SettlementConfig
	now      func() time.Time
}

func NewOrderService(bunDB *bun.DB, cat catalog.TxProvider, pub events.Publisher, pricing config.SettlementConfig, log *logger.Logger) *OrderService {
	if pub == nil {
		pub = events.Discard{}
	}
	if pricing.MaxLineQuantity <= 0 {
		pricing.MaxLineQuantity = config.DefaultMaxLineQuantity
	}
	return &OrderService{
		Bun:      bunDB,
		Orders:   &db.DB{Bun: bunDB},
		Coupons:  &coupondb.DB{Bun: bunDB},
		Loyalty:  &loyaltydb.DB{Bun: bunDB},
		Sessions: &sessiondb.DB{Bun: bunDB},
		Catalog:  cat,
		Events:   pub,
		Logger:   log,
		Pricing:  pricing,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// repos is the set of repositories bound to one transaction.
type repos struct {
	orders   *db.DB
	coupons  *coupondb.DB
	loyalty  *loyaltydb.DB
	sessions *sessiondb.DB
	catalog  catalog.Provider
}

func (s *OrderService) bind(tx bun.Tx) repos {
	r := repos{
		orders:   s.Orders.WithTx(tx),
		coupons:  s.Coupons.WithTx(tx),
		loyalty:  s.Loyalty.WithTx(tx),
		sessions: s.Sessions.WithTx(tx),
	}
	if s.Catalog != nil {
		r.catalog = s.Catalog.WithTx(tx)
	}
	return r
}

// ---------------- READS ----------------

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.Orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	if o == nil {
		return nil, apperr.NotFound(apperr.ReasonOrderNotFound, "order not found")
	}
	return o, nil
}

// GetOrderOfItem returns the order an item belongs to.
func (s *OrderService) GetOrderOfItem(ctx context.Context, itemID string) (*models.Order, error) {
	item, err := s.Orders.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order item %s: %w", itemID, err)
	}
	if item == nil {
		return nil, apperr.NotFound(apperr.ReasonItemNotFound, "order item not found")
	}
	return s.GetOrder(ctx, item.OrderID)
}

// ListSessionOrders returns the orders of a table session, newest first.
func (s *OrderService) ListSessionOrders(ctx context.Context, sessionID string) ([]models.Order, error) {
	orders, err := s.Orders.ListSessionOrders(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of session %s: %w", sessionID, err)
	}
	return orders, nil
}

// ---------------- EVENTS ----------------

// ItemSummary is the kitchen-facing view of an order line.
type ItemSummary struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Quantity  int64             `json:"quantity"`
	Modifiers []string          `json:"modifiers,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Status    models.ItemStatus `json:"status"`
}

// Summary is the payload of order events.
type Summary struct {
	ID          string             `json:"id"`
	OrderNumber int64              `json:"order_number"`
	Display     string             `json:"display_number"`
	Status      models.OrderStatus `json:"status"`
	Type        models.OrderType   `json:"type"`
	TableID     string             `json:"table_id,omitempty"`
	Total       int64              `json:"total"`
	Items       []ItemSummary      `json:"items"`
}

func summarize(o *models.Order) Summary {
	sum := Summary{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Display:     utils.FormatOrderNumber(o.OrderNumber),
		Status:      o.Status,
		Type:        o.Type,
		TableID:     o.TableID,
		Total:       o.Total,
		Items:       make([]ItemSummary, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		is := ItemSummary{ID: it.ID, Name: it.Name, Quantity: it.Quantity, Notes: it.Notes, Status: it.Status}
		for _, m := range it.Modifiers {
			is.Modifiers = append(is.Modifiers, m.Name)
		}
		sum.Items = append(sum.Items, is)
	}
	return sum
}

func (s *OrderService) emit(t events.Type, o *models.Order) {
	events.Emit(s.Events, t, o.BranchID, o.TableSessionID, summarize(o))
}
