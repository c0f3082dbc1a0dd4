package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/database"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
)

// DBLayer is the coupon persistence the service needs.
type DBLayer interface {
	Reader
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	GetCouponByID(ctx context.Context, id string) (*models.Coupon, error)
	CreateAssignment(ctx context.Context, a *models.CouponAssignment) error
	MarkAssignmentSeen(ctx context.Context, couponID, customerID string, at time.Time) (bool, error)
}

type CouponService struct {
	DB     DBLayer
	Logger *logger.Logger
	now    func() time.Time
}

func NewCouponService(db DBLayer, log *logger.Logger) *CouponService {
	return &CouponService{DB: db, Logger: log, now: time.Now}
}

// NormalizeCode trims and upper-cases a coupon code. Codes are stored normalized.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateCouponRequest is a staff request for a new coupon.
type CreateCouponRequest struct {
	OrganizationID     string              `json:"organization_id"`
	Code               string              `json:"code"`
	Description        string              `json:"description"`
	Type               models.DiscountType `json:"type"`
	DiscountValue      decimal.Decimal     `json:"discount_value"`
	TargetItemID       string              `json:"target_item_id"`
	TargetCategoryID   string              `json:"target_category_id"`
	BuyQuantity        int64               `json:"buy_quantity"`
	GetQuantity        int64               `json:"get_quantity"`
	MinOrderAmount     *int64              `json:"min_order_amount"`
	MaxDiscountAmount  *int64              `json:"max_discount_amount"`
	MaxUsesTotal       *int64              `json:"max_uses_total"`
	MaxUsesPerCustomer *int64              `json:"max_uses_per_customer"`
	RequiresAssignment bool                `json:"requires_assignment"`
	StartsAt           *time.Time          `json:"starts_at"`
	ExpiresAt          *time.Time          `json:"expires_at"`
}

func (r CreateCouponRequest) validate() error {
	switch {
	case r.OrganizationID == "":
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "organization_id is required")
	case strings.TrimSpace(r.Code) == "":
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "code is required")
	case !r.Type.Valid():
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, fmt.Sprintf("unknown coupon type %q", r.Type))
	case r.DiscountValue.IsNegative():
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "discount_value must not be negative")
	case r.Type == models.DiscountBuyXGetY && (r.BuyQuantity <= 0 || r.GetQuantity <= 0):
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "buy_x_get_y needs buy_quantity and get_quantity")
	case r.Type == models.DiscountItemDiscount && r.TargetItemID == "":
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "item_discount needs target_item_id")
	case r.Type == models.DiscountCategoryDiscount && r.TargetCategoryID == "":
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "category_discount needs target_category_id")
	case r.StartsAt != nil && r.ExpiresAt != nil && r.ExpiresAt.Before(*r.StartsAt):
		return apperr.BadRequest(apperr.ReasonInvalidCoupon, "expires_at is before starts_at")
	}
	return nil
}

// CreateCoupon stores a new active coupon. Codes are unique per organization.
func (s *CouponService) CreateCoupon(ctx context.Context, req CreateCouponRequest) (*models.Coupon, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Coupon{
		ID:                 uuid.NewString(),
		OrganizationID:     req.OrganizationID,
		Code:               NormalizeCode(req.Code),
		Description:        req.Description,
		Type:               req.Type,
		Status:             models.CouponActive,
		DiscountValue:      req.DiscountValue,
		TargetItemID:       req.TargetItemID,
		TargetCategoryID:   req.TargetCategoryID,
		BuyQuantity:        req.BuyQuantity,
		GetQuantity:        req.GetQuantity,
		MinOrderAmount:     req.MinOrderAmount,
		MaxDiscountAmount:  req.MaxDiscountAmount,
		MaxUsesTotal:       req.MaxUsesTotal,
		MaxUsesPerCustomer: 1,
		RequiresAssignment: req.RequiresAssignment,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.MaxUsesPerCustomer != nil {
		c.MaxUsesPerCustomer = *req.MaxUsesPerCustomer
	}
	if req.StartsAt != nil {
		c.StartsAt = *req.StartsAt
	}
	if req.ExpiresAt != nil {
		c.ExpiresAt = *req.ExpiresAt
	}

	if err := s.DB.CreateCoupon(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Conflict(apperr.ReasonCouponCodeTaken, fmt.Sprintf("coupon code %q already exists", c.Code))
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.Logger.Info("COUPON", fmt.Sprintf("Created coupon %s (%s) for organization %s", c.Code, c.Type, c.OrganizationID))
	return c, nil
}

// AssignCoupon targets a coupon at a customer and marks it sent.
func (s *CouponService) AssignCoupon(ctx context.Context, couponID, customerID string) (*models.CouponAssignment, error) {
	if customerID == "" {
		return nil, apperr.BadRequest(apperr.ReasonCustomerRequired, "customer_id is required")
	}
	c, err := s.DB.GetCouponByID(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if c == nil {
		return nil, apperr.NotFound(apperr.ReasonCouponNotFound, "coupon not found")
	}

	now := s.now()
	a := &models.CouponAssignment{
		ID:         uuid.NewString(),
		CouponID:   c.ID,
		CustomerID: customerID,
		SentAt:     now,
		CreatedAt:  now,
	}
	if err := s.DB.CreateAssignment(ctx, a); err != nil {
		if database.IsUniqueViolation(err) {
			existing, findErr := s.DB.FindAssignment(ctx, c.ID, customerID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to assign coupon: %w", err)
	}

	s.Logger.Info("COUPON", fmt.Sprintf("Assigned coupon %s to customer %s", c.Code, customerID))
	return a, nil
}

// MarkSeen records the first time a customer viewed an assigned coupon.
func (s *CouponService) MarkSeen(ctx context.Context, couponID, customerID string) error {
	updated, err := s.DB.MarkAssignmentSeen(ctx, couponID, customerID, s.now())
	if err != nil {
		return fmt.Errorf("failed to mark coupon seen: %w", err)
	}
	if !updated {
		a, err := s.DB.FindAssignment(ctx, couponID, customerID)
		if err != nil {
			return fmt.Errorf("failed to load coupon assignment: %w", err)
		}
		if a == nil {
			return apperr.NotFound(apperr.ReasonCouponNotAssigned, "coupon is not assigned to this customer")
		}
	}
	return nil
}

// CheckCoupon validates a code against a prospective order without consuming it.
func (s *CouponService) CheckCoupon(ctx context.Context, organizationID, code, customerID string, subtotal int64) (*models.Coupon, error) {
	c, _, err := Resolve(ctx, s.DB, NormalizeCode(code), Context{
		OrganizationID: organizationID,
		Subtotal:       subtotal,
		CustomerID:     customerID,
		Now:            s.now(),
	})
	if err != nil {
		s.Logger.Debug("COUPON", fmt.Sprintf("Coupon %s rejected: %v", code, err))
		return nil, err
	}
	return c, nil
}
