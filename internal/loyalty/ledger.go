// Package loyalty keeps customer point balances. Every balance change is an
// append-only ledger row, and the cached points_balance always equals the sum
// of the ledger.
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/models"
)

// Store is the loyalty persistence. Implementations are usually bound to the
// caller's transaction so ledger rows and balances commit together.
type Store interface {
	GetProgram(ctx context.Context, id string) (*models.LoyaltyProgram, error)
	ListTiers(ctx context.Context, programID string) ([]models.LoyaltyTier, error)
	GetReward(ctx context.Context, id string) (*models.LoyaltyReward, error)

	CreateEnrollment(ctx context.Context, e *models.CustomerLoyalty) error
	GetEnrollment(ctx context.Context, id string) (*models.CustomerLoyalty, error)
	FindEnrollment(ctx context.Context, customerID, programID string) (*models.CustomerLoyalty, error)
	FindActiveEnrollment(ctx context.Context, customerID, organizationID string) (*models.CustomerLoyalty, error)
	ApplyDelta(ctx context.Context, enrollmentID string, delta int64, earned bool) (bool, error)
	SetTier(ctx context.Context, enrollmentID, tierID string) error

	InsertTransaction(ctx context.Context, tx *models.LoyaltyTransaction) error
	SumTransactions(ctx context.Context, enrollmentID string) (int64, error)
	ListTransactions(ctx context.Context, enrollmentID string) ([]models.LoyaltyTransaction, error)

	CreateRedemption(ctx context.Context, r *models.RewardRedemption) error
	GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error)
	GetRedemptionByOrder(ctx context.Context, orderID string) (*models.RewardRedemption, error)
	LinkRedemption(ctx context.Context, id, orderID string, discount int64, at time.Time) (bool, error)
	UnlinkRedemption(ctx context.Context, id string) error
	ListOpenRedemptions(ctx context.Context, enrollmentID string) ([]models.RewardRedemption, error)
}

// Entry is one ledger append.
type Entry struct {
	EnrollmentID string
	Points       int64
	Type         models.LoyaltyTransactionType
	OrderID      string
	Description  string
}

// Append records entry and moves the cached balance by the same amount. A
// change that would make the balance negative is refused as an invariant
// violation and nothing is written.
func Append(ctx context.Context, s Store, e Entry, now time.Time) (*models.LoyaltyTransaction, error) {
	if e.Points == 0 {
		return nil, apperr.Invariant("ledger entries must move the balance")
	}

	earned := e.Type == models.LoyaltyEarned
	ok, err := s.ApplyDelta(ctx, e.EnrollmentID, e.Points, earned)
	if err != nil {
		return nil, fmt.Errorf("failed to update points balance: %w", err)
	}
	if !ok {
		return nil, apperr.Invariant(fmt.Sprintf("points balance of %s would become negative", e.EnrollmentID))
	}

	row := &models.LoyaltyTransaction{
		ID:                uuid.NewString(),
		CustomerLoyaltyID: e.EnrollmentID,
		Points:            e.Points,
		Type:              e.Type,
		OrderID:           e.OrderID,
		Description:       e.Description,
		CreatedAt:         now,
	}
	if err := s.InsertTransaction(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to append loyalty transaction: %w", err)
	}

	if earned && e.Points > 0 {
		if err := refreshTier(ctx, s, e.EnrollmentID); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// refreshTier points the enrollment at the highest tier its lifetime points reach.
func refreshTier(ctx context.Context, s Store, enrollmentID string) error {
	enrollment, err := s.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil {
		return apperr.Invariant(fmt.Sprintf("enrollment %s vanished", enrollmentID))
	}

	tiers, err := s.ListTiers(ctx, enrollment.ProgramID)
	if err != nil {
		return fmt.Errorf("failed to load tiers: %w", err)
	}

	tierID := TierFor(tiers, enrollment.TotalPointsEarned)
	if tierID == "" || tierID == enrollment.TierID {
		return nil
	}
	return s.SetTier(ctx, enrollmentID, tierID)
}

// TierFor returns the id of the tier with the highest threshold not above total.
func TierFor(tiers []models.LoyaltyTier, total int64) string {
	var best *models.LoyaltyTier
	for i := range tiers {
		t := &tiers[i]
		if t.MinPoints > total {
			continue
		}
		if best == nil || t.MinPoints > best.MinPoints {
			best = t
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// Balance returns the balance according to the ledger.
func Balance(ctx context.Context, s Store, enrollmentID string) (int64, error) {
	return s.SumTransactions(ctx, enrollmentID)
}

// Reconcile compares the cached balance with the ledger and reports a mismatch
// as an invariant violation.
func Reconcile(ctx context.Context, s Store, enrollmentID string) (int64, error) {
	enrollment, err := s.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil {
		return 0, apperr.NotFound(apperr.ReasonEnrollmentNotFound, "enrollment not found")
	}

	ledger, err := s.SumTransactions(ctx, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	if ledger != enrollment.PointsBalance {
		return ledger, apperr.Invariant(fmt.Sprintf(
			"enrollment %s caches %d points but the ledger sums to %d", enrollmentID, enrollment.PointsBalance, ledger))
	}
	return ledger, nil
}

// ResolveRedemption loads a claimed redemption for use on an order of
// organizationID placed by customerID.
func ResolveRedemption(ctx context.Context, s Store, redemptionID, customerID, organizationID string) (*models.RewardRedemption, *models.LoyaltyReward, error) {
	if customerID == "" {
		return nil, nil, apperr.BadRequest(apperr.ReasonCustomerRequired, "rewards can only be redeemed by a known customer")
	}

	redemption, err := s.GetRedemption(ctx, redemptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load redemption: %w", err)
	}
	if redemption == nil {
		return nil, nil, apperr.BadRequest(apperr.ReasonRedemptionNotFound, fmt.Sprintf("redemption %s not found", redemptionID))
	}
	if redemption.OrderID != "" {
		return nil, nil, apperr.BadRequest(apperr.ReasonRedemptionAlreadyUsed, "redemption is already applied to an order")
	}

	enrollment, err := s.GetEnrollment(ctx, redemption.CustomerLoyaltyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || enrollment.CustomerID != customerID {
		return nil, nil, apperr.BadRequest(apperr.ReasonRedemptionWrongEnrolment, "redemption belongs to another customer")
	}
	program, err := s.GetProgram(ctx, enrollment.ProgramID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load program: %w", err)
	}
	if program == nil || program.OrganizationID != organizationID {
		return nil, nil, apperr.BadRequest(apperr.ReasonRedemptionWrongEnrolment, "redemption belongs to another organization")
	}

	reward, err := s.GetReward(ctx, redemption.RewardID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reward: %w", err)
	}
	if reward == nil {
		return nil, nil, apperr.Invariant(fmt.Sprintf("redemption %s references missing reward %s", redemption.ID, redemption.RewardID))
	}
	return redemption, reward, nil
}

// RefundRedemption reverses the point debit of a redemption applied to a
// cancelled order and makes the redemption reusable.
func RefundRedemption(ctx context.Context, s Store, r *models.RewardRedemption, orderNumber int64, now time.Time) (*models.LoyaltyTransaction, error) {
	row, err := Append(ctx, s, Entry{
		EnrollmentID: r.CustomerLoyaltyID,
		Points:       r.PointsSpent,
		Type:         models.LoyaltyAdjusted,
		OrderID:      r.OrderID,
		Description:  fmt.Sprintf("Refund of %d points: order #%d was cancelled", r.PointsSpent, orderNumber),
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.UnlinkRedemption(ctx, r.ID); err != nil {
		return nil, fmt.Errorf("failed to unlink redemption: %w", err)
	}
	return row, nil
}

// EarnForOrder credits points for a completed order: one point per
// pointsPerUnit minor units of the order total. Orders without a customer, or
// whose customer is not enrolled in the organization's active program, earn
// nothing.
func EarnForOrder(ctx context.Context, s Store, o *models.Order, pointsPerUnit int64, now time.Time) (*models.LoyaltyTransaction, error) {
	if o.CustomerID == "" || pointsPerUnit <= 0 {
		return nil, nil
	}
	points := o.Total / pointsPerUnit
	if points <= 0 {
		return nil, nil
	}

	enrollment, err := s.FindActiveEnrollment(ctx, o.CustomerID, o.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, nil
	}

	return Append(ctx, s, Entry{
		EnrollmentID: enrollment.ID,
		Points:       points,
		Type:         models.LoyaltyEarned,
		OrderID:      o.ID,
		Description:  fmt.Sprintf("Earned on order #%d", o.OrderNumber),
	}, now)
}
