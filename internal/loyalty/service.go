package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/database"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/loyalty/db"
	"ms-ordering/internal/models"
)

type LoyaltyService struct {
	Bun    *bun.DB
	Repo   *db.DB
	Logger *logger.Logger
	now    func() time.Time
}

func NewLoyaltyService(bunDB *bun.DB, log *logger.Logger) *LoyaltyService {
	return &LoyaltyService{
		Bun:    bunDB,
		Repo:   &db.DB{Bun: bunDB},
		Logger: log,
		now:    time.Now,
	}
}

// Enroll returns the customer's enrollment in the program, creating it when missing.
func (s *LoyaltyService) Enroll(ctx context.Context, customerID, programID string) (*models.CustomerLoyalty, error) {
	if customerID == "" {
		return nil, apperr.BadRequest(apperr.ReasonCustomerRequired, "customer_id is required")
	}
	program, err := s.Repo.GetProgram(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	if program == nil {
		return nil, apperr.NotFound(apperr.ReasonEnrollmentNotFound, "loyalty program not found")
	}

	existing, err := s.Repo.FindEnrollment(ctx, customerID, programID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	enrollment := &models.CustomerLoyalty{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		ProgramID:  programID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if tiers, err := s.Repo.ListTiers(ctx, programID); err == nil {
		enrollment.TierID = TierFor(tiers, 0)
	}

	if err := s.Repo.CreateEnrollment(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err) {
			return s.Repo.FindEnrollment(ctx, customerID, programID)
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	s.Logger.Info("LOYALTY", fmt.Sprintf("Customer %s enrolled in program %s", customerID, program.Name))
	return enrollment, nil
}

// ClaimReward spends points on a reward and returns the unlinked redemption
// the customer can later apply to an order.
func (s *LoyaltyService) ClaimReward(ctx context.Context, customerID, rewardID string) (*models.RewardRedemption, error) {
	if customerID == "" {
		return nil, apperr.BadRequest(apperr.ReasonCustomerRequired, "customer_id is required")
	}

	var redemption *models.RewardRedemption
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		repo := s.Repo.WithTx(tx)

		reward, err := repo.GetReward(ctx, rewardID)
		if err != nil {
			return fmt.Errorf("failed to load reward: %w", err)
		}
		if reward == nil {
			return apperr.NotFound(apperr.ReasonRewardNotFound, "reward not found")
		}
		if !reward.Active {
			return apperr.BadRequest(apperr.ReasonRewardInactive, "reward is not active")
		}

		enrollment, err := repo.FindEnrollment(ctx, customerID, reward.ProgramID)
		if err != nil {
			return fmt.Errorf("failed to load enrollment: %w", err)
		}
		if enrollment == nil {
			return apperr.NotFound(apperr.ReasonEnrollmentNotFound, "customer is not enrolled in the reward's program")
		}
		if enrollment.PointsBalance < reward.PointsCost {
			return apperr.BadRequest(apperr.ReasonInsufficientPoints,
				fmt.Sprintf("reward costs %d points, balance is %d", reward.PointsCost, enrollment.PointsBalance))
		}

		now := s.now()
		_, err = Append(ctx, repo, Entry{
			EnrollmentID: enrollment.ID,
			Points:       -reward.PointsCost,
			Type:         models.LoyaltyRedeemed,
			Description:  fmt.Sprintf("Claimed reward %s", reward.Name),
		}, now)
		if errors.Is(err, apperr.Invariant("")) {
			// balance was spent concurrently between the check and the debit
			return apperr.BadRequest(apperr.ReasonInsufficientPoints, "not enough points")
		}
		if err != nil {
			return err
		}

		redemption = &models.RewardRedemption{
			ID:                uuid.NewString(),
			CustomerLoyaltyID: enrollment.ID,
			RewardID:          reward.ID,
			PointsSpent:       reward.PointsCost,
			CreatedAt:         now,
		}
		if err := repo.CreateRedemption(ctx, redemption); err != nil {
			return fmt.Errorf("failed to create redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("LOYALTY", fmt.Sprintf("Customer %s claimed reward %s (redemption %s)", customerID, rewardID, redemption.ID))
	return redemption, nil
}

// Statement is an enrollment with its ledger.
type Statement struct {
	Enrollment   *models.CustomerLoyalty     `json:"enrollment"`
	LedgerTotal  int64                       `json:"ledger_total"`
	Transactions []models.LoyaltyTransaction `json:"transactions"`
	Open         []models.RewardRedemption   `json:"open_redemptions"`
}

// GetStatement returns the enrollment, its ledger and its unused redemptions.
// A cached balance that disagrees with the ledger is reported as an error.
func (s *LoyaltyService) GetStatement(ctx context.Context, enrollmentID string) (*Statement, error) {
	total, err := Reconcile(ctx, s.Repo, enrollmentID)
	if err != nil {
		if apperr.ReasonOf(err) == apperr.ReasonInvariantViolation {
			s.Logger.Error("LOYALTY", err.Error())
		}
		return nil, err
	}

	enrollment, err := s.Repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	txs, err := s.Repo.ListTransactions(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	open, err := s.Repo.ListOpenRedemptions(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load redemptions: %w", err)
	}

	return &Statement{Enrollment: enrollment, LedgerTotal: total, Transactions: txs, Open: open}, nil
}
