package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-ordering/internal/apperr"
	"ms-ordering/internal/auth"
	"ms-ordering/internal/database"
	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/session/db"
	"ms-ordering/internal/utils"
)

const (
	lockAttempts = 20
	lockBackoff  = 25 * time.Millisecond

	// ExpiredReviewer is recorded on sessions rejected because nobody approved them in time.
	ExpiredReviewer = "system:expired"
)

// Locks is the Redis side of registration: a per-table mutex plus the
// approval countdown of pending sessions.
type Locks interface {
	LockTable(ctx context.Context, tableID, owner string) (bool, error)
	UnlockTable(ctx context.Context, tableID, owner string) error
	MarkPending(ctx context.Context, sessionID string, ttl time.Duration) error
	ClearPending(ctx context.Context, sessionID string) error
}

// Revoker invalidates the device tokens of a session that is over.
type Revoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

var transitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionPending: {models.SessionActive, models.SessionRejected},
	models.SessionActive:  {models.SessionCompleted},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to models.SessionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type SessionService struct {
	Bun        *bun.DB
	Sessions   *db.DB
	Locks      Locks
	Tokens     *auth.SessionTokens
	Revoker    Revoker
	Events     events.Publisher
	Logger     *logger.Logger
	PendingTTL time.Duration
	now        func() time.Time
}

func NewSessionService(bunDB *bun.DB, locks Locks, tokens *auth.SessionTokens, revoker Revoker, pub events.Publisher, pendingTTL time.Duration, log *logger.Logger) *SessionService {
	if pub == nil {
		pub = events.Discard{}
	}
	return &SessionService{
		Bun:        bunDB,
		Sessions:   &db.DB{Bun: bunDB},
		Locks:      locks,
		Tokens:     tokens,
		Revoker:    revoker,
		Events:     pub,
		Logger:     log,
		PendingTTL: pendingTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	TableID      string
	CustomerID   string
	CustomerName string
}

// Registration is the outcome of Register. Token is the bearer token of the
// calling device; Joined is set when an open session already existed.
type Registration struct {
	Session *models.TableSession
	Token   string
	Joined  bool
}

// Register opens a pending session at a table, or joins the one already open.
// A second customer arriving while the first is still waiting for approval
// gets SESSION_PENDING_EXISTS.
func (s *SessionService) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if req.TableID == "" {
		return nil, apperr.NotFound(apperr.ReasonTableNotFound, "table is required")
	}

	release, err := s.lockTable(ctx, req.TableID)
	if err != nil {
		return nil, err
	}
	defer release()

	var created *models.TableSession
	var existing *models.TableSession
	err = s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sessions := s.Sessions.WithTx(tx)

		table, err := sessions.GetTable(ctx, req.TableID)
		if err != nil {
			return err
		}
		if table == nil {
			return apperr.NotFound(apperr.ReasonTableNotFound, "table not found")
		}

		open, err := sessions.FindOpenSession(ctx, table.ID)
		if err != nil {
			return err
		}
		if open != nil {
			existing = open
			return nil
		}

		now := s.now()
		sess := &models.TableSession{
			ID:             uuid.NewString(),
			OrganizationID: table.OrganizationID,
			BranchID:       table.BranchID,
			TableID:        table.ID,
			CustomerID:     req.CustomerID,
			CustomerName:   req.CustomerName,
			Status:         models.SessionPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := sessions.CreateSession(ctx, sess); err != nil {
			return err
		}
		token, err := s.Tokens.Issue(sess)
		if err != nil {
			return err
		}
		if err := sessions.SetToken(ctx, sess.ID, token); err != nil {
			return err
		}
		sess.Token = token
		created = sess
		return nil
	})
	if database.IsUniqueViolation(err) {
		// Lost the race on the open-session index: whoever won is now the open session.
		s.Logger.Warn("SESSION", fmt.Sprintf("Concurrent registration at table %s, joining the open session", req.TableID))
		existing, err = s.Sessions.FindOpenSession(ctx, req.TableID)
		if err == nil && existing == nil {
			err = apperr.Conflict(apperr.ReasonRegistrationBusy, "table registration in progress")
		}
	}
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return s.join(existing, req)
	}

	if s.Locks != nil && s.PendingTTL > 0 {
		if err := s.Locks.MarkPending(ctx, created.ID, s.PendingTTL); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to start approval countdown for session %s: %v", created.ID, err))
		}
	}
	s.Logger.LogSession("REGISTERED", created.ID, fmt.Sprintf("table=%s customer=%q awaiting approval", created.TableID, created.CustomerName))
	s.emit(events.SessionPending, created)
	return &Registration{Session: created, Token: created.Token}, nil
}

// join hands an already open session to a new device.
func (s *SessionService) join(open *models.TableSession, req RegisterRequest) (*Registration, error) {
	if open.Status == models.SessionPending {
		if open.CustomerID == "" || open.CustomerID != req.CustomerID {
			return nil, apperr.Conflict(apperr.ReasonSessionPendingExists, "table has a session awaiting approval")
		}
		return &Registration{Session: open, Token: open.Token, Joined: true}, nil
	}

	token := open.Token
	if req.CustomerID != open.CustomerID {
		guest := *open
		guest.CustomerID = req.CustomerID
		var err error
		if token, err = s.Tokens.Issue(&guest); err != nil {
			return nil, err
		}
	}
	s.Logger.LogSession("JOINED", open.ID, fmt.Sprintf("customer=%q joined table %s", req.CustomerID, open.TableID))
	return &Registration{Session: open, Token: token, Joined: true}, nil
}

// lockTable serialises registrations of one table across instances. Without
// Redis the open-session index alone keeps the table consistent.
func (s *SessionService) lockTable(ctx context.Context, tableID string) (func(), error) {
	if s.Locks == nil {
		return func() {}, nil
	}
	owner := utils.GenerateToken(16)
	for i := 0; i < lockAttempts; i++ {
		ok, err := s.Locks.LockTable(ctx, tableID, owner)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Table lock unavailable for %s: %v", tableID, err))
			return func() {}, nil
		}
		if ok {
			return func() {
				if err := s.Locks.UnlockTable(context.Background(), tableID, owner); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release table lock %s: %v", tableID, err))
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return nil, apperr.Conflict(apperr.ReasonRegistrationBusy, "table registration in progress")
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.TableSession, error) {
	sess, err := s.Sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NotFound(apperr.ReasonSessionNotFound, "session not found")
	}
	return sess, nil
}

// Approve activates a pending session and marks its table occupied.
func (s *SessionService) Approve(ctx context.Context, id, reviewer string) (*models.TableSession, error) {
	sess, err := s.transition(ctx, id, models.SessionActive, func(sess *models.TableSession, now time.Time) {
		sess.ReviewedBy = reviewer
		sess.ApprovedAt = now
	})
	if err != nil {
		return nil, err
	}
	s.clearPending(ctx, id)
	s.Logger.LogSession("APPROVED", id, fmt.Sprintf("by %s, table %s occupied", reviewer, sess.TableID))
	s.emit(events.SessionApproved, sess)
	return sess, nil
}

// Reject closes a pending session. The table stays free.
func (s *SessionService) Reject(ctx context.Context, id, reviewer string) (*models.TableSession, error) {
	sess, err := s.transition(ctx, id, models.SessionRejected, func(sess *models.TableSession, now time.Time) {
		sess.ReviewedBy = reviewer
		sess.EndedAt = now
	})
	if err != nil {
		return nil, err
	}
	s.clearPending(ctx, id)
	s.revoke(ctx, id)
	s.Logger.LogSession("REJECTED", id, fmt.Sprintf("by %s", reviewer))
	s.emit(events.SessionRejected, sess)
	return sess, nil
}

// End completes an active session and frees its table.
func (s *SessionService) End(ctx context.Context, id, staffID string) (*models.TableSession, error) {
	sess, err := s.transition(ctx, id, models.SessionCompleted, func(sess *models.TableSession, now time.Time) {
		sess.EndedAt = now
	})
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, id)
	s.Logger.LogSession("ENDED", id, fmt.Sprintf("by %s, table %s free", staffID, sess.TableID))
	s.emit(events.SessionEnded, sess)
	return sess, nil
}

// ExpirePending rejects a session still waiting for approval. Sessions that
// were reviewed in the meantime are left alone.
func (s *SessionService) ExpirePending(ctx context.Context, id string) error {
	_, err := s.Reject(ctx, id, ExpiredReviewer)
	if apperr.CodeOf(err) == apperr.CodeNotFound || apperr.ReasonOf(err) == apperr.ReasonInvalidTransition {
		return nil
	}
	return err
}

// ExpireStale rejects every session pending for longer than the approval
// window. It backs up the Redis expiry notifications, which are not durable.
func (s *SessionService) ExpireStale(ctx context.Context) (int, error) {
	if s.PendingTTL <= 0 {
		return 0, nil
	}
	stale, err := s.Sessions.ListPendingBefore(ctx, s.now().Add(-s.PendingTTL))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sess := range stale {
		if err := s.ExpirePending(ctx, sess.ID); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RunSweeper calls ExpireStale every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireStale(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.Logger.Error("SESSION", fmt.Sprintf("Pending session sweep failed: %v", err))
			} else if n > 0 {
				s.Logger.Info("SESSION", fmt.Sprintf("Expired %d pending sessions", n))
			}
		}
	}
}

// transition moves a session to `to` and keeps the table status in step.
func (s *SessionService) transition(ctx context.Context, id string, to models.SessionStatus, apply func(*models.TableSession, time.Time)) (*models.TableSession, error) {
	var sess *models.TableSession
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sessions := s.Sessions.WithTx(tx)

		current, err := sessions.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.NotFound(apperr.ReasonSessionNotFound, "session not found")
		}
		from := current.Status
		if !CanTransition(from, to) {
			return apperr.Conflict(apperr.ReasonInvalidTransition, fmt.Sprintf("session cannot move from %s to %s", from, to))
		}

		now := s.now()
		current.Status = to
		current.UpdatedAt = now
		apply(current, now)

		ok, err := sessions.Transition(ctx, current, from)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict(apperr.ReasonInvalidTransition, "session changed concurrently")
		}

		switch to {
		case models.SessionActive:
			err = sessions.SetTableStatus(ctx, current.TableID, models.TableOccupied)
		case models.SessionCompleted:
			err = sessions.SetTableStatus(ctx, current.TableID, models.TableFree)
		}
		if err != nil {
			return err
		}
		sess = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) clearPending(ctx context.Context, id string) {
	if s.Locks == nil {
		return
	}
	if err := s.Locks.ClearPending(ctx, id); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to clear pending key of session %s: %v", id, err))
	}
}

func (s *SessionService) revoke(ctx context.Context, id string) {
	if s.Revoker == nil {
		return
	}
	if err := s.Revoker.Revoke(ctx, id); err != nil {
		s.Logger.LogSecurity("REVOKE_FAILED", fmt.Sprintf("session %s: %v", id, err))
	}
}

// Summary is the payload of session events.
type Summary struct {
	ID           string               `json:"id"`
	TableID      string               `json:"table_id"`
	CustomerID   string               `json:"customer_id,omitempty"`
	CustomerName string               `json:"customer_name"`
	Status       models.SessionStatus `json:"status"`
}

func (s *SessionService) emit(t events.Type, sess *models.TableSession) {
	events.Emit(s.Events, t, sess.BranchID, sess.ID, Summary{
		ID:           sess.ID,
		TableID:      sess.TableID,
		CustomerID:   sess.CustomerID,
		CustomerName: sess.CustomerName,
		Status:       sess.Status,
	})
}
