package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-ordering/internal/models"
)

// DB is the table session repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

// WithTx → a copy of the repository bound to tx
func (d *DB) WithTx(tx bun.Tx) *DB {
	return &DB{Bun: tx}
}

// ---------------- TABLES ----------------

// GetTable → fetch a dining table, nil when missing
func (d *DB) GetTable(ctx context.Context, id string) (*models.DiningTable, error) {
	var t models.DiningTable
	err := d.Bun.NewSelect().Model(&t).Where("dt.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTables → the tables of a branch ordered by label
func (d *DB) ListTables(ctx context.Context, branchID string) ([]models.DiningTable, error) {
	var tables []models.DiningTable
	err := d.Bun.NewSelect().
		Model(&tables).
		Where("dt.branch_id = ?", branchID).
		Order("dt.label ASC").
		Scan(ctx)
	return tables, err
}

// BranchOrganization → the organization owning a branch's tables, "" when the branch has none
func (d *DB) BranchOrganization(ctx context.Context, branchID string) (string, error) {
	var org string
	err := d.Bun.NewSelect().
		Model((*models.DiningTable)(nil)).
		Column("organization_id").
		Where("dt.branch_id = ?", branchID).
		Limit(1).
		Scan(ctx, &org)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return org, err
}

// SetTableStatus → mark a table free or occupied
func (d *DB) SetTableStatus(ctx context.Context, id string, status models.TableStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.DiningTable)(nil)).
		Set("status = ?", status).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ---------------- SESSIONS ----------------

// CreateSession → insert a session; fails with a unique violation when the table already has an open one
func (d *DB) CreateSession(ctx context.Context, s *models.TableSession) error {
	_, err := d.Bun.NewInsert().Model(s).Exec(ctx)
	return err
}

// GetSession → fetch a session by id, nil when missing
func (d *DB) GetSession(ctx context.Context, id string) (*models.TableSession, error) {
	var s models.TableSession
	err := d.Bun.NewSelect().Model(&s).Where("ts.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenSession → the pending or active session of a table, nil when the table is free
func (d *DB) FindOpenSession(ctx context.Context, tableID string) (*models.TableSession, error) {
	var s models.TableSession
	err := d.Bun.NewSelect().
		Model(&s).
		Where("ts.table_id = ?", tableID).
		Where("ts.status IN (?)", bun.In([]models.SessionStatus{models.SessionPending, models.SessionActive})).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetToken → store the bearer token issued for a session
func (d *DB) SetToken(ctx context.Context, id, token string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.TableSession)(nil)).
		Set("token = ?", token).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// Transition → move a session from one status to another.
// Returns false when the session was no longer in the expected status.
func (d *DB) Transition(ctx context.Context, s *models.TableSession, from models.SessionStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model(s).
		Column("status", "reviewed_by", "approved_at", "ended_at", "updated_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListPendingBefore → pending sessions created before cutoff, oldest first
func (d *DB) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.TableSession, error) {
	var sessions []models.TableSession
	err := d.Bun.NewSelect().
		Model(&sessions).
		Where("ts.status = ?", models.SessionPending).
		Where("ts.created_at < ?", cutoff).
		Order("ts.created_at ASC").
		Scan(ctx)
	return sessions, err
}
