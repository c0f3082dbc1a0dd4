package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionRejected  SessionStatus = "rejected"
	SessionCompleted SessionStatus = "completed"
)

// Open reports whether the status counts against the one-session-per-table rule.
func (s SessionStatus) Open() bool {
	return s == SessionPending || s == SessionActive
}

type TableSession struct {
	bun.BaseModel `bun:"table:table_sessions,alias:ts"`

	ID             string        `bun:"id,pk" json:"id"`
	OrganizationID string        `bun:"organization_id,notnull" json:"organization_id"`
	BranchID       string        `bun:"branch_id,notnull" json:"branch_id"`
	TableID        string        `bun:"table_id,notnull" json:"table_id"`
	CustomerID     string        `bun:"customer_id,nullzero" json:"customer_id,omitempty"`
	CustomerName   string        `bun:"customer_name" json:"customer_name"`
	Status         SessionStatus `bun:"status,notnull" json:"status"`
	Token          string        `bun:"token" json:"-"`
	ReviewedBy     string        `bun:"reviewed_by,nullzero" json:"reviewed_by,omitempty"`
	CreatedAt      time.Time     `bun:"created_at,notnull" json:"created_at"`
	ApprovedAt     time.Time     `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	EndedAt        time.Time     `bun:"ended_at,nullzero" json:"ended_at,omitempty"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

type TableStatus string

const (
	TableFree     TableStatus = "free"
	TableOccupied TableStatus = "occupied"
)

type DiningTable struct {
	bun.BaseModel `bun:"table:dining_tables,alias:dt"`

	ID             string      `bun:"id,pk" json:"id"`
	OrganizationID string      `bun:"organization_id,notnull" json:"organization_id"`
	BranchID       string      `bun:"branch_id,notnull" json:"branch_id"`
	Label          string      `bun:"label,notnull" json:"label"`
	Status         TableStatus `bun:"status,notnull" json:"status"`
}
