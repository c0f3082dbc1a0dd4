// Package events carries domain notifications from the ordering core to
// observers such as kitchen displays and table boards. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"time"
)

type Type string

const (
	OrderNew           Type = "order:new"
	OrderCancelled     Type = "order:cancelled"
	OrderStatusChanged Type = "order:status"
	OrderItemChanged   Type = "order:item"
	SessionPending     Type = "session:pending"
	SessionApproved    Type = "session:approved"
	SessionRejected    Type = "session:rejected"
	SessionEnded       Type = "session:ended"
)

// Event is the envelope delivered to sinks. BranchID and SessionID route it to subscribers.
type Event struct {
	Type      Type            `json:"type"`
	BranchID  string          `json:"branch_id"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds an event, encoding payload as JSON.
func New(t Type, branchID, sessionID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type:      t,
		BranchID:  branchID,
		SessionID: sessionID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Sink receives events. Implementations may block; the Dispatcher shields callers from that.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Publisher is what domain services depend on. Emit must not block or fail the caller.
type Publisher interface {
	Emit(e Event)
}

// Emit builds an event and hands it to p. A payload that cannot be encoded is dropped.
func Emit(p Publisher, t Type, branchID, sessionID string, payload interface{}) {
	if p == nil {
		return
	}
	e, err := New(t, branchID, sessionID, payload)
	if err != nil {
		return
	}
	p.Emit(e)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Emit(Event) {}
