// Package payment provides durable pending-intent persistence for the
// external-redirect rail.
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
)

// PendingIntent is the one durable record for an in-flight external-redirect
// order. It is written before the approval URL is handed out and removed on
// terminal capture or cancellation, so a process kill mid-redirect always
// leaves recoverable state. At most one exists per user; starting a second
// redirect overwrites the first.
type PendingIntent struct {
	OrderID    string                `json:"order_id"`
	Rail       session.Rail          `json:"rail"`
	UserID     string                `json:"user_id"`
	RunID      string                `json:"run_id"`
	RecordID   string                `json:"record_id"` // ledger row for this attempt
	Mode       appserver.PaymentMode `json:"mode"`
	ResourceID string                `json:"resource_id,omitempty"` // upgrade mode only
	CreatedAt  time.Time             `json:"created_at"`
}

// PendingStore persists the pending intent across process lifetimes.
//
// Claim is the single-flight arbitration point for the two completion
// triggers: it atomically looks up the entry matching orderID, deletes it,
// and returns it. Exactly one caller can claim a given entry; every later
// caller sees (nil, false) and must treat the order as already handled.
// No separate lock is involved, so the guarantee holds even when the
// triggers run in different process lifetimes.
type PendingStore interface {
	// Put stores the pending intent, replacing any prior entry for the
	// same user.
	Put(ctx context.Context, intent *PendingIntent) error

	// GetByUser returns the user's pending intent, or (nil, nil) when there
	// is none.
	GetByUser(ctx context.Context, userID string) (*PendingIntent, error)

	// Claim atomically removes and returns the entry for orderID.
	// Returns (nil, false, nil) when no entry matches.
	Claim(ctx context.Context, orderID string) (*PendingIntent, bool, error)
}

// InMemoryPendingStore implements PendingStore with in-memory storage.
// Used in tests; production uses the Redis-backed store so the record
// survives process death.
type InMemoryPendingStore struct {
	mu      sync.Mutex
	byUser  map[string]*PendingIntent
	byOrder map[string]string // order ID -> user ID
}

// NewInMemoryPendingStore creates a new in-memory pending store.
func NewInMemoryPendingStore() *InMemoryPendingStore {
	return &InMemoryPendingStore{
		byUser:  make(map[string]*PendingIntent),
		byOrder: make(map[string]string),
	}
}

// Put stores the pending intent, replacing any prior entry for the user.
func (s *InMemoryPendingStore) Put(ctx context.Context, intent *PendingIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.byUser[intent.UserID]; ok {
		delete(s.byOrder, prior.OrderID)
	}

	copied := *intent
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.byUser[intent.UserID] = &copied
	s.byOrder[intent.OrderID] = intent.UserID
	return nil
}

// GetByUser returns the user's pending intent without claiming it.
func (s *InMemoryPendingStore) GetByUser(ctx context.Context, userID string) (*PendingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	copied := *intent
	return &copied, nil
}

// Claim atomically removes and returns the entry matching orderID.
func (s *InMemoryPendingStore) Claim(ctx context.Context, orderID string) (*PendingIntent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byOrder[orderID]
	if !ok {
		return nil, false, nil
	}
	intent := s.byUser[userID]
	if intent == nil || intent.OrderID != orderID {
		delete(s.byOrder, orderID)
		return nil, false, nil
	}

	delete(s.byOrder, orderID)
	delete(s.byUser, userID)

	copied := *intent
	return &copied, true, nil
}
