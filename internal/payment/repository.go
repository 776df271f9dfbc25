// Package payment provides repositories for payment ledger persistence.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when a ledger record is not found.
var ErrRecordNotFound = errors.New("payment record not found")

// Repository defines methods for payment ledger persistence.
// MarkSucceeded and MarkFailed are compare-and-set: they transition a record
// to a terminal status at most once and report whether this call made the
// transition.
type Repository interface {
	Insert(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByOrderID(ctx context.Context, orderID string) (*Record, error)
	MarkSucceeded(ctx context.Context, id, confirmationID string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory ledger repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Record)}
}

// Insert adds a new ledger record, assigning an ID and timestamps if unset.
func (r *InMemoryRepository) Insert(ctx context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
	if record.Status == "" {
		record.Status = StatusPending
	}

	// Store a copy to prevent external mutation
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

// GetByID retrieves a ledger record by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

// GetByOrderID retrieves a ledger record by its redirect order ID.
func (r *InMemoryRepository) GetByOrderID(ctx context.Context, orderID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.OrderID != nil && *record.OrderID == orderID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

// MarkSucceeded transitions a record to succeeded. Returns false if the
// record already holds a terminal status.
func (r *InMemoryRepository) MarkSucceeded(ctx context.Context, id, confirmationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if record.Status != StatusPending {
		return false, nil
	}

	now := time.Now()
	record.Status = StatusSucceeded
	record.ConfirmationID = &confirmationID
	record.UpdatedAt = &now
	return true, nil
}

// MarkFailed transitions a record to failed. Returns false if the record
// already holds a terminal status.
func (r *InMemoryRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return false, ErrRecordNotFound
	}
	if record.Status != StatusPending {
		return false, nil
	}

	now := time.Now()
	record.Status = StatusFailed
	record.FailureReason = &reason
	record.UpdatedAt = &now
	return true, nil
}
