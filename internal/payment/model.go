// Package payment provides models for payment ledger records.
package payment

import (
	"time"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
)

// Ledger record statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is the ledger row for one payment attempt. One row per checkout
// run and attempt; terminal status transitions happen exactly once.
type Record struct {
	ID             string                `json:"id"`
	RunID          string                `json:"run_id"`
	UserID         string                `json:"user_id"`
	Rail           session.Rail          `json:"rail"`
	Mode           appserver.PaymentMode `json:"mode"`
	Amount         int64                 `json:"amount"`          // cents charged
	DiscountAmount int64                 `json:"discount_amount"` // cents off, purchase mode only
	Status         string                `json:"status"`          // pending, succeeded, failed
	ConfirmationID *string               `json:"confirmation_id,omitempty"`
	OrderID        *string               `json:"order_id,omitempty"` // redirect rail only
	FailureReason  *string               `json:"failure_reason,omitempty"`
	CreatedAt      *time.Time            `json:"created_at,omitempty"`
	UpdatedAt      *time.Time            `json:"updated_at,omitempty"`
}
