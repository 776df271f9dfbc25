// Package payment provides the checkout payment orchestration: rail
// selection, intent confirmation, external-redirect capture, and the
// at-most-once submission that follows a successful payment.
package payment

import (
	"errors"
	"fmt"
)

// Kind classifies a payment flow failure. Every network-origin error is
// converted into one of these at the orchestrator boundary; nothing below
// the taxonomy leaks to callers.
type Kind string

// Failure kinds.
const (
	// KindValidation means step data was incomplete. These are caught
	// before any network call is made.
	KindValidation Kind = "validation_error"

	// KindAuthRequired means the credential is missing or expired. Fatal to
	// the current attempt; the user must log in again.
	KindAuthRequired Kind = "auth_required"

	// KindProcessorRejected means the processor confirmation returned a
	// failure or cancellation status. Recoverable; the user may retry with
	// the same or a different rail.
	KindProcessorRejected Kind = "processor_rejected"

	// KindServerRejected means intent or order creation failed server-side.
	// Recoverable.
	KindServerRejected Kind = "server_rejected"

	// KindCaptureFailed means a redirect capture did not report completion.
	// Recoverable, though the specific reason may be lost.
	KindCaptureFailed Kind = "capture_failed"

	// KindSubmissionFailed means the payment succeeded but the create or
	// upgrade call failed. Surfaced distinctly: the payment side effect is
	// irreversible, so this needs manual follow-up rather than a payment
	// retry.
	KindSubmissionFailed Kind = "submission_failed_post_payment"
)

// FlowError is a classified payment flow failure with a user-facing message.
type FlowError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *FlowError) Unwrap() error {
	return e.cause
}

// NewFlowError creates a FlowError with the given kind, message and
// optional cause.
func NewFlowError(kind Kind, message string, cause error) *FlowError {
	return &FlowError{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the failure kind of err, or an empty Kind if err is not a
// FlowError.
func KindOf(err error) Kind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
