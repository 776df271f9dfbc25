// Package payment provides the checkout payment state machine outcomes.
package payment

// State names the positions of the payment state machine. Transient states
// exist only inside a single Pay call; the terminal states are carried by
// the Outcome variants.
type State string

// Machine states.
const (
	StateIdle             State = "idle"
	StateIntentRequested  State = "intent_requested"
	StateConfirming       State = "confirming"
	StateSucceeded        State = "succeeded"
	StateFailed           State = "failed"
	StateRequiresAction   State = "requires_action"
	StateAwaitingRedirect State = "awaiting_external_redirect"
)

// SubmissionResult is the outcome of the create or upgrade call that follows
// a successful payment. Failed submissions carry a message; the payment
// itself is never rolled back.
type SubmissionResult struct {
	ResourceID string `json:"resource_id,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Outcome is the closed set of terminal results a payment attempt can reach.
// Exactly four variants implement it; call sites switch exhaustively.
type Outcome interface {
	State() State
	sealed()
}

// Succeeded means the payment completed. Submission reports whether the
// follow-up create or upgrade call also went through.
type Succeeded struct {
	ConfirmationID string           `json:"confirmation_id"`
	Submission     SubmissionResult `json:"submission"`
}

// Failed means the attempt reached a terminal failure. Kind and Message
// follow the flow error taxonomy.
type Failed struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// RequiresAction means the processor needs more from the user (additional
// authentication or a different payment method). Surfaced without scheduling
// a retry.
type RequiresAction struct {
	Reason string `json:"reason,omitempty"`
}

// AwaitingExternalRedirect means a redirect order was created and persisted;
// the caller must open ApprovalURL externally. The machine suspends until a
// resume or callback trigger captures the order, or the user cancels.
type AwaitingExternalRedirect struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

func (Succeeded) State() State                { return StateSucceeded }
func (Failed) State() State                   { return StateFailed }
func (RequiresAction) State() State           { return StateRequiresAction }
func (AwaitingExternalRedirect) State() State { return StateAwaitingRedirect }

func (Succeeded) sealed()                {}
func (Failed) sealed()                   {}
func (RequiresAction) sealed()           {}
func (AwaitingExternalRedirect) sealed() {}
