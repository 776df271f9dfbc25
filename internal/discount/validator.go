// Package discount validates discount codes against the application server
// and turns them into absolute amounts off.
package discount

import (
	"context"
	"log/slog"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
)

// ReasonUnavailable is the user-facing reason when validation could not be
// completed (network or server failure).
const ReasonUnavailable = "could not verify code, try again"

// ReasonInvalid is the fallback reason when the server rejects a code
// without giving one.
const ReasonInvalid = "code is not valid"

// Validator resolves a code into a DiscountApplication. It is stateless and
// independent of the payment rail.
type Validator struct {
	client appserver.Client
}

// NewValidator creates a Validator backed by the given application server
// client.
func NewValidator(client appserver.Client) *Validator {
	return &Validator{client: client}
}

// Apply validates a code against the application server and computes its
// absolute amount off. Percentage codes are computed against the plan's
// final price at call time; fixed codes return their face value. An invalid
// code or a network failure yields a zero-amount, invalid application with a
// human-readable reason, never an error.
func (v *Validator) Apply(ctx context.Context, code string, plan session.PlanSelection) session.DiscountApplication {
	result, err := v.client.ValidateDiscountCode(ctx, code)
	if err != nil {
		slog.WarnContext(ctx, "discount code validation failed", "code", code, "error", err)
		return session.DiscountApplication{Code: code, Reason: ReasonUnavailable}
	}

	if !result.Valid {
		reason := result.Reason
		if reason == "" {
			reason = ReasonInvalid
		}
		return session.DiscountApplication{Code: code, Reason: reason}
	}

	var amount int64
	switch result.Kind {
	case appserver.DiscountKindPercentage:
		amount = plan.FinalPrice * result.Value / 100
	case appserver.DiscountKindFixed:
		amount = result.Value
	default:
		slog.WarnContext(ctx, "unknown discount kind", "code", code, "kind", result.Kind)
		return session.DiscountApplication{Code: code, Reason: ReasonInvalid}
	}

	if amount < 0 {
		amount = 0
	}
	// A discount never exceeds what the plan costs.
	if amount > plan.FinalPrice {
		amount = plan.FinalPrice
	}

	return session.DiscountApplication{Code: code, Amount: amount, Valid: true}
}
