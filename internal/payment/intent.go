// Package payment provides server-side payment intent and order creation.
package payment

import (
	"context"
	"errors"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
)

// IntentResult is the server's answer to an intent or order request.
// Exactly one of ClientSecret (in-process rails) or OrderID (redirect rail)
// is set; ApprovalURL accompanies OrderID.
type IntentResult struct {
	ClientSecret string
	OrderID      string
	ApprovalURL  string
}

// IntentClient requests server-side payment intents and redirect orders for
// a checkout run.
type IntentClient struct {
	server    appserver.Client
	returnURL string
	cancelURL string
}

// NewIntentClient creates an IntentClient. returnURL and cancelURL are the
// application-owned callback URLs handed to the redirect rail.
func NewIntentClient(server appserver.Client, returnURL, cancelURL string) *IntentClient {
	return &IntentClient{server: server, returnURL: returnURL, cancelURL: cancelURL}
}

// RequestIntent creates a payment intent (in-process rails) or a redirect
// order (redirect-wallet rail) for the run. For fresh purchases the server
// charges the plan's final price minus the discount; for upgrades it charges
// the absolute upgrade price against the existing resource, with no
// discount. Failures are classified per the flow error taxonomy.
func (c *IntentClient) RequestIntent(ctx context.Context, run *session.Run, mode appserver.PaymentMode, rail session.Rail, resourceID string) (*IntentResult, error) {
	if run.Plan.PlanID == "" || run.Plan.FinalPrice <= 0 {
		return nil, NewFlowError(KindServerRejected, "plan pricing is missing", nil)
	}
	if mode == appserver.ModeUpgrade && resourceID == "" {
		return nil, NewFlowError(KindServerRejected, "upgrade requires an existing event", nil)
	}

	req := appserver.IntentRequest{
		PlanID: run.Plan.PlanID,
		Amount: run.Plan.FinalPrice,
		Mode:   mode,
		Rail:   rail,
	}
	switch mode {
	case appserver.ModeUpgrade:
		req.ResourceID = resourceID
	default:
		if run.Discount.Valid {
			req.DiscountAmount = run.Discount.Amount
		}
	}

	if rail == session.RailRedirectWallet {
		order, err := c.server.CreateRedirectOrder(ctx, &appserver.OrderRequest{
			IntentRequest: req,
			ReturnURL:     c.returnURL,
			CancelURL:     c.cancelURL,
		})
		if err != nil {
			return nil, classifyServerError(err, "could not start the wallet payment")
		}
		return &IntentResult{OrderID: order.OrderID, ApprovalURL: order.ApprovalURL}, nil
	}

	intent, err := c.server.CreatePaymentIntent(ctx, &req)
	if err != nil {
		return nil, classifyServerError(err, "could not start the payment")
	}
	return &IntentResult{ClientSecret: intent.ClientSecret}, nil
}

// classifyServerError converts application-server failures into flow errors.
func classifyServerError(err error, message string) *FlowError {
	if errors.Is(err, appserver.ErrUnauthorized) {
		return NewFlowError(KindAuthRequired, "please log in again", err)
	}
	var apiErr *appserver.APIError
	if errors.As(err, &apiErr) {
		msg := message
		if apiErr.Message != "" {
			msg = apiErr.Message
		}
		return NewFlowError(KindServerRejected, msg, err)
	}
	return NewFlowError(KindServerRejected, message, err)
}
