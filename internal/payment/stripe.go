// Package payment provides Stripe integration for in-process rail
// confirmation.
package payment

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/paymentmethod"
)

// ConfirmStatus is the processor's view of a confirmation attempt.
type ConfirmStatus string

// Confirmation statuses, mirroring the processor's payment intent states.
const (
	ConfirmSucceeded             ConfirmStatus = "succeeded"
	ConfirmProcessing            ConfirmStatus = "processing"
	ConfirmRequiresAction        ConfirmStatus = "requires_action"
	ConfirmRequiresPaymentMethod ConfirmStatus = "requires_payment_method"
	ConfirmCanceled              ConfirmStatus = "canceled"
)

// Confirmation is the result of confirming or re-polling a payment intent.
type Confirmation struct {
	IntentID string
	Status   ConfirmStatus
}

// PlatformPayDetails carries the tokenized wallet payment method produced by
// the platform pay sheet.
type PlatformPayDetails struct {
	PaymentMethodID string
}

// ProcessorClient is an interface for processor SDK operations to enable
// testing with mocks.
type ProcessorClient interface {
	// ConfirmPayment confirms an intent in-process with the given payment
	// method type (card or cash voucher).
	ConfirmPayment(ctx context.Context, clientSecret, methodType string) (*Confirmation, error)

	// ConfirmPlatformPay confirms an intent with platform wallet method
	// details.
	ConfirmPlatformPay(ctx context.Context, clientSecret string, details PlatformPayDetails) (*Confirmation, error)

	// RetrieveIntent re-reads the intent's current status. Used for the
	// single bounded re-poll after a "processing" confirmation.
	RetrieveIntent(ctx context.Context, clientSecret string) (*Confirmation, error)

	// PlatformPaySupported reports whether the platform wallet is usable.
	PlatformPaySupported(ctx context.Context) bool
}

// StripeClient implements ProcessorClient using the real Stripe SDK.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// ConfirmPayment confirms the intent behind clientSecret with a payment
// method of the given type.
func (c *StripeClient) ConfirmPayment(ctx context.Context, clientSecret, methodType string) (*Confirmation, error) {
	params := &stripe.PaymentIntentConfirmParams{
		Params: stripe.Params{Context: ctx},
		PaymentMethodData: &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String(methodType),
		},
	}

	intent, err := paymentintent.Confirm(IntentIDFromClientSecret(clientSecret), params)
	if err != nil {
		return nil, err
	}
	return confirmationFromIntent(intent), nil
}

// ConfirmPlatformPay confirms the intent with an already-tokenized wallet
// payment method.
func (c *StripeClient) ConfirmPlatformPay(ctx context.Context, clientSecret string, details PlatformPayDetails) (*Confirmation, error) {
	params := &stripe.PaymentIntentConfirmParams{
		Params:        stripe.Params{Context: ctx},
		PaymentMethod: stripe.String(details.PaymentMethodID),
	}

	intent, err := paymentintent.Confirm(IntentIDFromClientSecret(clientSecret), params)
	if err != nil {
		return nil, err
	}
	return confirmationFromIntent(intent), nil
}

// RetrieveIntent fetches the intent's current status.
func (c *StripeClient) RetrieveIntent(ctx context.Context, clientSecret string) (*Confirmation, error) {
	params := &stripe.PaymentIntentParams{
		Params:       stripe.Params{Context: ctx},
		ClientSecret: stripe.String(clientSecret),
	}

	intent, err := paymentintent.Get(IntentIDFromClientSecret(clientSecret), params)
	if err != nil {
		return nil, err
	}
	return confirmationFromIntent(intent), nil
}

// PlatformPaySupported checks whether a wallet payment method can be
// created for this account.
func (c *StripeClient) PlatformPaySupported(ctx context.Context) bool {
	params := &stripe.PaymentMethodListParams{
		ListParams: stripe.ListParams{Context: ctx, Limit: stripe.Int64(1)},
		Type:       stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	iter := paymentmethod.List(params)
	return iter.Err() == nil
}

// IntentIDFromClientSecret derives the payment intent ID from its client
// secret ("pi_..._secret_..." format).
func IntentIDFromClientSecret(clientSecret string) string {
	if idx := strings.Index(clientSecret, "_secret"); idx > 0 {
		return clientSecret[:idx]
	}
	return clientSecret
}

// confirmationFromIntent maps a Stripe intent onto the closed confirmation
// status set. Unknown statuses are treated as requires_payment_method so
// they surface to the user instead of silently failing.
func confirmationFromIntent(intent *stripe.PaymentIntent) *Confirmation {
	var status ConfirmStatus
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = ConfirmSucceeded
	case stripe.PaymentIntentStatusProcessing:
		status = ConfirmProcessing
	case stripe.PaymentIntentStatusRequiresAction:
		status = ConfirmRequiresAction
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		status = ConfirmRequiresPaymentMethod
	case stripe.PaymentIntentStatusCanceled:
		status = ConfirmCanceled
	default:
		status = ConfirmRequiresPaymentMethod
	}
	return &Confirmation{IntentID: intent.ID, Status: status}
}
