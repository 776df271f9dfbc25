// Package appserver provides the HTTP client for the Gatherly application
// server: discount validation, payment intent and redirect order creation,
// order capture, and event resource submission.
package appserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gatherly-app/gatherly/internal/session"
)

// PaymentMode distinguishes a fresh purchase from an upgrade of an existing
// event resource.
type PaymentMode string

// Payment modes.
const (
	ModePurchase PaymentMode = "purchase"
	ModeUpgrade  PaymentMode = "upgrade"
)

// Discount code kinds returned by the application server.
const (
	DiscountKindPercentage = "percentage"
	DiscountKindFixed      = "fixed"
)

// ErrUnauthorized is returned when the application server rejects the
// service credential.
var ErrUnauthorized = errors.New("application server rejected credentials")

// APIError is a non-2xx response from the application server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("application server error %d (%s): %s", e.Status, e.Code, e.Message)
}

// DiscountResult is the application server's answer to a code validation.
// For percentage codes Value is the percentage (e.g. 10 for 10%); for fixed
// codes Value is the amount off in cents.
type DiscountResult struct {
	Valid  bool   `json:"valid"`
	Kind   string `json:"kind"`
	Value  int64  `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// IntentRequest carries the pricing for a create-payment-intent call.
// For upgrades Amount is the absolute upgrade price and ResourceID is
// required; no discount applies.
type IntentRequest struct {
	PlanID         string       `json:"plan_id"`
	Amount         int64        `json:"amount"`
	DiscountAmount int64        `json:"discount_amount"`
	Mode           PaymentMode  `json:"mode"`
	ResourceID     string       `json:"resource_id,omitempty"`
	Rail           session.Rail `json:"rail"`
}

// IntentResponse is the server-created payment intent for in-process rails.
type IntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// OrderRequest carries the pricing plus redirect URLs for a
// create-redirect-order call.
type OrderRequest struct {
	IntentRequest
	ReturnURL string `json:"return_url"`
	CancelURL string `json:"cancel_url"`
}

// OrderResponse is the server-created redirect order. ApprovalURL is the
// external page the user must be sent to.
type OrderResponse struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// Redirect order capture statuses.
const (
	OrderStatusCompleted = "COMPLETED"
	OrderStatusDeclined  = "DECLINED"
	OrderStatusVoided    = "VOIDED"
)

// CaptureResponse is the result of finalizing a redirect order.
type CaptureResponse struct {
	OrderID   string `json:"order_id"`
	CaptureID string `json:"capture_id"`
	Status    string `json:"status"`
}

// SubmissionRequest is the full checkout payload for create-resource.
type SubmissionRequest struct {
	Selection      session.SelectionData `json:"selection"`
	Plan           session.PlanSelection `json:"plan"`
	Branding       session.BrandingData  `json:"branding"`
	DiscountCode   string                `json:"discount_code,omitempty"`
	ConfirmationID string                `json:"confirmation_id,omitempty"`
}

// UpgradeRequest carries the target resource and the new plan for
// upgrade-resource.
type UpgradeRequest struct {
	ResourceID     string                `json:"resource_id"`
	Plan           session.PlanSelection `json:"plan"`
	ConfirmationID string                `json:"confirmation_id"`
}

// SubmissionResponse is the result of a create or upgrade submission.
type SubmissionResponse struct {
	ResourceID string `json:"resource_id"`
}

// Client is an interface for application server operations to enable testing
// with mocks.
type Client interface {
	ValidateDiscountCode(ctx context.Context, code string) (*DiscountResult, error)
	CreatePaymentIntent(ctx context.Context, req *IntentRequest) (*IntentResponse, error)
	CreateRedirectOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
	CaptureRedirectOrder(ctx context.Context, orderID string) (*CaptureResponse, error)
	CreateResource(ctx context.Context, req *SubmissionRequest) (*SubmissionResponse, error)
	UpgradeResource(ctx context.Context, req *UpgradeRequest) (*SubmissionResponse, error)
}

// HTTPClient implements Client against the real application server.
type HTTPClient struct {
	http *resty.Client
}

// DefaultTimeout bounds every application server call.
const DefaultTimeout = 15 * time.Second

// NewHTTPClient creates a client for the application server at baseURL,
// authenticating with the given service token.
func NewHTTPClient(baseURL, serviceToken string) *HTTPClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetAuthToken(serviceToken).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{http: c}
}

// ValidateDiscountCode asks the server whether a code is redeemable.
func (c *HTTPClient) ValidateDiscountCode(ctx context.Context, code string) (*DiscountResult, error) {
	var result DiscountResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"code": code}).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/discount-codes/validate")
	if err != nil {
		return nil, fmt.Errorf("validate discount code: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePaymentIntent creates a server-side payment intent for an in-process
// rail.
func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req *IntentRequest) (*IntentResponse, error) {
	var result IntentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/payments/intents")
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRedirectOrder creates a server-side order for the redirect-wallet
// rail.
func (c *HTTPClient) CreateRedirectOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	var result OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/payments/orders")
	if err != nil {
		return nil, fmt.Errorf("create redirect order: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// CaptureRedirectOrder finalizes a redirect order after the user completed
// the external approval flow.
func (c *HTTPClient) CaptureRedirectOrder(ctx context.Context, orderID string) (*CaptureResponse, error) {
	var result CaptureResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/payments/orders/" + orderID + "/capture")
	if err != nil {
		return nil, fmt.Errorf("capture redirect order: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateResource submits the full checkout payload and creates the event
// resource.
func (c *HTTPClient) CreateResource(ctx context.Context, req *SubmissionRequest) (*SubmissionResponse, error) {
	var result SubmissionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/events")
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpgradeResource applies a paid plan upgrade to an existing event resource.
func (c *HTTPClient) UpgradeResource(ctx context.Context, req *UpgradeRequest) (*SubmissionResponse, error) {
	var result SubmissionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&APIError{}).
		Post("/v1/events/" + req.ResourceID + "/upgrade")
	if err != nil {
		return nil, fmt.Errorf("upgrade resource: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return &result, nil
}

// checkResponse converts non-2xx responses into typed errors.
func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr != nil {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		return apiErr
	}
	return &APIError{Status: resp.StatusCode(), Code: "unknown", Message: resp.Status()}
}
