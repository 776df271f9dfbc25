package api

import (
	"context"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/payment"
)

// stubAppServer is a hand-rolled appserver.Client double. Zero-value fields
// fall back to sensible success defaults; set a func field to override one
// call.
type stubAppServer struct {
	validateFunc func(ctx context.Context, code string) (*appserver.DiscountResult, error)
	intentFunc   func(ctx context.Context, req *appserver.IntentRequest) (*appserver.IntentResponse, error)
	orderFunc    func(ctx context.Context, req *appserver.OrderRequest) (*appserver.OrderResponse, error)
	captureFunc  func(ctx context.Context, orderID string) (*appserver.CaptureResponse, error)
	createFunc   func(ctx context.Context, req *appserver.SubmissionRequest) (*appserver.SubmissionResponse, error)
	upgradeFunc  func(ctx context.Context, req *appserver.UpgradeRequest) (*appserver.SubmissionResponse, error)
}

func (s *stubAppServer) ValidateDiscountCode(ctx context.Context, code string) (*appserver.DiscountResult, error) {
	if s.validateFunc != nil {
		return s.validateFunc(ctx, code)
	}
	return &appserver.DiscountResult{Valid: true, Kind: appserver.DiscountKindPercentage, Value: 10}, nil
}

func (s *stubAppServer) CreatePaymentIntent(ctx context.Context, req *appserver.IntentRequest) (*appserver.IntentResponse, error) {
	if s.intentFunc != nil {
		return s.intentFunc(ctx, req)
	}
	return &appserver.IntentResponse{ClientSecret: "pi_test_secret_abc"}, nil
}

func (s *stubAppServer) CreateRedirectOrder(ctx context.Context, req *appserver.OrderRequest) (*appserver.OrderResponse, error) {
	if s.orderFunc != nil {
		return s.orderFunc(ctx, req)
	}
	return &appserver.OrderResponse{OrderID: "ORD1", ApprovalURL: "https://wallet.example.com/approve/ORD1"}, nil
}

func (s *stubAppServer) CaptureRedirectOrder(ctx context.Context, orderID string) (*appserver.CaptureResponse, error) {
	if s.captureFunc != nil {
		return s.captureFunc(ctx, orderID)
	}
	return &appserver.CaptureResponse{OrderID: orderID, CaptureID: "CAP-" + orderID, Status: appserver.OrderStatusCompleted}, nil
}

func (s *stubAppServer) CreateResource(ctx context.Context, req *appserver.SubmissionRequest) (*appserver.SubmissionResponse, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, req)
	}
	return &appserver.SubmissionResponse{ResourceID: "evt-1"}, nil
}

func (s *stubAppServer) UpgradeResource(ctx context.Context, req *appserver.UpgradeRequest) (*appserver.SubmissionResponse, error) {
	if s.upgradeFunc != nil {
		return s.upgradeFunc(ctx, req)
	}
	return &appserver.SubmissionResponse{ResourceID: req.ResourceID}, nil
}

// stubProcessor is a payment.ProcessorClient double that always confirms.
type stubProcessor struct {
	confirmFunc func(ctx context.Context, clientSecret, methodType string) (*payment.Confirmation, error)
}

func (s *stubProcessor) ConfirmPayment(ctx context.Context, clientSecret, methodType string) (*payment.Confirmation, error) {
	if s.confirmFunc != nil {
		return s.confirmFunc(ctx, clientSecret, methodType)
	}
	return &payment.Confirmation{IntentID: "pi_test", Status: payment.ConfirmSucceeded}, nil
}

func (s *stubProcessor) ConfirmPlatformPay(ctx context.Context, clientSecret string, details payment.PlatformPayDetails) (*payment.Confirmation, error) {
	return &payment.Confirmation{IntentID: "pi_test", Status: payment.ConfirmSucceeded}, nil
}

func (s *stubProcessor) RetrieveIntent(ctx context.Context, clientSecret string) (*payment.Confirmation, error) {
	return &payment.Confirmation{IntentID: "pi_test", Status: payment.ConfirmSucceeded}, nil
}

func (s *stubProcessor) PlatformPaySupported(ctx context.Context) bool { return true }
