package payment

import (
	"context"
	"sync"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
)

// mockAppServer implements appserver.Client with per-method hooks and call
// counters.
type mockAppServer struct {
	mu sync.Mutex

	validateFunc func(ctx context.Context, code string) (*appserver.DiscountResult, error)
	intentFunc   func(ctx context.Context, req *appserver.IntentRequest) (*appserver.IntentResponse, error)
	orderFunc    func(ctx context.Context, req *appserver.OrderRequest) (*appserver.OrderResponse, error)
	captureFunc  func(ctx context.Context, orderID string) (*appserver.CaptureResponse, error)
	createFunc   func(ctx context.Context, req *appserver.SubmissionRequest) (*appserver.SubmissionResponse, error)
	upgradeFunc  func(ctx context.Context, req *appserver.UpgradeRequest) (*appserver.SubmissionResponse, error)

	intentCalls  int
	orderCalls   int
	captureCalls int
	createCalls  int
	upgradeCalls int

	lastIntent  *appserver.IntentRequest
	lastOrder   *appserver.OrderRequest
	lastCreate  *appserver.SubmissionRequest
	lastUpgrade *appserver.UpgradeRequest
}

func (m *mockAppServer) ValidateDiscountCode(ctx context.Context, code string) (*appserver.DiscountResult, error) {
	if m.validateFunc != nil {
		return m.validateFunc(ctx, code)
	}
	return &appserver.DiscountResult{Valid: false}, nil
}

func (m *mockAppServer) CreatePaymentIntent(ctx context.Context, req *appserver.IntentRequest) (*appserver.IntentResponse, error) {
	m.mu.Lock()
	m.intentCalls++
	m.lastIntent = req
	m.mu.Unlock()
	if m.intentFunc != nil {
		return m.intentFunc(ctx, req)
	}
	return &appserver.IntentResponse{ClientSecret: "pi_test_secret_abc"}, nil
}

func (m *mockAppServer) CreateRedirectOrder(ctx context.Context, req *appserver.OrderRequest) (*appserver.OrderResponse, error) {
	m.mu.Lock()
	m.orderCalls++
	m.lastOrder = req
	m.mu.Unlock()
	if m.orderFunc != nil {
		return m.orderFunc(ctx, req)
	}
	return &appserver.OrderResponse{OrderID: "ORD1", ApprovalURL: "https://wallet.example/approve/ORD1"}, nil
}

func (m *mockAppServer) CaptureRedirectOrder(ctx context.Context, orderID string) (*appserver.CaptureResponse, error) {
	m.mu.Lock()
	m.captureCalls++
	m.mu.Unlock()
	if m.captureFunc != nil {
		return m.captureFunc(ctx, orderID)
	}
	return &appserver.CaptureResponse{OrderID: orderID, CaptureID: "CAP-" + orderID, Status: appserver.OrderStatusCompleted}, nil
}

func (m *mockAppServer) CreateResource(ctx context.Context, req *appserver.SubmissionRequest) (*appserver.SubmissionResponse, error) {
	m.mu.Lock()
	m.createCalls++
	m.lastCreate = req
	m.mu.Unlock()
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return &appserver.SubmissionResponse{ResourceID: "evt-1"}, nil
}

func (m *mockAppServer) UpgradeResource(ctx context.Context, req *appserver.UpgradeRequest) (*appserver.SubmissionResponse, error) {
	m.mu.Lock()
	m.upgradeCalls++
	m.lastUpgrade = req
	m.mu.Unlock()
	if m.upgradeFunc != nil {
		return m.upgradeFunc(ctx, req)
	}
	return &appserver.SubmissionResponse{ResourceID: req.ResourceID}, nil
}

// mockProcessor implements ProcessorClient.
type mockProcessor struct {
	confirmFunc  func(ctx context.Context, clientSecret, methodType string) (*Confirmation, error)
	platformFunc func(ctx context.Context, clientSecret string, details PlatformPayDetails) (*Confirmation, error)
	retrieveFunc func(ctx context.Context, clientSecret string) (*Confirmation, error)
	supported    bool

	confirmCalls  int
	retrieveCalls int
}

func (m *mockProcessor) ConfirmPayment(ctx context.Context, clientSecret, methodType string) (*Confirmation, error) {
	m.confirmCalls++
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, clientSecret, methodType)
	}
	return &Confirmation{IntentID: "pi_test", Status: ConfirmSucceeded}, nil
}

func (m *mockProcessor) ConfirmPlatformPay(ctx context.Context, clientSecret string, details PlatformPayDetails) (*Confirmation, error) {
	m.confirmCalls++
	if m.platformFunc != nil {
		return m.platformFunc(ctx, clientSecret, details)
	}
	return &Confirmation{IntentID: "pi_test", Status: ConfirmSucceeded}, nil
}

func (m *mockProcessor) RetrieveIntent(ctx context.Context, clientSecret string) (*Confirmation, error) {
	m.retrieveCalls++
	if m.retrieveFunc != nil {
		return m.retrieveFunc(ctx, clientSecret)
	}
	return &Confirmation{IntentID: "pi_test", Status: ConfirmSucceeded}, nil
}

func (m *mockProcessor) PlatformPaySupported(ctx context.Context) bool {
	return m.supported
}

// testHarness wires an orchestrator over in-memory stores and mocks.
type testHarness struct {
	sessions  *session.Store
	server    *mockAppServer
	processor *mockProcessor
	pending   *InMemoryPendingStore
	ledger    *InMemoryRepository
	orch      *Orchestrator
	listener  *ResumptionListener
}

func newTestHarness() *testHarness {
	sessions := session.NewStore()
	server := &mockAppServer{}
	processor := &mockProcessor{supported: true}
	pending := NewInMemoryPendingStore()
	ledger := NewInMemoryRepository()

	intents := NewIntentClient(server,
		"https://api.gatherly.test/checkout/return",
		"https://api.gatherly.test/checkout/return?marker=cancel")
	orch := NewOrchestrator(sessions, intents, server, processor, pending, ledger, nil, nil)
	orch.SetRecheckDelay(0)

	return &testHarness{
		sessions:  sessions,
		server:    server,
		processor: processor,
		pending:   pending,
		ledger:    ledger,
		orch:      orch,
		listener:  NewResumptionListener(pending, orch, nil),
	}
}

// newCompleteRun creates a run with valid selection, plan and branding
// steps and the given base price.
func (h *testHarness) newCompleteRun(basePrice int64) *session.Run {
	run := h.sessions.Begin()

	name := "Rooftop Party"
	category := "birthday"
	date := "2026-09-12"
	start := "18:00"
	end := "23:00"
	if _, err := h.sessions.Update(run.ID, session.StepSelection, session.StepUpdate{Selection: &session.SelectionUpdate{
		Name: &name, Category: &category, Date: &date, StartTime: &start, EndTime: &end,
	}}); err != nil {
		panic(err)
	}

	planID := "plan-standard"
	guests := 50
	photos := 500
	days := 30
	if _, err := h.sessions.Update(run.ID, session.StepPlan, session.StepUpdate{Plan: &session.PlanUpdate{
		PlanID: &planID, GuestLimit: &guests, PhotoPool: &photos, StorageDays: &days, BasePrice: &basePrice,
	}}); err != nil {
		panic(err)
	}

	color := "#7c3aed"
	if _, err := h.sessions.Update(run.ID, session.StepBranding, session.StepUpdate{Branding: &session.BrandingUpdate{
		Color: &color,
	}}); err != nil {
		panic(err)
	}

	updated, err := h.sessions.Get(run.ID)
	if err != nil {
		panic(err)
	}
	return updated
}
