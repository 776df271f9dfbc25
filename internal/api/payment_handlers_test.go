package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gatherly-app/gatherly/internal/middleware"
	"github.com/gatherly-app/gatherly/internal/payment"
	"github.com/gatherly-app/gatherly/internal/session"
)

type paymentHarness struct {
	handlers *PaymentHandlers
	sessions *session.Store
	server   *stubAppServer
	pending  *payment.InMemoryPendingStore
}

func newPaymentHarness() *paymentHarness {
	sessions := session.NewStore()
	server := &stubAppServer{}
	processor := &stubProcessor{}
	pending := payment.NewInMemoryPendingStore()
	ledger := payment.NewInMemoryRepository()

	intents := payment.NewIntentClient(server,
		"https://api.gatherly.test/checkout/return",
		"https://api.gatherly.test/checkout/return?marker=cancel")
	orch := payment.NewOrchestrator(sessions, intents, server, processor, pending, ledger, nil, nil)
	orch.SetRecheckDelay(0)
	listener := payment.NewResumptionListener(pending, orch, nil)

	return &paymentHarness{
		handlers: NewPaymentHandlers(orch, listener),
		sessions: sessions,
		server:   server,
		pending:  pending,
	}
}

// completeRun builds a run with all three input steps filled in.
func completeRun(t *testing.T, sessions *session.Store, basePrice int64) *session.Run {
	t.Helper()

	run := sessions.Begin()

	name := "Rooftop Party"
	category := "birthday"
	date := "2026-09-12"
	start := "18:00"
	end := "23:00"
	if _, err := sessions.Update(run.ID, session.StepSelection, session.StepUpdate{
		Selection: &session.SelectionUpdate{
			Name: &name, Category: &category, Date: &date, StartTime: &start, EndTime: &end,
		},
	}); err != nil {
		t.Fatalf("selection update failed: %v", err)
	}

	planID := "plan-standard"
	guests := 50
	photos := 500
	storage := 30
	if _, err := sessions.Update(run.ID, session.StepPlan, session.StepUpdate{
		Plan: &session.PlanUpdate{
			PlanID: &planID, GuestLimit: &guests, PhotoPool: &photos,
			StorageDays: &storage, BasePrice: &basePrice,
		},
	}); err != nil {
		t.Fatalf("plan update failed: %v", err)
	}

	colorValue := "#7C3AED"
	if _, err := sessions.Update(run.ID, session.StepBranding, session.StepUpdate{
		Branding: &session.BrandingUpdate{Color: &colorValue},
	}); err != nil {
		t.Fatalf("branding update failed: %v", err)
	}

	updated, err := sessions.Get(run.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	return updated
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.SetUserID(req.Context(), "user-1"))
}

func decodeOutcome(t *testing.T, w *httptest.ResponseRecorder) OutcomeResponse {
	t.Helper()

	var resp OutcomeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode outcome: %v, body: %s", err, w.Body.String())
	}
	return resp
}

func decodeResume(t *testing.T, w *httptest.ResponseRecorder) ResumeResponse {
	t.Helper()

	var resp ResumeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode resume response: %v, body: %s", err, w.Body.String())
	}
	return resp
}

func TestPay_Unauthenticated(t *testing.T) {
	h := newPaymentHarness()

	req := httptest.NewRequest(http.MethodPost, "/checkout/pay", strings.NewReader(`{"run_id":"x","rail":"card"}`))
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestPay_CardSucceeded(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 5000)

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"card"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	resp := decodeOutcome(t, w)
	if resp.State != payment.StateSucceeded {
		t.Fatalf("state = %s, want succeeded", resp.State)
	}
	if resp.ConfirmationID != "pi_test" {
		t.Errorf("confirmation_id = %s, want pi_test", resp.ConfirmationID)
	}
	if resp.Submission == nil || resp.Submission.ResourceID != "evt-1" {
		t.Errorf("submission = %+v, want resource evt-1", resp.Submission)
	}
}

func TestPay_MissingRunID(t *testing.T) {
	h := newPaymentHarness()

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"rail":"card"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPay_InvalidRail(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 5000)

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"bitcoin"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeInvalidRail {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeInvalidRail)
	}
}

func TestPay_InvalidMode(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 5000)

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"card","mode":"subscription"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPay_RunNotFound(t *testing.T) {
	h := newPaymentHarness()

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"nope","rail":"card"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeRunNotFound {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeRunNotFound)
	}
}

func TestPay_IncompleteSteps(t *testing.T) {
	h := newPaymentHarness()
	run := h.sessions.Begin()

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"card"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeValidation)
	}
}

func TestPay_RedirectAwaiting(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 3000)

	req := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"redirect-wallet"}`)
	w := httptest.NewRecorder()
	h.handlers.Pay(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	resp := decodeOutcome(t, w)
	if resp.State != payment.StateAwaitingRedirect {
		t.Fatalf("state = %s, want awaiting_external_redirect", resp.State)
	}
	if resp.OrderID != "ORD1" {
		t.Errorf("order_id = %s, want ORD1", resp.OrderID)
	}
	if resp.ApprovalURL == "" {
		t.Error("expected approval_url to be set")
	}
}

func TestReturn_CapturesPending(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 3000)

	payReq := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"redirect-wallet"}`)
	h.handlers.Pay(httptest.NewRecorder(), payReq)

	req := authedRequest(http.MethodGet, "/checkout/return?order_id=ORD1", "")
	w := httptest.NewRecorder()
	h.handlers.Return(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	resp := decodeResume(t, w)
	if !resp.Handled {
		t.Fatal("expected the callback to be handled")
	}
	if resp.Outcome == nil || resp.Outcome.State != payment.StateSucceeded {
		t.Fatalf("outcome = %+v, want succeeded", resp.Outcome)
	}
	if resp.Outcome.ConfirmationID != "ORD1" {
		t.Errorf("confirmation_id = %s, want ORD1", resp.Outcome.ConfirmationID)
	}
}

func TestReturn_CancelMarker(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 3000)

	payReq := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"redirect-wallet"}`)
	h.handlers.Pay(httptest.NewRecorder(), payReq)

	req := authedRequest(http.MethodGet, "/checkout/return?order_id=ORD1&marker=cancel", "")
	w := httptest.NewRecorder()
	h.handlers.Return(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	resp := decodeResume(t, w)
	if !resp.Handled {
		t.Fatal("expected the cancel callback to be handled")
	}
	if resp.Outcome == nil || resp.Outcome.State != payment.StateFailed {
		t.Fatalf("outcome = %+v, want failed", resp.Outcome)
	}
	if resp.Outcome.Kind != payment.KindProcessorRejected {
		t.Errorf("kind = %s, want %s", resp.Outcome.Kind, payment.KindProcessorRejected)
	}
}

func TestReturn_Unauthenticated(t *testing.T) {
	h := newPaymentHarness()

	req := httptest.NewRequest(http.MethodGet, "/checkout/return?order_id=ORD1", nil)
	w := httptest.NewRecorder()
	h.handlers.Return(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestResume_NothingPending(t *testing.T) {
	h := newPaymentHarness()

	req := authedRequest(http.MethodPost, "/checkout/resume", "")
	w := httptest.NewRecorder()
	h.handlers.Resume(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decodeResume(t, w)
	if resp.Handled {
		t.Error("expected handled=false when nothing is pending")
	}
	if resp.Outcome != nil {
		t.Errorf("expected no outcome, got %+v", resp.Outcome)
	}
}

func TestResume_CapturesThenSecondTriggerNoOp(t *testing.T) {
	h := newPaymentHarness()
	run := completeRun(t, h.sessions, 3000)

	payReq := authedRequest(http.MethodPost, "/checkout/pay", `{"run_id":"`+run.ID+`","rail":"redirect-wallet"}`)
	h.handlers.Pay(httptest.NewRecorder(), payReq)

	// Foreground resume captures the pending order.
	w := httptest.NewRecorder()
	h.handlers.Resume(w, authedRequest(http.MethodPost, "/checkout/resume", ""))
	resp := decodeResume(t, w)
	if !resp.Handled || resp.Outcome == nil || resp.Outcome.State != payment.StateSucceeded {
		t.Fatalf("first trigger: got %+v, want handled succeeded", resp)
	}

	// The late callback for the same order is a no-op.
	w = httptest.NewRecorder()
	h.handlers.Return(w, authedRequest(http.MethodGet, "/checkout/return?order_id=ORD1", ""))
	resp = decodeResume(t, w)
	if resp.Handled {
		t.Error("expected the late callback to be a no-op")
	}
}
