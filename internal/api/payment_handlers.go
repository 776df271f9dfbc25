package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/middleware"
	"github.com/gatherly-app/gatherly/internal/payment"
	"github.com/gatherly-app/gatherly/internal/session"
)

// PaymentHandlers holds dependencies for payment-related HTTP handlers.
type PaymentHandlers struct {
	orch     *payment.Orchestrator
	listener *payment.ResumptionListener
}

// NewPaymentHandlers creates a new PaymentHandlers instance.
func NewPaymentHandlers(orch *payment.Orchestrator, listener *payment.ResumptionListener) *PaymentHandlers {
	return &PaymentHandlers{orch: orch, listener: listener}
}

// PayRequest represents the request body for starting a payment attempt.
type PayRequest struct {
	RunID       string             `json:"run_id"`
	Rail        session.Rail       `json:"rail"`
	Mode        string             `json:"mode,omitempty"`        // "purchase" (default) or "upgrade"
	ResourceID  string             `json:"resource_id,omitempty"` // upgrade mode only
	PlatformPay *PlatformPayParams `json:"platform_pay,omitempty"`
}

// PlatformPayParams carries the tokenized wallet method from the pay sheet.
type PlatformPayParams struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// OutcomeResponse is the JSON shape of a terminal payment outcome. Exactly
// the fields for the reached state are set.
type OutcomeResponse struct {
	State          payment.State             `json:"state"`
	ConfirmationID string                    `json:"confirmation_id,omitempty"`
	Submission     *payment.SubmissionResult `json:"submission,omitempty"`
	Kind           payment.Kind              `json:"kind,omitempty"`
	Message        string                    `json:"message,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
	OrderID        string                    `json:"order_id,omitempty"`
	ApprovalURL    string                    `json:"approval_url,omitempty"`
}

func newOutcomeResponse(o payment.Outcome) OutcomeResponse {
	resp := OutcomeResponse{State: o.State()}
	switch v := o.(type) {
	case payment.Succeeded:
		resp.ConfirmationID = v.ConfirmationID
		submission := v.Submission
		resp.Submission = &submission
	case payment.Failed:
		resp.Kind = v.Kind
		resp.Message = v.Message
	case payment.RequiresAction:
		resp.Reason = v.Reason
	case payment.AwaitingExternalRedirect:
		resp.OrderID = v.OrderID
		resp.ApprovalURL = v.ApprovalURL
	}
	return resp
}

// ResumeResponse reports the result of a resumption trigger. Handled is
// false when there was nothing pending or the order was already captured by
// the other trigger.
type ResumeResponse struct {
	Handled bool             `json:"handled"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

// Pay runs a payment attempt for a checkout run to a terminal outcome.
// Validation and credential failures surface as HTTP errors; processor and
// server rejections come back as a 200 with a "failed" outcome the client
// can retry from.
// POST /checkout/pay
func (h *PaymentHandlers) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
		return
	}

	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.RunID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "run_id is required")
		return
	}
	if !session.ValidRail(req.Rail) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidRail)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidRail, "unknown payment rail")
		return
	}

	mode := appserver.ModePurchase
	if req.Mode == string(appserver.ModeUpgrade) {
		mode = appserver.ModeUpgrade
	} else if req.Mode != "" && req.Mode != string(appserver.ModePurchase) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "mode must be purchase or upgrade")
		return
	}

	payReq := payment.PayRequest{
		RunID:      req.RunID,
		UserID:     userID,
		Rail:       req.Rail,
		Mode:       mode,
		ResourceID: req.ResourceID,
	}
	if req.PlatformPay != nil {
		payReq.PlatformPay = payment.PlatformPayDetails{PaymentMethodID: req.PlatformPay.PaymentMethodID}
	}

	outcome, err := h.orch.Pay(ctx, payReq)
	if err != nil {
		h.writePayError(w, ctx, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newOutcomeResponse(outcome))
}

// Return handles the external-redirect callback URL. The order id and
// cancel marker come from the query string the wallet provider appended.
// GET /checkout/return
func (h *PaymentHandlers) Return(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
		return
	}

	orderID := r.URL.Query().Get("order_id")
	marker := r.URL.Query().Get("marker")
	if marker == "" {
		marker = payment.MarkerSuccess
	}

	outcome, err := h.listener.OnCallback(ctx, userID, orderID, marker)
	if err != nil {
		h.writePayError(w, ctx, err)
		return
	}

	h.writeResumeResult(w, r, outcome)
}

// Resume is the foreground resumption trigger: if the user has a pending
// redirect payment, capture it now. A 200 with handled=false means there
// was nothing to do.
// POST /checkout/resume
func (h *PaymentHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
		return
	}

	outcome, err := h.listener.OnForeground(ctx, userID)
	if err != nil {
		h.writePayError(w, ctx, err)
		return
	}

	h.writeResumeResult(w, r, outcome)
}

func (h *PaymentHandlers) writeResumeResult(w http.ResponseWriter, r *http.Request, outcome payment.Outcome) {
	if outcome == nil {
		writeJSON(w, r, http.StatusOK, ResumeResponse{Handled: false})
		return
	}
	resp := newOutcomeResponse(outcome)
	writeJSON(w, r, http.StatusOK, ResumeResponse{Handled: true, Outcome: &resp})
}

func (h *PaymentHandlers) writePayError(w http.ResponseWriter, ctx context.Context, err error) {
	if errors.Is(err, session.ErrRunNotFound) {
		ctx = middleware.SetErrorCode(ctx, ErrCodeRunNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeRunNotFound, "checkout run not found")
		return
	}

	var flowErr *payment.FlowError
	if errors.As(err, &flowErr) {
		WriteFlowError(w, ctx, flowErr)
		return
	}

	slog.ErrorContext(ctx, "payment attempt failed", "error", err)
	ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "something went wrong")
}
