// Package payment provides the payment orchestration state machine.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gatherly-app/gatherly/internal/appserver"
	"github.com/gatherly-app/gatherly/internal/session"
	"github.com/gatherly-app/gatherly/internal/tracing"
)

// Payment method types passed to the processor per rail.
const (
	methodTypeCard = "card"
	methodTypeCash = "oxxo"
)

// DefaultRecheckDelay is the fixed wait before the single re-poll of an
// intent that confirmed as "processing".
const DefaultRecheckDelay = 3 * time.Second

// PayRequest starts a payment attempt for a checkout run.
type PayRequest struct {
	RunID       string
	UserID      string
	Rail        session.Rail
	Mode        appserver.PaymentMode
	ResourceID  string             // upgrade mode only
	PlatformPay PlatformPayDetails // platform-pay rail only
}

// Orchestrator drives a payment attempt from rail selection to a terminal
// outcome and triggers the create/upgrade submission at most once per
// successful payment. All network-origin failures are classified here; no
// raw error crosses into the session store.
type Orchestrator struct {
	sessions     *session.Store
	intents      *IntentClient
	server       appserver.Client
	processor    ProcessorClient
	pending      PendingStore
	ledger       Repository
	metrics      *Metrics
	logger       *slog.Logger
	recheckDelay time.Duration
}

// NewOrchestrator creates an Orchestrator. metrics may be nil when metrics
// are not collected (tests).
func NewOrchestrator(
	sessions *session.Store,
	intents *IntentClient,
	server appserver.Client,
	processor ProcessorClient,
	pending PendingStore,
	ledger Repository,
	metrics *Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions:     sessions,
		intents:      intents,
		server:       server,
		processor:    processor,
		pending:      pending,
		ledger:       ledger,
		metrics:      metrics,
		logger:       logger,
		recheckDelay: DefaultRecheckDelay,
	}
}

// SetRecheckDelay overrides the processing re-poll delay. Used by tests.
func (o *Orchestrator) SetRecheckDelay(d time.Duration) {
	o.recheckDelay = d
}

// Pay runs a payment attempt to a terminal outcome. For the redirect rail
// the terminal outcome is AwaitingExternalRedirect: the pending intent is
// persisted before the approval URL is returned, and the machine suspends
// until Capture or CancelRedirect fires.
//
// Validation failures (missing run, incomplete steps, unknown rail) return a
// FlowError of kind KindValidation; every other failure is reported through
// the Failed outcome variant.
func (o *Orchestrator) Pay(ctx context.Context, req PayRequest) (Outcome, error) {
	ctx, endSpan := tracing.StartFlowSpan(ctx, "payment.pay", string(req.Rail))
	var spanErr error
	defer func() { endSpan(spanErr) }()

	run, err := o.sessions.Get(req.RunID)
	if err != nil {
		spanErr = err
		return nil, NewFlowError(KindValidation, "checkout run not found", err)
	}
	if !session.ValidRail(req.Rail) {
		return nil, NewFlowError(KindValidation, "unknown payment rail", nil)
	}
	if !run.SelectionValid() || !run.PlanValid() || !run.BrandingValid() {
		return nil, NewFlowError(KindValidation, "checkout steps are incomplete", nil)
	}
	if req.Mode == appserver.ModeUpgrade && req.ResourceID == "" {
		return nil, NewFlowError(KindValidation, "upgrade requires an existing event", nil)
	}

	amount := run.ChargeAmount()
	if req.Mode == appserver.ModeUpgrade {
		// Upgrades charge the absolute upgrade price; no discount applies.
		amount = run.Plan.FinalPrice
	}

	// Free-plan shortcut: nothing to charge, no intent, straight to
	// submission.
	if amount == 0 {
		return o.settleFree(ctx, run, req)
	}

	o.transition(ctx, req.RunID, StateIdle, StateIntentRequested)
	result, err := o.intents.RequestIntent(ctx, run, req.Mode, req.Rail, req.ResourceID)
	if err != nil {
		spanErr = err
		return o.failedOutcome(req.Rail, err), nil
	}

	record := &Record{
		RunID:          req.RunID,
		UserID:         req.UserID,
		Rail:           req.Rail,
		Mode:           req.Mode,
		Amount:         amount,
		DiscountAmount: discountFor(run, req.Mode),
	}
	if result.OrderID != "" {
		record.OrderID = &result.OrderID
	}
	if err := o.ledger.Insert(ctx, record); err != nil {
		spanErr = err
		return nil, NewFlowError(KindServerRejected, "could not record the payment attempt", err)
	}

	if req.Rail == session.RailRedirectWallet {
		return o.suspendForRedirect(ctx, run, req, record, result)
	}

	o.transition(ctx, req.RunID, StateIntentRequested, StateConfirming)
	return o.confirmInProcess(ctx, run, req, record, result.ClientSecret)
}

// suspendForRedirect persists the pending intent and hands the approval URL
// back. Persistence MUST complete before the caller may open the redirect;
// returning the URL only after Put succeeds enforces that ordering, so a
// process kill during the external flow always leaves a recoverable record.
func (o *Orchestrator) suspendForRedirect(ctx context.Context, run *session.Run, req PayRequest, record *Record, result *IntentResult) (Outcome, error) {
	intent := &PendingIntent{
		OrderID:    result.OrderID,
		Rail:       req.Rail,
		UserID:     req.UserID,
		RunID:      req.RunID,
		RecordID:   record.ID,
		Mode:       req.Mode,
		ResourceID: req.ResourceID,
		CreatedAt:  time.Now(),
	}
	if err := o.pending.Put(ctx, intent); err != nil {
		// Without the durable record the redirect would be unrecoverable,
		// so the attempt stops here.
		if _, markErr := o.ledger.MarkFailed(ctx, record.ID, "pending intent not persisted"); markErr != nil {
			o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", record.ID, "error", markErr)
		}
		return nil, NewFlowError(KindServerRejected, "could not persist the pending payment", err)
	}

	o.transition(ctx, req.RunID, StateIntentRequested, StateAwaitingRedirect)
	o.countAttempt(req.Rail, StateAwaitingRedirect)
	o.logger.InfoContext(ctx, "awaiting external redirect",
		"run_id", req.RunID, "order_id", result.OrderID)

	return AwaitingExternalRedirect{OrderID: result.OrderID, ApprovalURL: result.ApprovalURL}, nil
}

// confirmInProcess confirms an intent against the processor SDK and maps
// the result onto the outcome union.
func (o *Orchestrator) confirmInProcess(ctx context.Context, run *session.Run, req PayRequest, record *Record, clientSecret string) (Outcome, error) {
	start := time.Now()
	confirmation, err := o.confirmForRail(ctx, req, clientSecret)
	if o.metrics != nil {
		o.metrics.ObserveConfirmDuration(string(req.Rail), time.Since(start).Seconds())
	}
	if err != nil {
		if _, markErr := o.ledger.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", record.ID, "error", markErr)
		}
		o.countAttempt(req.Rail, StateFailed)
		return Failed{Kind: KindProcessorRejected, Message: "the payment could not be confirmed"}, nil
	}

	switch confirmation.Status {
	case ConfirmSucceeded:
		return o.settle(ctx, record.ID, req, confirmation.IntentID), nil

	case ConfirmRequiresAction, ConfirmRequiresPaymentMethod:
		// Surfaced to the user; no retry is scheduled.
		o.countAttempt(req.Rail, StateRequiresAction)
		return RequiresAction{Reason: string(confirmation.Status)}, nil

	case ConfirmProcessing:
		return o.recheckOnce(ctx, req, record, clientSecret)

	default: // canceled
		if _, err := o.ledger.MarkFailed(ctx, record.ID, string(confirmation.Status)); err != nil {
			o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", record.ID, "error", err)
		}
		o.countAttempt(req.Rail, StateFailed)
		return Failed{Kind: KindProcessorRejected, Message: "the payment was cancelled"}, nil
	}
}

// recheckOnce handles the known eventual-consistency gap where a
// confirmation reports "processing": wait a fixed delay, re-poll exactly
// once, and settle on whatever the poll reports. The ledger's single-shot
// terminal transition keeps a submission from being duplicated if success
// is also reported through another path.
func (o *Orchestrator) recheckOnce(ctx context.Context, req PayRequest, record *Record, clientSecret string) (Outcome, error) {
	o.logger.InfoContext(ctx, "confirmation processing, re-polling once",
		"run_id", req.RunID, "delay", o.recheckDelay)

	select {
	case <-ctx.Done():
		return nil, NewFlowError(KindProcessorRejected, "payment check interrupted", ctx.Err())
	case <-time.After(o.recheckDelay):
	}

	confirmation, err := o.processor.RetrieveIntent(ctx, clientSecret)
	if err == nil && confirmation.Status == ConfirmSucceeded {
		return o.settle(ctx, record.ID, req, confirmation.IntentID), nil
	}

	reason := "payment is still processing"
	if err != nil {
		reason = err.Error()
	}
	if _, markErr := o.ledger.MarkFailed(ctx, record.ID, reason); markErr != nil {
		o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", record.ID, "error", markErr)
	}
	o.countAttempt(req.Rail, StateFailed)
	return Failed{Kind: KindProcessorRejected, Message: "the payment did not complete, please try again"}, nil
}

// confirmForRail picks the processor confirmation primitive for the rail.
func (o *Orchestrator) confirmForRail(ctx context.Context, req PayRequest, clientSecret string) (*Confirmation, error) {
	switch req.Rail {
	case session.RailPlatformPay:
		if !o.processor.PlatformPaySupported(ctx) {
			return &Confirmation{Status: ConfirmRequiresPaymentMethod}, nil
		}
		return o.processor.ConfirmPlatformPay(ctx, clientSecret, req.PlatformPay)
	case session.RailCash:
		return o.processor.ConfirmPayment(ctx, clientSecret, methodTypeCash)
	default:
		return o.processor.ConfirmPayment(ctx, clientSecret, methodTypeCard)
	}
}

// Capture finalizes a redirect order. It is the only way back from
// AwaitingExternalRedirect and may be invoked by either resumption trigger,
// any number of times: the pending store's claim is the single-flight gate,
// so only the first caller does any work. Returns (nil, nil) when the order
// was already handled.
func (o *Orchestrator) Capture(ctx context.Context, orderID string) (Outcome, error) {
	ctx, endSpan := tracing.StartFlowSpan(ctx, "payment.capture", string(session.RailRedirectWallet))
	var spanErr error
	defer func() { endSpan(spanErr) }()

	intent, claimed, err := o.pending.Claim(ctx, orderID)
	if err != nil {
		spanErr = err
		return nil, NewFlowError(KindCaptureFailed, "could not read the pending payment", err)
	}
	if !claimed {
		o.logger.InfoContext(ctx, "capture already handled", "order_id", orderID)
		o.countCapture(CaptureResultAlreadyHandled)
		return nil, nil
	}

	o.transition(ctx, intent.RunID, StateAwaitingRedirect, StateConfirming)
	capture, err := o.server.CaptureRedirectOrder(ctx, orderID)
	if err != nil {
		spanErr = err
		if _, markErr := o.ledger.MarkFailed(ctx, intent.RecordID, err.Error()); markErr != nil {
			o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", intent.RecordID, "error", markErr)
		}
		o.countCapture(CaptureResultFailed)
		o.countAttempt(intent.Rail, StateFailed)
		return Failed{Kind: KindCaptureFailed, Message: "the payment could not be finalized"}, nil
	}

	if capture.Status != appserver.OrderStatusCompleted {
		if _, markErr := o.ledger.MarkFailed(ctx, intent.RecordID, capture.Status); markErr != nil {
			o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", intent.RecordID, "error", markErr)
		}
		o.countCapture(CaptureResultFailed)
		o.countAttempt(intent.Rail, StateFailed)
		return Failed{Kind: KindCaptureFailed, Message: "the payment was not completed"}, nil
	}

	o.countCapture(CaptureResultCompleted)
	req := PayRequest{
		RunID:      intent.RunID,
		UserID:     intent.UserID,
		Rail:       intent.Rail,
		Mode:       intent.Mode,
		ResourceID: intent.ResourceID,
	}
	// The submission references the order: the capture ID stays in the
	// ledger, the order ID is what support can look up on both sides.
	return o.settle(ctx, intent.RecordID, req, orderID), nil
}

// CancelRedirect handles the user abandoning the external flow: the pending
// intent is removed and the attempt finalized as Failed without any capture
// call. Returns (nil, nil) when the order was already handled.
func (o *Orchestrator) CancelRedirect(ctx context.Context, orderID string) (Outcome, error) {
	intent, claimed, err := o.pending.Claim(ctx, orderID)
	if err != nil {
		return nil, NewFlowError(KindCaptureFailed, "could not read the pending payment", err)
	}
	if !claimed {
		o.countCapture(CaptureResultAlreadyHandled)
		return nil, nil
	}

	if _, markErr := o.ledger.MarkFailed(ctx, intent.RecordID, "cancelled by user"); markErr != nil {
		o.logger.ErrorContext(ctx, "failed to mark payment failed", "record_id", intent.RecordID, "error", markErr)
	}
	o.transition(ctx, intent.RunID, StateAwaitingRedirect, StateFailed)
	o.countCapture(CaptureResultCancelled)
	o.countAttempt(intent.Rail, StateFailed)
	o.logger.InfoContext(ctx, "redirect payment cancelled", "order_id", orderID, "run_id", intent.RunID)

	return Failed{Kind: KindProcessorRejected, Message: "the payment was cancelled"}, nil
}

// settleFree handles the free-plan shortcut: no intent, no confirmation,
// straight to submission. A zero-amount ledger row keeps the attempt
// auditable.
func (o *Orchestrator) settleFree(ctx context.Context, run *session.Run, req PayRequest) (Outcome, error) {
	record := &Record{
		RunID:          req.RunID,
		UserID:         req.UserID,
		Rail:           req.Rail,
		Mode:           req.Mode,
		Amount:         0,
		DiscountAmount: discountFor(run, req.Mode),
	}
	if err := o.ledger.Insert(ctx, record); err != nil {
		return nil, NewFlowError(KindServerRejected, "could not record the payment attempt", err)
	}
	o.logger.InfoContext(ctx, "free plan, skipping payment confirmation", "run_id", req.RunID)
	return o.settle(ctx, record.ID, req, ""), nil
}

// settle transitions the ledger row to succeeded and runs the submission.
// The ledger's compare-and-set makes this single-shot: if another path
// already settled the attempt, the submission is not repeated.
func (o *Orchestrator) settle(ctx context.Context, recordID string, req PayRequest, confirmationID string) Outcome {
	first, err := o.ledger.MarkSucceeded(ctx, recordID, confirmationID)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to mark payment succeeded", "record_id", recordID, "error", err)
	}
	if err == nil && !first {
		o.logger.InfoContext(ctx, "payment already settled, skipping submission", "record_id", recordID)
		return Succeeded{ConfirmationID: confirmationID}
	}

	o.transition(ctx, req.RunID, StateConfirming, StateSucceeded)
	o.countAttempt(req.Rail, StateSucceeded)

	submission := o.submit(ctx, req, confirmationID)
	return Succeeded{ConfirmationID: confirmationID, Submission: submission}
}

// submit runs the create or upgrade call that follows a successful payment.
// A failure here never rolls back the payment; it is reported distinctly
// because the money movement is irreversible from this side.
func (o *Orchestrator) submit(ctx context.Context, req PayRequest, confirmationID string) SubmissionResult {
	if req.Mode == appserver.ModeUpgrade {
		run, err := o.sessions.Get(req.RunID)
		if err != nil {
			return o.submissionFailed(ctx, req, err)
		}
		result, err := o.server.UpgradeResource(ctx, &appserver.UpgradeRequest{
			ResourceID:     req.ResourceID,
			Plan:           run.Plan,
			ConfirmationID: confirmationID,
		})
		if err != nil {
			return o.submissionFailed(ctx, req, err)
		}
		o.finishRun(ctx, req, confirmationID)
		return SubmissionResult{ResourceID: result.ResourceID}
	}

	run, err := o.sessions.Get(req.RunID)
	if err != nil {
		return o.submissionFailed(ctx, req, err)
	}
	result, err := o.server.CreateResource(ctx, &appserver.SubmissionRequest{
		Selection:      run.Selection,
		Plan:           run.Plan,
		Branding:       run.Branding,
		DiscountCode:   run.Discount.Code,
		ConfirmationID: confirmationID,
	})
	if err != nil {
		return o.submissionFailed(ctx, req, err)
	}
	o.finishRun(ctx, req, confirmationID)
	return SubmissionResult{ResourceID: result.ResourceID}
}

// finishRun records the payment on the run and discards it: the wizard run
// ends on successful terminal submission.
func (o *Orchestrator) finishRun(ctx context.Context, req PayRequest, confirmationID string) {
	record := session.PaymentRecord{Rail: req.Rail, ConfirmationID: confirmationID}
	if req.Rail == session.RailRedirectWallet {
		record.OrderID = confirmationID
	}
	if err := o.sessions.SetPayment(req.RunID, record); err != nil {
		o.logger.WarnContext(ctx, "could not record payment on run", "run_id", req.RunID, "error", err)
		return
	}
	o.sessions.Discard(req.RunID)
}

func (o *Orchestrator) submissionFailed(ctx context.Context, req PayRequest, err error) SubmissionResult {
	o.logger.ErrorContext(ctx, "submission failed after successful payment",
		"run_id", req.RunID, "mode", string(req.Mode), "error", err)
	if o.metrics != nil {
		o.metrics.IncSubmissionFailure()
	}
	return SubmissionResult{
		Failed:  true,
		Message: "payment captured, resource action failed",
	}
}

// failedOutcome converts a classified request error into the Failed variant.
func (o *Orchestrator) failedOutcome(rail session.Rail, err error) Outcome {
	kind := KindOf(err)
	if kind == "" {
		kind = KindServerRejected
	}
	message := "the payment could not be started"
	var fe *FlowError
	if errors.As(err, &fe) {
		message = fe.Message
	}
	o.countAttempt(rail, StateFailed)
	return Failed{Kind: kind, Message: message}
}

func (o *Orchestrator) transition(ctx context.Context, runID string, from, to State) {
	o.logger.DebugContext(ctx, "payment state transition",
		"run_id", runID, "from", string(from), "to", string(to))
}

func (o *Orchestrator) countAttempt(rail session.Rail, state State) {
	if o.metrics != nil {
		o.metrics.IncAttempt(string(rail), state)
	}
}

func (o *Orchestrator) countCapture(result string) {
	if o.metrics != nil {
		o.metrics.IncCapture(result)
	}
}

// discountFor returns the discount to record for an attempt. Upgrades never
// carry one.
func discountFor(run *session.Run, mode appserver.PaymentMode) int64 {
	if mode == appserver.ModeUpgrade || !run.Discount.Valid {
		return 0
	}
	return run.Discount.Amount
}
