// Package payment provides the resumption triggers for suspended redirect
// payments.
package payment

import (
	"context"
	"log/slog"
)

// Redirect callback markers.
const (
	MarkerSuccess = "success"
	MarkerCancel  = "cancel"
)

// ResumptionListener funnels the two independent wake sources for a
// suspended redirect payment into the orchestrator's capture step: the app
// returning to foreground, and the external callback URL. The two may fire
// in either order, twice, or from different process lifetimes; the pending
// store's claim semantics make whichever arrives first the one that does
// the work, so no extra locking is needed here.
type ResumptionListener struct {
	pending PendingStore
	orch    *Orchestrator
	logger  *slog.Logger
}

// NewResumptionListener creates a ResumptionListener.
func NewResumptionListener(pending PendingStore, orch *Orchestrator, logger *slog.Logger) *ResumptionListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResumptionListener{pending: pending, orch: orch, logger: logger}
}

// OnForeground is the resume trigger: if the user has a pending redirect
// payment, attempt to capture it. Returns (nil, nil) when there is nothing
// pending or the order was already handled.
func (l *ResumptionListener) OnForeground(ctx context.Context, userID string) (Outcome, error) {
	intent, err := l.pending.GetByUser(ctx, userID)
	if err != nil {
		return nil, NewFlowError(KindCaptureFailed, "could not read the pending payment", err)
	}
	if intent == nil {
		return nil, nil
	}

	l.logger.InfoContext(ctx, "resuming pending redirect payment",
		"user_id", userID, "order_id", intent.OrderID)
	return l.orch.Capture(ctx, intent.OrderID)
}

// OnCallback is the external-redirect callback trigger. The order id comes
// from the callback payload when present, otherwise from the pending store.
// A cancel marker deletes the pending intent and finalizes Failed without a
// capture call.
func (l *ResumptionListener) OnCallback(ctx context.Context, userID, orderID, marker string) (Outcome, error) {
	if orderID == "" {
		intent, err := l.pending.GetByUser(ctx, userID)
		if err != nil {
			return nil, NewFlowError(KindCaptureFailed, "could not read the pending payment", err)
		}
		if intent == nil {
			return nil, nil
		}
		orderID = intent.OrderID
	}

	if marker == MarkerCancel {
		return l.orch.CancelRedirect(ctx, orderID)
	}
	return l.orch.Capture(ctx, orderID)
}
