// Package api provides HTTP handlers for the Gatherly checkout API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gatherly-app/gatherly/internal/color"
	"github.com/gatherly-app/gatherly/internal/discount"
	"github.com/gatherly-app/gatherly/internal/middleware"
	"github.com/gatherly-app/gatherly/internal/session"
	"github.com/gatherly-app/gatherly/internal/validate"
)

// overlayTextColor is the color the photo overlay renders text in. Branding
// colors are checked against it so the contrast warning reflects what guests
// will actually see.
const overlayTextColor = "#FFFFFF"

// RunHandlers holds dependencies for checkout run HTTP handlers.
type RunHandlers struct {
	sessions  *session.Store
	discounts *discount.Validator
}

// NewRunHandlers creates a new RunHandlers instance.
func NewRunHandlers(sessions *session.Store, discounts *discount.Validator) *RunHandlers {
	return &RunHandlers{sessions: sessions, discounts: discounts}
}

// RunResponse is the standard representation of a checkout run: the run
// snapshot plus per-step completeness so clients can gate the stepper UI.
type RunResponse struct {
	Run             *session.Run    `json:"run"`
	Steps           map[string]bool `json:"steps"`
	ContrastWarning bool            `json:"contrast_warning,omitempty"`
}

func newRunResponse(run *session.Run) RunResponse {
	return RunResponse{
		Run: run,
		Steps: map[string]bool{
			"1": run.SelectionValid(),
			"2": run.PlanValid(),
			"3": run.BrandingValid(),
			"4": run.PaymentValid(),
		},
	}
}

// CreateRun starts a new checkout run with empty step records.
// POST /checkout/runs
func (h *RunHandlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	run := h.sessions.Begin()
	writeJSON(w, r, http.StatusCreated, newRunResponse(run))
}

// GetRun returns a run snapshot with per-step completeness.
// GET /checkout/runs/{id}
func (h *RunHandlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, newRunResponse(run))
}

// UpdateStep shallow-merges a partial record into one wizard step.
// PATCH /checkout/runs/{id}/steps/{step}
func (h *RunHandlers) UpdateStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := r.PathValue("id")
	stepNum, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnknownStep)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownStep, "step must be a number between 1 and 3")
		return
	}
	step := session.Step(stepNum)

	var update session.StepUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	// Validate and sanitize client-supplied text before it is merged.
	if u := update.Selection; u != nil && u.Name != nil {
		name, err := validate.EventName(*u.Name)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid event name: "+err.Error())
			return
		}
		u.Name = &name
	}

	if u := update.Branding; u != nil && u.ImageRef != nil && *u.ImageRef != "" {
		ref, err := validate.BrandingImageURL(*u.ImageRef)
		if err != nil {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid branding image url: "+err.Error())
			return
		}
		u.ImageRef = &ref
	}

	contrastWarning := false
	if u := update.Branding; u != nil && u.Color != nil {
		sanitized := color.SanitizeColor(*u.Color)
		if sanitized == "" {
			ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidColor)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidColor, "color must be a hex value like #7C3AED")
			return
		}
		u.Color = &sanitized

		// Overlay text renders in white; a low-contrast background is legal
		// but worth flagging.
		if _, err := color.ValidateContrast(overlayTextColor, sanitized); err != nil {
			contrastWarning = true
		}
	}

	run, err := h.sessions.Update(runID, step, update)
	if err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}

	resp := newRunResponse(run)
	resp.ContrastWarning = contrastWarning
	writeJSON(w, r, http.StatusOK, resp)
}

// ResetRun restores a run's step records to their initial empty values.
// POST /checkout/runs/{id}/reset
func (h *RunHandlers) ResetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := r.PathValue("id")
	if err := h.sessions.Reset(runID); err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}

	run, err := h.sessions.Get(runID)
	if err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newRunResponse(run))
}

// DiscardRun removes a run entirely.
// DELETE /checkout/runs/{id}
func (h *RunHandlers) DiscardRun(w http.ResponseWriter, r *http.Request) {
	h.sessions.Discard(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscountRequest represents the request body for applying a discount code.
type ApplyDiscountRequest struct {
	Code string `json:"code"`
}

// ApplyDiscount validates a discount code against the application server and
// records the result on the run. Invalid codes return 200 with a
// zero-amount, invalid application; applying a new code replaces any prior
// one.
// POST /checkout/runs/{id}/discount
func (h *RunHandlers) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	var req ApplyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	code, err := validate.DiscountCode(req.Code)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "invalid discount code: "+err.Error())
		return
	}

	application := h.discounts.Apply(ctx, code, run.Plan)
	if err := h.sessions.SetDiscount(run.ID, application); err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}

	writeJSON(w, r, http.StatusOK, application)
}

// ClearDiscount resets the run's discount so the code input is usable again.
// DELETE /checkout/runs/{id}/discount
func (h *RunHandlers) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID := r.PathValue("id")
	if err := h.sessions.ClearDiscount(runID); err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}

	run, err := h.sessions.Get(runID)
	if err != nil {
		h.writeStoreError(w, ctx, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newRunResponse(run))
}

// lookupRun resolves the {id} path segment to a run, writing the error
// response itself when the run does not exist.
func (h *RunHandlers) lookupRun(w http.ResponseWriter, r *http.Request) (*session.Run, bool) {
	run, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r.Context(), err)
		return nil, false
	}
	return run, true
}

func (h *RunHandlers) writeStoreError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, session.ErrRunNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeRunNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeRunNotFound, "checkout run not found")
	case errors.Is(err, session.ErrUnknownStep):
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnknownStep)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownStep, "step must be a number between 1 and 3")
	default:
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "something went wrong")
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
