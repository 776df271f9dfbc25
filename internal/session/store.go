// Package session provides storage for checkout run state.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a checkout run does not exist.
var ErrRunNotFound = errors.New("checkout run not found")

// ErrUnknownStep is returned when a step number is outside 1-4.
var ErrUnknownStep = errors.New("unknown wizard step")

// SelectionUpdate is a partial update for step 1. Nil fields are left
// untouched; set fields win.
type SelectionUpdate struct {
	Name      *string `json:"name,omitempty"`
	Category  *string `json:"category,omitempty"`
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	OverlayID *string `json:"overlay_id,omitempty"`
}

// PlanUpdate is a partial update for step 2. The final price is always
// recomputed after a merge; it cannot be set directly.
type PlanUpdate struct {
	PlanID             *string `json:"plan_id,omitempty"`
	GuestLimit         *int    `json:"guest_limit,omitempty"`
	PhotoPool          *int    `json:"photo_pool,omitempty"`
	PhotosPerGuest     *int    `json:"photos_per_guest,omitempty"`
	PerGuestCapEnabled *bool   `json:"per_guest_cap_enabled,omitempty"`
	StorageDays        *int    `json:"storage_days,omitempty"`
	BasePrice          *int64  `json:"base_price,omitempty"`
	GuestPrice         *int64  `json:"guest_price,omitempty"`
	PhotoPrice         *int64  `json:"photo_price,omitempty"`
	StoragePrice       *int64  `json:"storage_price,omitempty"`
}

// BrandingUpdate is a partial update for step 3.
type BrandingUpdate struct {
	Color      *string `json:"color,omitempty"`
	FontFamily *string `json:"font_family,omitempty"`
	FontWeight *string `json:"font_weight,omitempty"`
	FontSize   *int    `json:"font_size,omitempty"`
	ImageRef   *string `json:"image_ref,omitempty"`
}

// StepUpdate carries at most one step's partial update.
type StepUpdate struct {
	Selection *SelectionUpdate `json:"selection,omitempty"`
	Plan      *PlanUpdate      `json:"plan,omitempty"`
	Branding  *BrandingUpdate  `json:"branding,omitempty"`
}

// Store holds checkout runs in memory, keyed by run ID. All methods are safe
// for concurrent use. The store never issues network calls; it is pure local
// state owned by the checkout flow.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*Run)}
}

// Begin creates a new checkout run with empty step records and returns a
// snapshot of it.
func (s *Store) Begin() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	s.runs[run.ID] = run

	copied := *run
	return &copied
}

// Get returns a snapshot of a run. Returns ErrRunNotFound if it doesn't exist.
func (s *Store) Get(runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}

	// Return a copy to prevent external mutation
	copied := *run
	return &copied, nil
}

// Update shallow-merges a partial record into the given step of a run.
// Last write wins per field. Returns the updated run snapshot.
func (s *Store) Update(runID string, step Step, update StepUpdate) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}

	switch step {
	case StepSelection:
		if u := update.Selection; u != nil {
			mergeSelection(&run.Selection, u)
		}
	case StepPlan:
		if u := update.Plan; u != nil {
			mergePlan(&run.Plan, u)
			run.Plan.recomputeFinalPrice()
		}
	case StepBranding:
		if u := update.Branding; u != nil {
			mergeBranding(&run.Branding, u)
		}
	case StepPayment:
		// Payment is written by the orchestrator through SetPayment, never
		// merged from client input.
		return nil, ErrUnknownStep
	default:
		return nil, ErrUnknownStep
	}

	copied := *run
	return &copied, nil
}

// SetPayment records the payment outcome for a run.
func (s *Store) SetPayment(runID string, record PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Payment = record
	return nil
}

// SetDiscount replaces the run's discount application. Applying a new code
// invalidates any previously applied code.
func (s *Store) SetDiscount(runID string, d DiscountApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Discount = d
	return nil
}

// ClearDiscount resets the run's discount to zero so the code input is
// usable again. Pure local reset, no network call.
func (s *Store) ClearDiscount(runID string) error {
	return s.SetDiscount(runID, DiscountApplication{})
}

// IsValid reports whether the given step of a run is complete.
func (s *Store) IsValid(runID string, step Step) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return false, ErrRunNotFound
	}

	switch step {
	case StepSelection:
		return run.SelectionValid(), nil
	case StepPlan:
		return run.PlanValid(), nil
	case StepBranding:
		return run.BrandingValid(), nil
	case StepPayment:
		return run.PaymentValid(), nil
	default:
		return false, ErrUnknownStep
	}
}

// Reset restores a run's four records to their initial empty values. The run
// keeps its ID so an in-progress wizard can start over.
func (s *Store) Reset(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}

	*run = Run{ID: run.ID, CreatedAt: run.CreatedAt}
	return nil
}

// Discard removes a run entirely. Called on explicit cancel or after a
// successful terminal submission.
func (s *Store) Discard(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

func mergeSelection(dst *SelectionData, u *SelectionUpdate) {
	if u.Name != nil {
		dst.Name = *u.Name
	}
	if u.Category != nil {
		dst.Category = *u.Category
	}
	if u.Date != nil {
		dst.Date = *u.Date
	}
	if u.StartTime != nil {
		dst.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		dst.EndTime = *u.EndTime
	}
	if u.OverlayID != nil {
		dst.OverlayID = *u.OverlayID
	}
}

func mergePlan(dst *PlanSelection, u *PlanUpdate) {
	if u.PlanID != nil {
		dst.PlanID = *u.PlanID
	}
	if u.GuestLimit != nil {
		dst.GuestLimit = *u.GuestLimit
	}
	if u.PhotoPool != nil {
		dst.PhotoPool = *u.PhotoPool
	}
	if u.PhotosPerGuest != nil {
		dst.PhotosPerGuest = *u.PhotosPerGuest
	}
	if u.PerGuestCapEnabled != nil {
		dst.PerGuestCapEnabled = *u.PerGuestCapEnabled
	}
	if u.StorageDays != nil {
		dst.StorageDays = *u.StorageDays
	}
	if u.BasePrice != nil {
		dst.BasePrice = *u.BasePrice
	}
	if u.GuestPrice != nil {
		dst.GuestPrice = *u.GuestPrice
	}
	if u.PhotoPrice != nil {
		dst.PhotoPrice = *u.PhotoPrice
	}
	if u.StoragePrice != nil {
		dst.StoragePrice = *u.StoragePrice
	}
}

func mergeBranding(dst *BrandingData, u *BrandingUpdate) {
	if u.Color != nil {
		dst.Color = *u.Color
	}
	if u.FontFamily != nil {
		dst.FontFamily = *u.FontFamily
	}
	if u.FontWeight != nil {
		dst.FontWeight = *u.FontWeight
	}
	if u.FontSize != nil {
		dst.FontSize = *u.FontSize
	}
	if u.ImageRef != nil {
		dst.ImageRef = *u.ImageRef
	}
}
