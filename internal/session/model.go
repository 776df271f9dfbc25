// Package session provides models and storage for one event checkout run.
package session

import "time"

// Step identifies one of the four wizard steps in a checkout run.
type Step int

// Wizard step constants.
const (
	StepSelection Step = 1
	StepPlan      Step = 2
	StepBranding  Step = 3
	StepPayment   Step = 4
)

// Rail identifies a payment method integration with its own confirmation flow.
type Rail string

// Supported payment rails.
const (
	RailCard           Rail = "card"
	RailPlatformPay    Rail = "platform-pay"
	RailCash           Rail = "cash-rail"
	RailRedirectWallet Rail = "redirect-wallet"
)

// ValidRail reports whether r is one of the supported payment rails.
func ValidRail(r Rail) bool {
	switch r {
	case RailCard, RailPlatformPay, RailCash, RailRedirectWallet:
		return true
	}
	return false
}

// SelectionData holds the event basics captured in step 1.
type SelectionData struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Date      string `json:"date"`       // ISO date (YYYY-MM-DD)
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM
	OverlayID string `json:"overlay_id,omitempty"`
}

// PlanSelection holds the plan chosen in step 2 with its computed pricing.
// All prices are in cents. FinalPrice is always derived from the base price
// plus the three incremental line items and is never accepted from a client.
type PlanSelection struct {
	PlanID             string `json:"plan_id"`
	GuestLimit         int    `json:"guest_limit"`
	PhotoPool          int    `json:"photo_pool"`
	PhotosPerGuest     int    `json:"photos_per_guest"`
	PerGuestCapEnabled bool   `json:"per_guest_cap_enabled"`
	StorageDays        int    `json:"storage_days"`
	BasePrice          int64  `json:"base_price"`
	GuestPrice         int64  `json:"guest_price"`
	PhotoPrice         int64  `json:"photo_price"`
	StoragePrice       int64  `json:"storage_price"`
	FinalPrice         int64  `json:"final_price"`
}

// recomputeFinalPrice derives FinalPrice from the base price and the three
// incremental line items. Called after every plan update so a client-supplied
// final price can never stick.
func (p *PlanSelection) recomputeFinalPrice() {
	p.FinalPrice = p.BasePrice + p.GuestPrice + p.PhotoPrice + p.StoragePrice
}

// BrandingData holds the visual customization captured in step 3.
type BrandingData struct {
	Color      string `json:"color"`
	FontFamily string `json:"font_family"`
	FontWeight string `json:"font_weight"`
	FontSize   int    `json:"font_size"`
	ImageRef   string `json:"image_ref,omitempty"`
}

// PaymentRecord holds the payment outcome for step 4.
// ConfirmationID is set only after a successful confirmation or capture.
// OrderID is set only for the redirect-wallet rail.
type PaymentRecord struct {
	Rail           Rail   `json:"rail,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
}

// DiscountApplication is the result of validating a discount code.
// Applying a new code replaces any prior application; clearing resets the
// amount to zero.
type DiscountApplication struct {
	Code   string `json:"code"`
	Amount int64  `json:"amount"` // cents off, always >= 0
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"` // set when Valid is false
}

// Run holds the four step records and the discount application for one
// checkout run.
type Run struct {
	ID        string              `json:"id"`
	Selection SelectionData       `json:"selection"`
	Plan      PlanSelection       `json:"plan"`
	Branding  BrandingData        `json:"branding"`
	Payment   PaymentRecord       `json:"payment"`
	Discount  DiscountApplication `json:"discount"`
	CreatedAt time.Time           `json:"created_at"`
}

// MinSelectionNameLen is the minimum length for an event name in step 1.
const MinSelectionNameLen = 3

// SelectionValid reports whether the step 1 record is complete.
func (r *Run) SelectionValid() bool {
	s := r.Selection
	return len(s.Name) >= MinSelectionNameLen &&
		s.Category != "" &&
		s.Date != "" &&
		s.StartTime != "" &&
		s.EndTime != ""
}

// PlanValid reports whether the step 2 record is complete and internally
// consistent. The per-guest photo cap may not exceed the photo pool when the
// cap is enabled.
func (r *Run) PlanValid() bool {
	p := r.Plan
	if p.PlanID == "" || p.GuestLimit <= 0 || p.PhotoPool <= 0 {
		return false
	}
	if p.PerGuestCapEnabled && p.PhotosPerGuest > p.PhotoPool {
		return false
	}
	return true
}

// BrandingValid reports whether the step 3 record is complete.
// Branding only needs a color; everything else has a rendered default.
func (r *Run) BrandingValid() bool {
	return r.Branding.Color != ""
}

// PaymentValid reports whether the step 4 record shows a finished payment.
func (r *Run) PaymentValid() bool {
	return r.Payment.ConfirmationID != ""
}

// ChargeAmount returns the amount the server should be asked to charge for
// this run: the plan's final price minus any applied discount, floored at
// zero.
func (r *Run) ChargeAmount() int64 {
	amount := r.Plan.FinalPrice
	if r.Discount.Valid {
		amount -= r.Discount.Amount
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
