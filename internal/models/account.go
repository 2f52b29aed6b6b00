package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleBooker = "booker"
	RoleDJ     = "dj"
	RoleStaff  = "staff"
)

// SystemPlatformAccountID owns nothing in the ledger; it is the author of
// system-driven booking changes (sweeps, webhooks).
var SystemPlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type Account struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	PricePerHourCents int64     `json:"price_per_hour_cents"`
	StripeAccountID   string    `json:"stripe_account_id,omitempty"`
	PayoutsEnabled    bool      `json:"payouts_enabled"`
	IsStaff           bool      `json:"is_staff"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Actor is whoever triggers a booking operation.
type Actor struct {
	AccountID uuid.UUID
	IsStaff   bool
}

// SystemActor is used by sweeps and webhook handlers.
var SystemActor = Actor{AccountID: SystemPlatformAccountID, IsStaff: true}
