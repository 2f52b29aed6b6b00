package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PromocodeType string

const (
	PromocodeFixed   PromocodeType = "FIXED"
	PromocodePercent PromocodeType = "PERCENT"
)

// Promocode is a discount code. Amount is dollars for FIXED and a percentage for PERCENT.
type Promocode struct {
	ID                  uuid.UUID       `json:"id"`
	Code                string          `json:"code"`
	Type                PromocodeType   `json:"promocode_type"`
	Amount              decimal.Decimal `json:"amount"`
	MaxApplicationCount *int            `json:"max_application_count,omitempty"`
	StartDate           *time.Time      `json:"start_date,omitempty"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
}
