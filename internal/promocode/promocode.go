// Package promocode validates and applies discount codes to bookings.
package promocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"

	"github.com/gigbook/backend/internal/clock"
	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/pricing"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 10
)

var hundred = decimal.NewFromInt(100)

// Store is the promocode persistence used by the engine.
type Store interface {
	Create(ctx context.Context, p *models.Promocode) error
	GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Promocode, error)
	CountApplicationsTx(ctx context.Context, tx pgx.Tx, promocodeID uuid.UUID) (int, error)
	IsAppliedTx(ctx context.Context, tx pgx.Tx, promocodeID, bookingID uuid.UUID) (bool, error)
	AddBookingTx(ctx context.Context, tx pgx.Tx, promocodeID, bookingID uuid.UUID) error
}

type Engine struct {
	store   Store
	clock   clock.Clock
	newCode func() string
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewEngine(store Store, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) (*Engine, error) {
	gen, err := nanoid.CustomASCII(codeAlphabet, codeLength)
	if err != nil {
		return nil, fmt.Errorf("promocode generator: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, clock: clk, newCode: gen, metrics: m, log: log}, nil
}

// CreateInput holds the fields of a new promocode. An empty Code is generated.
type CreateInput struct {
	Code                string
	Type                models.PromocodeType
	Amount              decimal.Decimal
	MaxApplicationCount *int
	StartDate           *time.Time
	EndDate             *time.Time
}

func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.Promocode, error) {
	p := &models.Promocode{
		ID:                  uuid.New(),
		Code:                strings.TrimSpace(in.Code),
		Type:                in.Type,
		Amount:              in.Amount,
		MaxApplicationCount: in.MaxApplicationCount,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		IsActive:            true,
	}
	if err := ValidateDefinition(p); err != nil {
		return nil, err
	}
	if p.Code == "" {
		p.Code = e.newCode()
	}
	if err := e.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create promocode: %w", err)
	}
	return p, nil
}

// ValidateDefinition checks the promocode's own fields.
func ValidateDefinition(p *models.Promocode) error {
	switch p.Type {
	case models.PromocodePercent:
		if !p.Amount.IsPositive() || p.Amount.GreaterThan(hundred) {
			return models.NewValidationError("amount", models.CodeInvalidPercent, "percent must be greater than 0 and at most 100")
		}
	case models.PromocodeFixed:
		if !p.Amount.IsPositive() {
			return models.NewValidationError("amount", models.CodeInvalidAmount, "amount must be positive")
		}
	default:
		return models.NewValidationError("promocode_type", models.CodeInvalidCode, "unknown promocode type")
	}
	if p.MaxApplicationCount != nil && *p.MaxApplicationCount < 0 {
		return models.NewValidationError("max_application_count", models.CodeInvalidAmount, "must not be negative")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return models.NewValidationError("end_date", models.CodeExpired, "end date is before start date")
	}
	return nil
}

// CalculatedAmount is the discount a promocode gives on priceCents: the fixed
// amount, or round(percent * price / 100, 2). It never exceeds the price.
func CalculatedAmount(p *models.Promocode, priceCents int64) int64 {
	var amount int64
	switch p.Type {
	case models.PromocodeFixed:
		amount = pricing.ToCents(p.Amount)
	case models.PromocodePercent:
		amount = pricing.ToCents(p.Amount.Mul(pricing.ToDollars(priceCents)).Div(hundred).Round(2))
	}
	if amount > priceCents {
		amount = priceCents
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// Validate looks up code inside tx and checks, in order: exists and active,
// not yet applied to the booking, application limit, start date, end date.
func (e *Engine) Validate(ctx context.Context, tx pgx.Tx, code string, bookingID uuid.UUID) (*models.Promocode, error) {
	p, err := e.store.GetByCodeForUpdate(ctx, tx, strings.TrimSpace(code))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewValidationError("code", models.CodeInvalidCode, "promocode does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("get promocode: %w", err)
	}
	if !p.IsActive {
		return nil, models.NewValidationError("code", models.CodeInvalidCode, "promocode is not active")
	}

	applied, err := e.store.IsAppliedTx(ctx, tx, p.ID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("check promocode application: %w", err)
	}
	if applied {
		return nil, models.NewValidationError("code", models.CodeAlreadyUsed, "promocode already applied to this booking")
	}

	if p.MaxApplicationCount != nil {
		count, err := e.store.CountApplicationsTx(ctx, tx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("count promocode applications: %w", err)
		}
		if count >= *p.MaxApplicationCount {
			return nil, models.NewValidationError("code", models.CodeOverused, "promocode application limit reached")
		}
	}

	now := e.clock.Now()
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return nil, models.NewValidationError("code", models.CodeNotYetActive, "promocode is not active yet")
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return nil, models.NewValidationError("code", models.CodeExpired, "promocode has expired")
	}
	return p, nil
}

// Apply links the promocode to the booking and appends the discount snapshot.
// The caller persists the booking in the same tx so price and fees are recomputed.
func (e *Engine) Apply(ctx context.Context, tx pgx.Tx, p *models.Promocode, b *models.Booking) (models.AppliedDiscount, error) {
	if _, ok := b.Discount(p.ID); ok {
		return models.AppliedDiscount{}, models.NewValidationError("code", models.CodeAlreadyUsed, "promocode already applied to this booking")
	}
	if err := e.store.AddBookingTx(ctx, tx, p.ID, b.ID); err != nil {
		return models.AppliedDiscount{}, fmt.Errorf("link promocode to booking: %w", err)
	}
	price := pricing.Price(b)
	d := models.AppliedDiscount{
		PromocodeID:           p.ID,
		PromocodeType:         p.Type,
		Amount:                p.Amount,
		PriceCents:            price,
		CalculatedAmountCents: CalculatedAmount(p, price),
		Date:                  e.clock.Now(),
	}
	b.AppliedDiscounts = append(b.AppliedDiscounts, d)
	e.metrics.RecordPromocodeApplied(string(p.Type))
	e.log.Info("promocode applied", "booking_id", b.ID, "promocode_id", p.ID,
		"price_cents", price, "discount_cents", d.CalculatedAmountCents)
	return d, nil
}
