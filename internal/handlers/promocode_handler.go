package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/promocode"
)

type PromocodeCreator interface {
	Create(ctx context.Context, in promocode.CreateInput) (*models.Promocode, error)
}

// PromocodeHandler serves POST /api/v1/promocodes.
type PromocodeHandler struct {
	Promocodes PromocodeCreator
	Logger     *slog.Logger
}

type createPromocodeRequest struct {
	Code                string               `json:"code"`
	Type                models.PromocodeType `json:"promocode_type"`
	Amount              decimal.Decimal      `json:"amount"`
	MaxApplicationCount *int                 `json:"max_application_count"`
	StartDate           *time.Time           `json:"start_date"`
	EndDate             *time.Time           `json:"end_date"`
}

// Create handles POST /api/v1/promocodes (staff only). An empty code is generated.
func (h *PromocodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsStaff {
		writeError(w, h.Logger, models.ErrForbidden)
		return
	}
	var req createPromocodeRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Promocodes.Create(r.Context(), promocode.CreateInput{
		Code:                req.Code,
		Type:                req.Type,
		Amount:              req.Amount,
		MaxApplicationCount: req.MaxApplicationCount,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
