package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gigbook/backend/internal/models"
)

// Withdrawals is the part of payments.Orchestrator the handler uses.
type Withdrawals interface {
	RequestWithdrawal(ctx context.Context, actor models.Actor, amountCents int64, cardID string) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, actor models.Actor) ([]*models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor, message string) (*models.Withdrawal, error)
	CancelWithdrawal(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Withdrawal, error)
}

// WithdrawalHandler serves /api/v1/withdrawals.
type WithdrawalHandler struct {
	Withdrawals Withdrawals
	Logger      *slog.Logger
}

// Request handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64  `json:"amount"`
		CardID string `json:"card_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	wd, err := h.Withdrawals.RequestWithdrawal(r.Context(), a, req.Amount, req.CardID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// List handles GET /api/v1/withdrawals.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.Withdrawals.ListWithdrawals(r.Context(), a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withWithdrawal(w, r, h.Withdrawals.GetWithdrawal)
}

func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.withWithdrawal(w, r, h.Withdrawals.ApproveWithdrawal)
}

func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withWithdrawal(w, r, h.Withdrawals.CancelWithdrawal)
}

func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.withWithdrawal(w, r, func(ctx context.Context, id uuid.UUID, a models.Actor) (*models.Withdrawal, error) {
		return h.Withdrawals.RejectWithdrawal(ctx, id, a, req.Message)
	})
}

func (h *WithdrawalHandler) withWithdrawal(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, a models.Actor) (*models.Withdrawal, error)) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wd, err := fn(r.Context(), id, a)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
