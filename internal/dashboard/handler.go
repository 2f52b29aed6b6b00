// Package dashboard serves the caller's own account: profile, balance and
// ledger statement.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gigbook/backend/internal/middleware"
	"github.com/gigbook/backend/internal/models"
)

type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Ledger is the read side of ledger.Service.
type Ledger interface {
	GetUserBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (int64, error)
	Statement(ctx context.Context, userID uuid.UUID) ([]*models.StatementLine, error)
}

type Handler struct {
	accounts AccountReader
	ledger   Ledger
	log      *slog.Logger
}

func NewHandler(accounts AccountReader, l Ledger, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{accounts: accounts, ledger: l, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	a, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return a.AccountID, true
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("get account failed", "user_id", id, "error", err)
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GET /api/v1/account/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.GetUserBalance(r.Context(), nil, id)
	if err != nil {
		h.log.Error("get balance failed", "user_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance})
}

// GET /api/v1/account/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}
	lines, err := h.ledger.Statement(r.Context(), id)
	if err != nil {
		h.log.Error("get statement failed", "user_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if lines == nil {
		lines = []*models.StatementLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}
