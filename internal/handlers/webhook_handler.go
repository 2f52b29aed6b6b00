package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gigbook/backend/internal/provider"
)

const maxWebhookBytes = 64 << 10

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

// WebhookHandler serves POST /webhooks/stripe.
type WebhookHandler struct {
	Processor WebhookProcessor
	Logger    *slog.Logger
}

// Stripe verifies and applies one event. Failures other than a bad signature
// answer 500 so the provider redelivers.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "failed to read body")
		return
	}
	err = h.Processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, provider.ErrInvalidSignature):
		writeErrorMsg(w, http.StatusBadRequest, "invalid signature")
	default:
		h.Logger.Error("webhook processing failed", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal error")
	}
}
