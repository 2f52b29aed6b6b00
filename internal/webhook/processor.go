// Package webhook applies verified payment provider events to bookings,
// withdrawals and accounts.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/provider"
)

// Handled event types.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventTransferCreated        = "transfer.created"
	EventAccountUpdated         = "account.updated"
)

type Verifier interface {
	VerifyWebhookSignature(payload []byte, header string) (*provider.Event, error)
}

// Payments is implemented by payments.Orchestrator.
type Payments interface {
	PayBooking(ctx context.Context, intentID string, amountCents int64) error
	HandleTransferCreated(ctx context.Context, withdrawalID uuid.UUID) error
}

type Accounts interface {
	SetPayoutsEnabled(ctx context.Context, stripeAccountID string, enabled bool) (int64, error)
}

// Dedupe remembers event ids already handled. Claim reports false for an id
// seen before; Release forgets an id so a redelivery is processed again.
type Dedupe interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// RedisDedupe claims event ids with SETNX.
type RedisDedupe struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedupe(rdb *redis.Client, ttl time.Duration) *RedisDedupe {
	return &RedisDedupe{rdb: rdb, ttl: ttl}
}

func dedupeKey(eventID string) string { return "webhook:event:" + eventID }

func (d *RedisDedupe) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupeKey(eventID), 1, d.ttl).Result()
}

func (d *RedisDedupe) Release(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, dedupeKey(eventID)).Err()
}

type Processor struct {
	verifier Verifier
	payments Payments
	accounts Accounts
	dedupe   Dedupe
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewProcessor builds a processor; dedupe may be nil, in which case the
// handlers' own idempotency is all that protects against redelivery.
func NewProcessor(v Verifier, p Payments, a Accounts, d Dedupe, m *metrics.Metrics, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{verifier: v, payments: p, accounts: a, dedupe: d, metrics: m, log: log}
}

type paymentIntentObject struct {
	ID             string `json:"id"`
	AmountReceived int64  `json:"amount_received"`
}

type transferObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type accountObject struct {
	ID             string `json:"id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// Process verifies and applies one webhook delivery. A bad signature yields
// an error wrapping provider.ErrInvalidSignature. Events that can never apply,
// such as an unknown withdrawal, are logged and acknowledged.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) error {
	ev, err := p.verifier.VerifyWebhookSignature(payload, signature)
	if err != nil {
		p.metrics.RecordWebhook("unknown", "invalid_signature")
		return err
	}
	log := p.log.With("event_id", ev.ID, "event_type", ev.Type)

	if p.dedupe != nil {
		fresh, err := p.dedupe.Claim(ctx, ev.ID)
		if err != nil {
			log.Warn("webhook dedupe unavailable", "error", err)
		} else if !fresh {
			p.metrics.RecordWebhook(ev.Type, "duplicate")
			log.Info("duplicate webhook ignored")
			return nil
		}
	}

	err = p.apply(ctx, ev)
	var verr *models.ValidationError
	switch {
	case err == nil:
		p.metrics.RecordWebhook(ev.Type, "ok")
		return nil
	case errors.Is(err, models.ErrNotFound), errors.As(err, &verr):
		p.metrics.RecordWebhook(ev.Type, "skipped")
		log.Warn("webhook event skipped", "error", err)
		return nil
	}

	p.metrics.RecordWebhook(ev.Type, "error")
	if p.dedupe != nil {
		if rerr := p.dedupe.Release(ctx, ev.ID); rerr != nil {
			log.Warn("webhook dedupe release failed", "error", rerr)
		}
	}
	return err
}

func (p *Processor) apply(ctx context.Context, ev *provider.Event) error {
	switch ev.Type {
	case EventPaymentIntentSucceeded:
		var pi paymentIntentObject
		if err := json.Unmarshal(ev.Object, &pi); err != nil {
			return models.NewValidationError("data", models.CodeInvalidAmount, "malformed payment intent")
		}
		return p.payments.PayBooking(ctx, pi.ID, pi.AmountReceived)

	case EventTransferCreated:
		var tr transferObject
		if err := json.Unmarshal(ev.Object, &tr); err != nil {
			return fmt.Errorf("decode transfer: %w", err)
		}
		raw, ok := tr.Metadata["withdrawal_id"]
		if !ok {
			// booking payouts also create transfers
			return nil
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.NewValidationError("withdrawal_id", models.CodeInvalidCode, "malformed withdrawal id")
		}
		return p.payments.HandleTransferCreated(ctx, id)

	case EventAccountUpdated:
		var acc accountObject
		if err := json.Unmarshal(ev.Object, &acc); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		if acc.ID == "" {
			acc.ID = ev.Account
		}
		n, err := p.accounts.SetPayoutsEnabled(ctx, acc.ID, acc.PayoutsEnabled)
		if err != nil {
			return err
		}
		if n == 0 {
			p.log.Info("account update for unknown connected account", "stripe_account_id", acc.ID)
		}
		return nil
	}

	p.log.Debug("webhook event type not handled", "event_type", ev.Type)
	return nil
}
