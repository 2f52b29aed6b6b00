// Package provider talks to the Stripe API for payment intents, Connect
// transfers and payouts, and verifies webhook signatures.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/gigbook/backend/internal/metrics"
	"github.com/gigbook/backend/internal/models"
	"github.com/gigbook/backend/internal/payments"
)

// ErrInvalidSignature is returned for a webhook payload whose signature does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event is a verified webhook event.
type Event struct {
	ID      string
	Type    string
	Account string
	Object  json.RawMessage
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// APIBaseURL overrides the Stripe API endpoint, e.g. for stripe-mock.
	APIBaseURL string
}

type Stripe struct {
	api           *client.API
	currency      string
	webhookSecret string
	metrics       *metrics.Metrics
	log           *slog.Logger
}

func NewStripe(cfg Config, m *metrics.Metrics, log *slog.Logger) *Stripe {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	if log == nil {
		log = slog.Default()
	}
	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			URL:               stripe.String(cfg.APIBaseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Stripe{api: api, currency: cfg.Currency, webhookSecret: cfg.WebhookSecret, metrics: m, log: log}
}

var _ payments.Provider = (*Stripe)(nil)

func (s *Stripe) observe(op string, start time.Time, err error) error {
	s.metrics.ObserveProvider(op, err == nil, time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	s.log.Error("stripe call failed", "op", op, "error", err)
	return &models.ProviderError{Op: op, Err: err}
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, amountCents int64, metadata map[string]string) (*payments.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	start := time.Now()
	pi, err := s.api.PaymentIntents.New(params)
	if err := s.observe("create_payment_intent", start, err); err != nil {
		return nil, err
	}
	return &payments.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (s *Stripe) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	start := time.Now()
	_, err := s.api.PaymentIntents.Cancel(intentID, params)
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		s.metrics.ObserveProvider("cancel_payment_intent", true, time.Since(start).Seconds())
		return models.ErrIntentAlreadyCanceled
	}
	return s.observe("cancel_payment_intent", start, err)
}

// CreateTransfer moves funds from the platform to a connected account.
func (s *Stripe) CreateTransfer(ctx context.Context, amountCents int64, destinationAccount string, metadata map[string]string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(s.currency),
		Destination: stripe.String(destinationAccount),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	start := time.Now()
	tr, err := s.api.Transfers.New(params)
	if err := s.observe("create_transfer", start, err); err != nil {
		return "", err
	}
	return tr.ID, nil
}

// CreatePayout pays out from a connected account's balance to one of its cards.
func (s *Stripe) CreatePayout(ctx context.Context, amountCents int64, connectedAccount, destinationCard string) (string, error) {
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(s.currency),
		Destination: stripe.String(destinationCard),
		Method:      stripe.String(string(stripe.PayoutMethodInstant)),
	}
	params.Context = ctx
	params.SetStripeAccount(connectedAccount)
	start := time.Now()
	po, err := s.api.Payouts.New(params)
	if err := s.observe("create_payout", start, err); err != nil {
		return "", err
	}
	return po.ID, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header and decodes the event.
func (s *Stripe) VerifyWebhookSignature(payload []byte, header string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type), Account: ev.Account}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}
