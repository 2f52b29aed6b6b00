// Package router wires the HTTP API.
package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gigbook/backend/internal/dashboard"
	"github.com/gigbook/backend/internal/handlers"
	"github.com/gigbook/backend/internal/middleware"
)

type Deps struct {
	Bookings    *handlers.BookingHandler
	Withdrawals *handlers.WithdrawalHandler
	Promocodes  *handlers.PromocodeHandler
	Webhooks    *handlers.WebhookHandler
	Dashboard   *dashboard.Handler
	Tokens      middleware.TokenValidator
	Schemas     middleware.Schemas
	Gatherer    prometheus.Gatherer
}

// New returns an http.Handler that serves the API under /api/v1, the Stripe
// webhook and /metrics.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.BearerAuth(d.Tokens)
	const base = "/api/v1"

	handle := func(pattern string, h http.HandlerFunc, schema string) {
		var next http.Handler = h
		if schema != "" {
			next = d.Schemas.ValidateBody(schema)(next)
		}
		mux.Handle(pattern, auth(next))
	}

	b := d.Bookings
	handle("POST "+base+"/bookings", b.Create, middleware.SchemaCreateBooking)
	handle("GET "+base+"/bookings", b.List, "")
	handle("GET "+base+"/bookings/{id}", b.Get, "")
	handle("POST "+base+"/bookings/{id}/pay", b.Pay, "")
	handle("POST "+base+"/bookings/{id}/promocodes", b.ApplyPromocode, middleware.SchemaApplyPromocode)
	handle("POST "+base+"/bookings/{id}/decline", b.Decline, middleware.SchemaDeclineBooking)
	handle("POST "+base+"/bookings/{id}/cancel", b.Cancel, "")
	handle("POST "+base+"/bookings/{id}/accept", b.Accept, "")
	handle("GET "+base+"/bookings/{id}/changes", b.Changes, "")
	mux.HandleFunc("GET "+base+"/performers/{id}/busy-dates", b.BusyDates)

	handle("GET "+base+"/account/me", d.Dashboard.GetMe, "")
	handle("GET "+base+"/account/balance", d.Dashboard.Balance, "")
	handle("GET "+base+"/account/transactions", d.Dashboard.Transactions, "")

	wd := d.Withdrawals
	handle("POST "+base+"/withdrawals", wd.Request, middleware.SchemaRequestWithdrawal)
	handle("GET "+base+"/withdrawals", wd.List, "")
	handle("GET "+base+"/withdrawals/{id}", wd.Get, "")
	handle("POST "+base+"/withdrawals/{id}/approve", wd.Approve, "")
	handle("POST "+base+"/withdrawals/{id}/reject", wd.Reject, middleware.SchemaRejectWithdrawal)
	handle("POST "+base+"/withdrawals/{id}/cancel", wd.Cancel, "")

	handle("POST "+base+"/promocodes", d.Promocodes.Create, middleware.SchemaCreatePromocode)

	mux.HandleFunc("POST /webhooks/stripe", d.Webhooks.Stripe)
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
