package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/settlement-core/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware расчётного сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Recoverer(h.logger))
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.GzipMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/events", func(r chi.Router) {
			r.Post("/order-captured", h.OrderCaptured)
			r.Post("/delivery-completed", h.DeliveryCompleted)
			r.Post("/account-updated", h.AccountUpdated)
		})

		r.Route("/partners/{partnerID}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/entries", h.ListEntries)
			r.Post("/debt-adjustments", h.AdjustDebt)
		})

		r.Post("/orders/{orderID}/refunds", h.Refund)

		r.Route("/payout-runs", func(r chi.Router) {
			r.Get("/", h.ListPayoutRuns)
			r.Post("/", h.TriggerPayoutRun)
			r.Get("/{runID}", h.GetPayoutRun)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
