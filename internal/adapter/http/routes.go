package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. pagesMW
// wraps only the page routes, which can reach upstream servers.
func MountRoutes(r chi.Router, h *Handlers, pagesMW ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Values
		r.Post("/values", h.StoreValue)
		r.Get("/values/{key}", h.GetValue)

		// Tracked calls
		r.Get("/calls", h.ListCalls)
		r.Get("/calls/{identity}", h.GetCallHistory)
		r.Get("/calls/{identity}/replay", h.ReplayCalls)

		// Memoized pages
		r.With(pagesMW...).Get("/pages", h.GetPage)
		r.Get("/pages/requests", h.GetPageRequests)
	})
}
