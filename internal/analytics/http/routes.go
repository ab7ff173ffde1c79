package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/receivables/internal/platform/httpx"
)

// MountRoutes registers the receivables endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	exports := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(tooManyRequests),
	)
	reloads := httprate.Limit(5, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(tooManyRequests),
	)

	r.Route("/api/receivables", func(r chi.Router) {
		r.Group(func(gr chi.Router) {
			gr.Use(onlyCSV(exports))
			gr.Get("/aging", h.handleAging)
			gr.Get("/banker", h.handleBanker)
			gr.Get("/ledger", h.handleLedger)
			gr.Get("/segments", h.handleSegments)
			gr.Get("/dashboard", h.handleDashboard)
		})
		r.Get("/options", h.handleOptions)
		r.With(reloads).Post("/snapshot/reload", h.handleReload)
	})
}

// onlyCSV applies limiter to CSV downloads and lets JSON reads through.
func onlyCSV(limiter func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("format") == "csv" {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "rate limit exceeded")
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
