package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/fraud"
)

type RouterConfig struct {
	Engines Engines
	Audit   audit.Log
	// FraudGuard screens every API request when set.
	FraudGuard Evaluator[fraud.Request]

	AdminToken     string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	if cfg.RateLimitRPS > 0 {
		r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
	}
	if cfg.FraudGuard != nil {
		r.Use(FraudGuard(cfg.FraudGuard, logger))
	}

	evaluate := NewEvaluateHandler(cfg.Engines, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/evaluate", func(r chi.Router) {
			if cfg.Engines.Tasks != nil {
				r.Post("/task", evaluate.Task)
			}
			if cfg.Engines.Requests != nil {
				r.Post("/request", evaluate.Request)
			}
			if cfg.Engines.Profiles != nil {
				r.Post("/verification", evaluate.Verification)
			}
			if cfg.Engines.Workers != nil {
				r.Post("/worker", evaluate.Worker)
			}
		})

		if cfg.Audit != nil {
			decisions := NewDecisionsHandler(cfg.Audit)
			r.Group(func(r chi.Router) {
				r.Use(AdminAuthMiddleware(cfg.AdminToken))
				r.Get("/decisions/{entity_id}", decisions.List)
				r.Get("/records/{id}", decisions.Get)
			})
		}
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
