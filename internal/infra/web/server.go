package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/ports/repository"
	"acolheaqui-billing/internal/gateway"
	"acolheaqui-billing/internal/usecase"
)

type Server struct {
	parsers   *gateway.Registry
	reconcile usecase.ReconcileUseCase
	subs      repository.SubscriptionRepository
	payments  repository.PaymentRepository
	audit     repository.AuditLogRepository
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	parsers *gateway.Registry,
	reconcile usecase.ReconcileUseCase,
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	audit repository.AuditLogRepository,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		parsers:   parsers,
		reconcile: reconcile,
		subs:      subs,
		payments:  payments,
		audit:     audit,
		auth:      auth,
		apiKey:    apiKey,
		log:       logger,
	}
}

// Router builds the full route tree: webhook ingestion, health/metrics, and
// the JWT-guarded admin read API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/{gateway}", s.handleWebhook)
	// legacy route kept for gateways still configured against the old function URL
	r.Post("/subscription-webhook", s.handleWebhook)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/audit", s.handleAuditList)
			r.Get("/subscriptions/{professionalID}", s.handleSubscriptionGet)
			r.Get("/revenue", s.handleRevenue)
		})
	})
	return r
}
