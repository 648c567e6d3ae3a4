package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/infra/logging"
	"acolheaqui-billing/internal/infra/metrics"
)

const maxWebhookBody = 1 << 20 // gateways send small JSON documents

type webhookResponse struct {
	Processed      bool    `json:"processed"`
	Duplicate      bool    `json:"duplicate,omitempty"`
	Stale          bool    `json:"stale,omitempty"`
	SubscriptionID *string `json:"subscription_id"`
	EventType      string  `json:"event_type"`
}

// handleWebhook serves both /webhooks/{gateway} and the legacy
// /subscription-webhook?gateway= form.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	gatewayName := chi.URLParam(r, "gateway")
	if gatewayName == "" {
		gatewayName = r.URL.Query().Get("gateway")
	}
	parser := s.parsers.Lookup(gatewayName)

	reqCtx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	reqCtx = logging.WithGateway(reqCtx, parser.Name())
	log := logging.With(reqCtx, s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		metrics.ObserveWebhook(parser.Name(), "", metrics.OutcomeRejected, sinceMs(start))
		return
	}

	if err := parser.Verify(body, r.Header); err != nil {
		log.Warn().Err(err).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		metrics.ObserveWebhook(parser.Name(), "", metrics.OutcomeRejected, sinceMs(start))
		return
	}

	ev, err := parser.Parse(body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook payload rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		metrics.ObserveWebhook(parser.Name(), "", metrics.OutcomeRejected, sinceMs(start))
		return
	}
	reqCtx = logging.WithEventID(reqCtx, ev.EventID)
	log = logging.With(reqCtx, s.log)

	ctx, cancel := context.WithTimeout(reqCtx, 10*time.Second)
	defer cancel()

	res, err := s.reconcile.Apply(ctx, ev)
	if err != nil {
		// 500 so the gateway retries; ErrNotFound lands here too, since an
		// out-of-order delivery may succeed once the creation event arrives
		log.Error().Err(err).
			Str("event_type", string(ev.Type)).
			Msg("reconciliation failed")
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		metrics.ObserveWebhook(ev.Gateway, string(ev.Type), metrics.OutcomeFailed, sinceMs(start))
		return
	}

	outcome := metrics.OutcomeIgnored
	switch {
	case res.Duplicate:
		outcome = metrics.OutcomeDuplicate
	case res.Stale:
		outcome = metrics.OutcomeStale
	case res.Processed:
		outcome = metrics.OutcomeProcessed
	}
	metrics.ObserveWebhook(ev.Gateway, string(ev.Type), outcome, sinceMs(start))

	switch {
	case res.EventType == model.EventPaymentSucceeded && res.Duplicate:
		metrics.IncPayment("duplicate")
	case res.EventType == model.EventPaymentSucceeded && res.Processed:
		metrics.IncPayment("approved")
	case res.EventType == model.EventPaymentRefunded && res.Processed:
		metrics.IncPayment("refunded")
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Processed:      res.Processed,
		Duplicate:      res.Duplicate,
		Stale:          res.Stale,
		SubscriptionID: res.SubscriptionID,
		EventType:      string(res.EventType),
	})
}

// handleAuditList returns a page of the append-only activity log.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.audit.List(r.Context(), nil, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	sub, err := s.subs.FindByProfessionalID(r.Context(), nil, professionalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleRevenue totals approved payments since the start of the current
// week/month/year.
func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	switch period {
	case "":
		period = "month"
	case "week", "month", "year":
	default:
		writeError(w, http.StatusBadRequest, "period must be week, month or year")
		return
	}

	total, err := s.payments.SumByPeriod(r.Context(), nil, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sum payments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "total": total})
}

// handleLogin exchanges the admin API key for a short-lived session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.apiKey == "" || req.APIKey != s.apiKey {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
