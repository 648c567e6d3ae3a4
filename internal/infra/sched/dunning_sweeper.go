package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
	"acolheaqui-billing/internal/infra/metrics"
)

// DunningSweeper periodically expires subscriptions that have sat in
// past_due beyond the grace period. Gateways only emit incomplete_expired
// for some flows, so the sweep is what guarantees the transition happens.
type DunningSweeper struct {
	subs     repository.SubscriptionRepository
	profiles repository.ProfileRepository
	audit    repository.AuditLogRepository
	txm      repository.TransactionManager
	interval time.Duration
	grace    time.Duration
	log      *zerolog.Logger
}

func NewDunningSweeper(
	subs repository.SubscriptionRepository,
	profiles repository.ProfileRepository,
	audit repository.AuditLogRepository,
	txm repository.TransactionManager,
	interval, grace time.Duration,
	logger *zerolog.Logger,
) *DunningSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if grace <= 0 {
		grace = 14 * 24 * time.Hour
	}
	return &DunningSweeper{
		subs:     subs,
		profiles: profiles,
		audit:    audit,
		txm:      txm,
		interval: interval,
		grace:    grace,
		log:      logger,
	}
}

func (w *DunningSweeper) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep. Exported so tests and ops tooling can trigger it.
func (w *DunningSweeper) Tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.grace)
	overdue, err := w.subs.ListPastDueOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("dunning: list past_due failed")
		return
	}
	for _, sub := range overdue {
		sub := sub
		err := w.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := w.subs.UpdateStatus(ctx, tx, sub.ID, model.SubscriptionStatusExpired, nil, nil, nil); err != nil {
				return err
			}
			if err := w.profiles.UpdateBilling(ctx, tx, sub.ProfessionalID, model.PlanFree, model.SubscriptionStatusExpired); err != nil {
				return err
			}
			return w.audit.Append(ctx, tx, &model.AuditEntry{
				Action:     "dunning_expired",
				EntityType: "subscription",
				EntityID:   &sub.ID,
				Success:    true,
				Details:    map[string]any{"professional_id": sub.ProfessionalID, "grace": w.grace.String()},
				CreatedAt:  time.Now(),
			})
		})
		if err != nil {
			w.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("dunning: expire failed")
			continue
		}
		metrics.IncExpired()
		w.log.Info().Str("subscription_id", sub.ID).Msg("dunning: subscription expired")
	}
}
