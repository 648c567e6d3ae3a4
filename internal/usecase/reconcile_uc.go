// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileResult is echoed to the gateway in the HTTP response.
type ReconcileResult struct {
	Processed      bool
	Duplicate      bool
	Stale          bool
	SubscriptionID *string
	EventType      model.CanonicalEventType
}

type ReconcileUseCase interface {
	// Apply runs the canonical event's side effects on the subscription,
	// payment and profile rows inside one transaction, and appends an audit
	// entry. Unknown event types and stale/replayed events are no-ops.
	Apply(ctx context.Context, ev *model.CanonicalEvent) (*ReconcileResult, error)
}

// SubscriptionLocker serializes reconciliation per gateway subscription so
// concurrent deliveries for the same subscription cannot interleave.
type SubscriptionLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// ReplayGuard remembers gateway event ids so re-deliveries short-circuit.
// Forget releases an id claimed by FirstDelivery when processing fails, so
// the gateway's retry of that delivery is not mistaken for a replay.
type ReplayGuard interface {
	FirstDelivery(ctx context.Context, gateway, eventID string) (bool, error)
	Forget(ctx context.Context, gateway, eventID string) error
}

type reconcileUC struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	profiles repository.ProfileRepository
	audit    repository.AuditLogRepository
	txm      repository.TransactionManager
	locker   SubscriptionLocker
	replay   ReplayGuard
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	profiles repository.ProfileRepository,
	audit repository.AuditLogRepository,
	txm repository.TransactionManager,
	locker SubscriptionLocker,
	replay ReplayGuard,
	logger *zerolog.Logger,
) *reconcileUC {
	return &reconcileUC{
		subs:     subs,
		payments: payments,
		profiles: profiles,
		audit:    audit,
		txm:      txm,
		locker:   locker,
		replay:   replay,
		log:      logger,
	}
}

const lockTTL = 15 * time.Second

func (u *reconcileUC) Apply(ctx context.Context, ev *model.CanonicalEvent) (*ReconcileResult, error) {
	if ev == nil {
		return nil, domain.ErrInvalidArgument
	}
	res := &ReconcileResult{EventType: ev.Type}

	claimed := false
	if ev.EventID != "" && u.replay != nil {
		first, err := u.replay.FirstDelivery(ctx, ev.Gateway, ev.EventID)
		if err != nil {
			// replay cache down: process anyway, dedup on storage keys below
			u.log.Warn().Err(err).Str("gateway", ev.Gateway).Msg("replay guard unavailable")
		} else if !first {
			res.Duplicate = true
			u.appendAudit(ctx, ev, "webhook_replayed", "", nil, true, nil)
			return res, nil
		} else {
			claimed = true
		}
	}

	if !ev.Type.Known() {
		u.log.Info().Str("gateway", ev.Gateway).Str("event_type", string(ev.Type)).Msg("unmapped event type, ignoring")
		u.appendAudit(ctx, ev, "webhook_ignored", "", nil, true, nil)
		return res, nil
	}

	if key := lockKey(ev); key != "" && u.locker != nil {
		token, err := u.locker.TryLock(ctx, key, lockTTL)
		if err != nil {
			u.releaseClaim(ctx, ev, claimed)
			return nil, domain.ErrSubscriptionLocked
		}
		defer func() { _ = u.locker.Unlock(ctx, key, token) }()
	}

	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		switch ev.Type {
		case model.EventSubscriptionCreated, model.EventCheckoutCompleted:
			return u.applyCreated(ctx, tx, ev, res)
		case model.EventSubscriptionUpdated, model.EventSubscriptionRenewed:
			return u.applyUpdated(ctx, tx, ev, res)
		case model.EventSubscriptionCancelled:
			return u.applyCancelled(ctx, tx, ev, res)
		case model.EventPaymentSucceeded:
			return u.applyPaymentSucceeded(ctx, tx, ev, res)
		case model.EventPaymentFailed, model.EventPaymentOverdue:
			return u.applyPaymentFailed(ctx, tx, ev, res)
		case model.EventPaymentRefunded:
			return u.applyPaymentRefunded(ctx, tx, ev, res)
		}
		return nil
	})
	if err != nil {
		u.releaseClaim(ctx, ev, claimed)
		u.appendAudit(ctx, ev, "webhook_"+string(ev.Type), "subscription", res.SubscriptionID, false,
			map[string]any{"error": err.Error()})
		return res, err
	}
	return res, nil
}

// releaseClaim drops the replay-guard entry for a delivery that failed, so
// the gateway's retry is processed instead of short-circuiting as a replay.
func (u *reconcileUC) releaseClaim(ctx context.Context, ev *model.CanonicalEvent, claimed bool) {
	if !claimed {
		return
	}
	if err := u.replay.Forget(ctx, ev.Gateway, ev.EventID); err != nil {
		u.log.Warn().Err(err).
			Str("gateway", ev.Gateway).
			Str("event_id", ev.EventID).
			Msg("failed to release replay entry, retry may be rejected until it expires")
	}
}

func (u *reconcileUC) applyCreated(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	// professional id normally travels in metadata / external_reference;
	// on renewal checkouts it may be missing, so fall back to the existing row
	if ev.Data.ProfessionalID == "" && ev.Data.SubscriptionID != "" {
		existing, err := u.subs.FindByGatewaySubscriptionID(ctx, tx, ev.Data.SubscriptionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			ev.Data.ProfessionalID = existing.ProfessionalID
		}
	}
	sub, err := model.NewSubscription(uuid.NewString(), ev)
	if err != nil {
		return err
	}
	stored, err := u.subs.UpsertByProfessional(ctx, tx, sub)
	if err != nil {
		return err
	}
	if err := u.profiles.UpdateBilling(ctx, tx, stored.ProfessionalID, stored.Plan, stored.Status); err != nil {
		return err
	}
	res.Processed = true
	res.SubscriptionID = &stored.ID
	return u.auditTx(ctx, tx, ev, "webhook_"+string(ev.Type), "subscription", &stored.ID, true, nil)
}

func (u *reconcileUC) applyUpdated(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	sub, err := u.subs.FindByGatewaySubscriptionID(ctx, tx, ev.Data.SubscriptionID)
	if err != nil {
		return err
	}
	res.SubscriptionID = &sub.ID
	if sub.StaleAgainst(ev.Data.OccurredAt) {
		return u.markStale(ctx, tx, ev, res, sub.ID)
	}
	status := model.MapGatewayStatus(ev.Data.Status)
	cancel := ev.Data.CancelAtEnd
	if err := u.subs.UpdateStatus(ctx, tx, sub.ID, status, ev.Data.PeriodEnd, &cancel, ev.Data.OccurredAt); err != nil {
		return err
	}
	if err := u.profiles.UpdateBilling(ctx, tx, sub.ProfessionalID, sub.Plan, status); err != nil {
		return err
	}
	res.Processed = true
	return u.auditTx(ctx, tx, ev, "webhook_"+string(ev.Type), "subscription", &sub.ID, true, nil)
}

func (u *reconcileUC) applyCancelled(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	sub, err := u.subs.FindByGatewaySubscriptionID(ctx, tx, ev.Data.SubscriptionID)
	if err != nil {
		return err
	}
	res.SubscriptionID = &sub.ID
	if sub.StaleAgainst(ev.Data.OccurredAt) {
		return u.markStale(ctx, tx, ev, res, sub.ID)
	}
	if err := u.subs.UpdateStatus(ctx, tx, sub.ID, model.SubscriptionStatusCancelled, nil, nil, ev.Data.OccurredAt); err != nil {
		return err
	}
	// cancelled professionals drop back to the free tier
	if err := u.profiles.UpdateBilling(ctx, tx, sub.ProfessionalID, model.PlanFree, model.SubscriptionStatusCancelled); err != nil {
		return err
	}
	res.Processed = true
	return u.auditTx(ctx, tx, ev, "webhook_subscription_cancelled", "subscription", &sub.ID, true, nil)
}

func (u *reconcileUC) applyPaymentSucceeded(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	var sub *model.Subscription
	if ev.Data.SubscriptionID != "" {
		found, err := u.subs.FindByGatewaySubscriptionID(ctx, tx, ev.Data.SubscriptionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		sub = found
	}

	now := time.Now()
	paidAt := ev.Data.OccurredAt
	if paidAt == nil {
		paidAt = &now
	}
	pay := &model.Payment{
		ID:               uuid.NewString(),
		ProfessionalID:   ev.Data.ProfessionalID,
		Amount:           ev.Data.Amount,
		Gateway:          ev.Gateway,
		GatewayPaymentID: ev.Data.PaymentID,
		PaymentMethod:    ev.Data.PaymentMethod,
		Status:           model.PaymentStatusApproved,
		PaidAt:           paidAt,
		CreatedAt:        now,
	}
	if sub != nil {
		pay.SubscriptionID = &sub.ID
		if pay.ProfessionalID == "" {
			pay.ProfessionalID = sub.ProfessionalID
		}
		res.SubscriptionID = &sub.ID
	}

	inserted, err := u.payments.InsertIfAbsent(ctx, tx, pay)
	if err != nil {
		return err
	}
	if !inserted {
		// same charge delivered again; keep exactly one ledger row
		res.Duplicate = true
		return u.auditTx(ctx, tx, ev, "webhook_payment_duplicate", "payment", &pay.GatewayPaymentID, true, nil)
	}

	if sub != nil && !sub.StaleAgainst(ev.Data.OccurredAt) {
		if err := u.subs.UpdateStatus(ctx, tx, sub.ID, model.SubscriptionStatusActive, ev.Data.PeriodEnd, nil, ev.Data.OccurredAt); err != nil {
			return err
		}
		if err := u.profiles.UpdateBilling(ctx, tx, sub.ProfessionalID, sub.Plan, model.SubscriptionStatusActive); err != nil {
			return err
		}
	}
	res.Processed = true
	return u.auditTx(ctx, tx, ev, "webhook_payment_succeeded", "payment", &pay.ID, true,
		map[string]any{"amount": pay.Amount, "gateway_payment_id": pay.GatewayPaymentID})
}

func (u *reconcileUC) applyPaymentFailed(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	sub, err := u.subs.FindByGatewaySubscriptionID(ctx, tx, ev.Data.SubscriptionID)
	if err != nil {
		return err
	}
	res.SubscriptionID = &sub.ID
	if sub.StaleAgainst(ev.Data.OccurredAt) {
		return u.markStale(ctx, tx, ev, res, sub.ID)
	}
	if err := u.subs.UpdateStatus(ctx, tx, sub.ID, model.SubscriptionStatusPastDue, nil, nil, ev.Data.OccurredAt); err != nil {
		return err
	}
	if err := u.profiles.UpdateBilling(ctx, tx, sub.ProfessionalID, sub.Plan, model.SubscriptionStatusPastDue); err != nil {
		return err
	}
	res.Processed = true
	return u.auditTx(ctx, tx, ev, "webhook_"+string(ev.Type), "subscription", &sub.ID, true, nil)
}

func (u *reconcileUC) applyPaymentRefunded(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult) error {
	pay, err := u.payments.FindByGatewayPaymentID(ctx, tx, ev.Data.PaymentID)
	if err != nil {
		return err
	}
	if pay.Status != model.PaymentStatusRefunded {
		if err := u.payments.MarkRefunded(ctx, tx, pay.ID); err != nil {
			return err
		}
	}
	res.Processed = true
	res.SubscriptionID = pay.SubscriptionID
	return u.auditTx(ctx, tx, ev, "webhook_payment_refunded", "payment", &pay.ID, true, nil)
}

func (u *reconcileUC) markStale(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, res *ReconcileResult, subID string) error {
	res.Stale = true
	u.log.Info().
		Str("gateway", ev.Gateway).
		Str("event_type", string(ev.Type)).
		Str("subscription_id", subID).
		Msg("stale event rejected")
	return u.auditTx(ctx, tx, ev, "webhook_stale", "subscription", &subID, true, nil)
}

func (u *reconcileUC) auditTx(ctx context.Context, tx repository.Tx, ev *model.CanonicalEvent, action, entityType string, entityID *string, success bool, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["gateway"] = ev.Gateway
	details["event_type"] = string(ev.Type)
	if ev.EventID != "" {
		details["event_id"] = ev.EventID
	}
	return u.audit.Append(ctx, tx, &model.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Success:    success,
		Details:    details,
		CreatedAt:  time.Now(),
	})
}

// appendAudit is the out-of-transaction variant used for no-ops and failures;
// best effort, an audit miss must not change the HTTP outcome.
func (u *reconcileUC) appendAudit(ctx context.Context, ev *model.CanonicalEvent, action, entityType string, entityID *string, success bool, details map[string]any) {
	if err := u.auditTx(ctx, repository.NoTX, ev, action, entityType, entityID, success, details); err != nil {
		u.log.Error().Err(err).Str("action", action).Msg("audit append failed")
	}
}

func lockKey(ev *model.CanonicalEvent) string {
	switch {
	case ev.Data.SubscriptionID != "":
		return "reconcile:" + ev.Gateway + ":" + ev.Data.SubscriptionID
	case ev.Data.ProfessionalID != "":
		return "reconcile:prof:" + ev.Data.ProfessionalID
	default:
		return ""
	}
}
