//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
)

type ucFixture struct {
	subs     *mockSubscriptionRepo
	payments *mockPaymentRepo
	profiles *mockProfileRepo
	audit    *mockAuditRepo
	txm      *mockTxManager
	locker   *mockLocker
	replay   *mockReplayGuard
	uc       ReconcileUseCase
}

func newFixture() *ucFixture {
	f := &ucFixture{
		subs:     newMockSubscriptionRepo(),
		payments: newMockPaymentRepo(),
		profiles: &mockProfileRepo{},
		audit:    &mockAuditRepo{},
		txm:      &mockTxManager{},
		locker:   &mockLocker{},
		replay:   &mockReplayGuard{},
	}
	logger := zerolog.Nop()
	f.uc = NewReconcileUseCase(f.subs, f.payments, f.profiles, f.audit, f.txm, f.locker, f.replay, &logger)
	return f
}

func createdEvent() *model.CanonicalEvent {
	now := time.Now().UTC()
	end := now.AddDate(0, 1, 0)
	return &model.CanonicalEvent{
		Gateway: "asaas",
		EventID: "evt_created_1",
		Type:    model.EventSubscriptionCreated,
		Data: model.EventData{
			ProfessionalID: "prof-1",
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
			Plan:           model.PlanPro,
			Status:         "ACTIVE",
			Amount:         9700,
			Currency:       "BRL",
			OccurredAt:     &now,
			PeriodEnd:      &end,
		},
	}
}

func TestApplySubscriptionCreated(t *testing.T) {
	f := newFixture()

	res, err := f.uc.Apply(context.Background(), createdEvent())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Processed || res.Duplicate || res.Stale {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.SubscriptionID == nil {
		t.Fatal("expected subscription id in result")
	}
	if len(f.subs.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(f.subs.upserted))
	}
	if got := f.subs.upserted[0]; got.ProfessionalID != "prof-1" || got.Plan != model.PlanPro {
		t.Errorf("upserted subscription wrong: %+v", got)
	}
	if len(f.profiles.updates) != 1 {
		t.Fatalf("expected profile mirror, got %d updates", len(f.profiles.updates))
	}
	if u := f.profiles.updates[0]; u.professionalID != "prof-1" || u.plan != model.PlanPro || u.status != model.SubscriptionStatusActive {
		t.Errorf("profile mirror wrong: %+v", u)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != "webhook_subscription_created" {
		t.Errorf("audit trail wrong: %v", f.audit.actions())
	}
	if f.txm.calls != 1 {
		t.Errorf("expected one transaction, got %d", f.txm.calls)
	}
	if len(f.locker.locked) != 1 || len(f.locker.unlocked) != 1 {
		t.Errorf("lock not taken and released: %v / %v", f.locker.locked, f.locker.unlocked)
	}
}

func TestApplyCreatedFallsBackToExistingProfessional(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}

	ev := createdEvent()
	ev.EventID = "evt_created_2"
	ev.Data.ProfessionalID = "" // renewal checkout without metadata
	res, err := f.uc.Apply(context.Background(), ev)
	if err != nil {
		t.Fatalf("expected fallback to stored professional, got %v", err)
	}
	if !res.Processed {
		t.Error("expected processed result")
	}
	if got := f.subs.upserted[1].ProfessionalID; got != "prof-1" {
		t.Errorf("professional id not recovered from existing row, got %q", got)
	}
}

func TestApplySubscriptionCancelled(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}

	later := time.Now().UTC().Add(time.Hour)
	res, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas",
		EventID: "evt_cancel_1",
		Type:    model.EventSubscriptionCancelled,
		Data:    model.EventData{SubscriptionID: "sub_1", OccurredAt: &later},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Processed {
		t.Error("expected processed result")
	}
	if len(f.subs.statusUpdates) != 1 || f.subs.statusUpdates[0].status != model.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled status update, got %+v", f.subs.statusUpdates)
	}
	last := f.profiles.updates[len(f.profiles.updates)-1]
	if last.plan != model.PlanFree || last.status != model.SubscriptionStatusCancelled {
		t.Errorf("cancelled professional must drop to free tier, got %+v", last)
	}
}

func TestApplyStaleEventRejected(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}
	mirrorsBefore := len(f.profiles.updates)

	earlier := time.Now().UTC().Add(-2 * time.Hour)
	res, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas",
		EventID: "evt_old_1",
		Type:    model.EventSubscriptionCancelled,
		Data:    model.EventData{SubscriptionID: "sub_1", OccurredAt: &earlier},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Stale || res.Processed {
		t.Errorf("expected stale no-op, got %+v", res)
	}
	if len(f.subs.statusUpdates) != 0 {
		t.Errorf("stale event must not touch the subscription, got %+v", f.subs.statusUpdates)
	}
	if len(f.profiles.updates) != mirrorsBefore {
		t.Error("stale event must not touch the profile")
	}
	if last := f.audit.entries[len(f.audit.entries)-1]; last.Action != "webhook_stale" {
		t.Errorf("expected webhook_stale audit, got %q", last.Action)
	}
}

func TestApplyPaymentSucceeded(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	payEv := &model.CanonicalEvent{
		Gateway: "asaas",
		EventID: "evt_pay_1",
		Type:    model.EventPaymentSucceeded,
		Data: model.EventData{
			SubscriptionID: "sub_1",
			PaymentID:      "pay_1",
			Amount:         9700,
			PaymentMethod:  "PIX",
			OccurredAt:     &now,
		},
	}
	res, err := f.uc.Apply(context.Background(), payEv)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Processed || res.Duplicate {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(f.payments.inserted) != 1 {
		t.Fatalf("expected 1 payment row, got %d", len(f.payments.inserted))
	}
	pay := f.payments.inserted[0]
	if pay.GatewayPaymentID != "pay_1" || pay.Status != model.PaymentStatusApproved {
		t.Errorf("payment row wrong: %+v", pay)
	}
	if pay.ProfessionalID != "prof-1" {
		t.Errorf("payment must inherit professional from subscription, got %q", pay.ProfessionalID)
	}
	if len(f.subs.statusUpdates) != 1 || f.subs.statusUpdates[0].status != model.SubscriptionStatusActive {
		t.Errorf("payment must reactivate subscription, got %+v", f.subs.statusUpdates)
	}
}

func TestApplyPaymentDuplicateKeepsOneRow(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	mkEvent := func(eventID string) *model.CanonicalEvent {
		return &model.CanonicalEvent{
			Gateway: "asaas",
			EventID: eventID,
			Type:    model.EventPaymentSucceeded,
			Data:    model.EventData{SubscriptionID: "sub_1", PaymentID: "pay_dup", Amount: 9700, OccurredAt: &now},
		}
	}
	if _, err := f.uc.Apply(context.Background(), mkEvent("evt_a")); err != nil {
		t.Fatal(err)
	}
	// same charge under a fresh event id: replay guard passes, storage dedups
	res, err := f.uc.Apply(context.Background(), mkEvent("evt_b"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Duplicate || res.Processed {
		t.Errorf("expected duplicate no-op, got %+v", res)
	}
	if len(f.payments.inserted) != 1 {
		t.Errorf("expected exactly one ledger row, got %d", len(f.payments.inserted))
	}
	if last := f.audit.entries[len(f.audit.entries)-1]; last.Action != "webhook_payment_duplicate" {
		t.Errorf("expected webhook_payment_duplicate audit, got %q", last.Action)
	}
}

func TestApplyReplayedEventShortCircuits(t *testing.T) {
	f := newFixture()
	ev := createdEvent()
	if _, err := f.uc.Apply(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	res, err := f.uc.Apply(context.Background(), createdEvent()) // same event id
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Duplicate {
		t.Errorf("expected replayed delivery to dedup, got %+v", res)
	}
	if len(f.subs.upserted) != 1 {
		t.Errorf("replay must not re-apply effects, got %d upserts", len(f.subs.upserted))
	}
	if last := f.audit.entries[len(f.audit.entries)-1]; last.Action != "webhook_replayed" {
		t.Errorf("expected webhook_replayed audit, got %q", last.Action)
	}
}

func TestApplyProcessesWhenReplayGuardDown(t *testing.T) {
	f := newFixture()
	f.replay.err = errors.New("redis down")

	res, err := f.uc.Apply(context.Background(), createdEvent())
	if err != nil {
		t.Fatalf("guard outage must not block processing, got %v", err)
	}
	if !res.Processed {
		t.Errorf("expected processed result, got %+v", res)
	}
}

func TestApplyUnknownEventTypeIsNoOp(t *testing.T) {
	f := newFixture()

	res, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas",
		EventID: "evt_x",
		Type:    model.CanonicalEventType("PAYMENT_ANTICIPATED"),
		Data:    model.EventData{SubscriptionID: "sub_1"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Processed || res.Duplicate || res.Stale {
		t.Errorf("expected pure no-op, got %+v", res)
	}
	if f.txm.calls != 0 {
		t.Error("unknown type must not open a transaction")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != "webhook_ignored" {
		t.Errorf("expected webhook_ignored audit, got %v", f.audit.actions())
	}
}

func TestApplyPaymentRefunded(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if _, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas", EventID: "evt_pay_2", Type: model.EventPaymentSucceeded,
		Data: model.EventData{SubscriptionID: "sub_1", PaymentID: "pay_2", Amount: 9700, OccurredAt: &now},
	}); err != nil {
		t.Fatal(err)
	}

	refund := func(eventID string) (*ReconcileResult, error) {
		return f.uc.Apply(context.Background(), &model.CanonicalEvent{
			Gateway: "asaas", EventID: eventID, Type: model.EventPaymentRefunded,
			Data: model.EventData{PaymentID: "pay_2"},
		})
	}
	res, err := refund("evt_ref_1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Processed {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(f.payments.refunded) != 1 {
		t.Fatalf("expected one refund, got %d", len(f.payments.refunded))
	}

	// second refund notice is idempotent
	if _, err := refund("evt_ref_2"); err != nil {
		t.Fatalf("expected idempotent refund, got %v", err)
	}
	if len(f.payments.refunded) != 1 {
		t.Errorf("refund must not repeat, got %d calls", len(f.payments.refunded))
	}
}

func TestApplyLockedSubscription(t *testing.T) {
	f := newFixture()
	f.locker.err = domain.ErrSubscriptionLocked

	_, err := f.uc.Apply(context.Background(), createdEvent())
	if !errors.Is(err, domain.ErrSubscriptionLocked) {
		t.Errorf("expected ErrSubscriptionLocked, got %v", err)
	}
	if f.txm.calls != 0 {
		t.Error("locked event must not open a transaction")
	}
	if len(f.replay.forgotten) != 1 {
		t.Error("lock contention must release the replay entry so the retry is processed")
	}
}

func TestApplyRetrySucceedsAfterTransientFailure(t *testing.T) {
	f := newFixture()
	f.subs.upsertErr = errors.New("connection reset")

	if _, err := f.uc.Apply(context.Background(), createdEvent()); err == nil {
		t.Fatal("expected first delivery to fail")
	}
	if len(f.replay.forgotten) != 1 {
		t.Fatal("failed delivery must release its replay entry")
	}

	// the gateway retries the same event id after the 500
	f.subs.upsertErr = nil
	res, err := f.uc.Apply(context.Background(), createdEvent())
	if err != nil {
		t.Fatalf("retry must be processed, got %v", err)
	}
	if res.Duplicate {
		t.Fatal("retry was short-circuited as a replay")
	}
	if !res.Processed {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(f.subs.upserted) != 1 {
		t.Errorf("expected the retry to upsert the subscription, got %d rows", len(f.subs.upserted))
	}
}

func TestApplyRetryBlockedWhenReleaseFails(t *testing.T) {
	f := newFixture()
	f.subs.upsertErr = errors.New("connection reset")
	f.replay.forgetErr = errors.New("redis down")

	if _, err := f.uc.Apply(context.Background(), createdEvent()); err == nil {
		t.Fatal("expected first delivery to fail")
	}
	// release failed, so the entry is still claimed; the failure must not panic
	// and the outcome is a duplicate until the entry expires
	f.subs.upsertErr = nil
	f.replay.forgetErr = nil
	res, err := f.uc.Apply(context.Background(), createdEvent())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Duplicate {
		t.Errorf("entry was never released, expected duplicate, got %+v", res)
	}
}

func TestApplyFailureIsAudited(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}
	f.subs.updateErr = errors.New("db down")

	later := time.Now().UTC().Add(time.Hour)
	_, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas", EventID: "evt_fail_1", Type: model.EventSubscriptionCancelled,
		Data: model.EventData{SubscriptionID: "sub_1", OccurredAt: &later},
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	last := f.audit.entries[len(f.audit.entries)-1]
	if last.Success {
		t.Error("failure audit must record success=false")
	}
	if last.Details["error"] == nil {
		t.Error("failure audit must carry the error")
	}
}

func TestApplyUpdatedMapsUnknownStatusToPastDue(t *testing.T) {
	f := newFixture()
	if _, err := f.uc.Apply(context.Background(), createdEvent()); err != nil {
		t.Fatal(err)
	}

	later := time.Now().UTC().Add(time.Hour)
	res, err := f.uc.Apply(context.Background(), &model.CanonicalEvent{
		Gateway: "asaas", EventID: "evt_upd_1", Type: model.EventSubscriptionUpdated,
		Data: model.EventData{SubscriptionID: "sub_1", Status: "brand_new_status", OccurredAt: &later},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Processed {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := f.subs.statusUpdates[0].status; got != model.SubscriptionStatusPastDue {
		t.Errorf("unknown gateway status must map to past_due, got %q", got)
	}
}
