//go:build !integration

package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

// ===== Hand-rolled mocks =====

type mockSubscriptionRepo struct {
	byGatewayID map[string]*model.Subscription

	upserted      []*model.Subscription
	statusUpdates []statusUpdate
	upsertErr     error
	updateErr     error
}

type statusUpdate struct {
	id        string
	status    model.SubscriptionStatus
	periodEnd *time.Time
	cancel    *bool
	eventAt   *time.Time
}

func newMockSubscriptionRepo() *mockSubscriptionRepo {
	return &mockSubscriptionRepo{byGatewayID: make(map[string]*model.Subscription)}
}

func (m *mockSubscriptionRepo) UpsertByProfessional(_ context.Context, _ repository.Tx, s *model.Subscription) (*model.Subscription, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserted = append(m.upserted, s)
	stored := *s
	m.byGatewayID[s.GatewaySubscriptionID] = &stored
	return &stored, nil
}

func (m *mockSubscriptionRepo) FindByGatewaySubscriptionID(_ context.Context, _ repository.Tx, gatewaySubID string) (*model.Subscription, error) {
	if s, ok := m.byGatewayID[gatewaySubID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionRepo) FindByProfessionalID(_ context.Context, _ repository.Tx, professionalID string) (*model.Subscription, error) {
	for _, s := range m.byGatewayID {
		if s.ProfessionalID == professionalID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.SubscriptionStatus, periodEnd *time.Time, cancelAtEnd *bool, eventAt *time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusUpdates = append(m.statusUpdates, statusUpdate{id, status, periodEnd, cancelAtEnd, eventAt})
	return nil
}

func (m *mockSubscriptionRepo) ListPastDueOlderThan(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	var out []*model.Subscription
	for _, s := range m.byGatewayID {
		if s.Status == model.SubscriptionStatusPastDue {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockPaymentRepo struct {
	byGatewayID map[string]*model.Payment

	inserted  []*model.Payment
	refunded  []string
	insertErr error
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{byGatewayID: make(map[string]*model.Payment)}
}

func (m *mockPaymentRepo) InsertIfAbsent(_ context.Context, _ repository.Tx, p *model.Payment) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if _, ok := m.byGatewayID[p.GatewayPaymentID]; ok {
		return false, nil
	}
	cp := *p
	m.byGatewayID[p.GatewayPaymentID] = &cp
	m.inserted = append(m.inserted, &cp)
	return true, nil
}

func (m *mockPaymentRepo) FindByGatewayPaymentID(_ context.Context, _ repository.Tx, gatewayPaymentID string) (*model.Payment, error) {
	if p, ok := m.byGatewayID[gatewayPaymentID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) MarkRefunded(_ context.Context, _ repository.Tx, id string) error {
	m.refunded = append(m.refunded, id)
	for _, p := range m.byGatewayID {
		if p.ID == id {
			p.Status = model.PaymentStatusRefunded
		}
	}
	return nil
}

func (m *mockPaymentRepo) SumByPeriod(_ context.Context, _ repository.Tx, period string) (int64, error) {
	var sum int64
	for _, p := range m.byGatewayID {
		if p.Status == model.PaymentStatusApproved {
			sum += p.Amount
		}
	}
	return sum, nil
}

type billingUpdate struct {
	professionalID string
	plan           model.PlanTier
	status         model.SubscriptionStatus
}

type mockProfileRepo struct {
	updates []billingUpdate
	err     error
}

func (m *mockProfileRepo) UpdateBilling(_ context.Context, _ repository.Tx, professionalID string, plan model.PlanTier, status model.SubscriptionStatus) error {
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, billingUpdate{professionalID, plan, status})
	return nil
}

type mockAuditRepo struct {
	entries []*model.AuditEntry
}

func (m *mockAuditRepo) Append(_ context.Context, _ repository.Tx, e *model.AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, _ repository.Tx, offset, limit int) ([]*model.AuditEntry, error) {
	return m.entries, nil
}

func (m *mockAuditRepo) actions() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// mockTxManager runs the function directly; repositories accept nil tx.
type mockTxManager struct{ calls int }

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	return fn(ctx, repository.NoTX)
}

type mockLocker struct {
	locked   []string
	unlocked []string
	err      error
}

func (m *mockLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.locked = append(m.locked, key)
	return "tok", nil
}

func (m *mockLocker) Unlock(_ context.Context, key, _ string) error {
	m.unlocked = append(m.unlocked, key)
	return nil
}

type mockReplayGuard struct {
	seen      map[string]bool
	forgotten []string
	err       error
	forgetErr error
}

func (m *mockReplayGuard) FirstDelivery(_ context.Context, gateway, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := gateway + ":" + eventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockReplayGuard) Forget(_ context.Context, gateway, eventID string) error {
	if m.forgetErr != nil {
		return m.forgetErr
	}
	key := gateway + ":" + eventID
	delete(m.seen, key)
	m.forgotten = append(m.forgotten, key)
	return nil
}

// Compile-time checks
var (
	_ repository.SubscriptionRepository = (*mockSubscriptionRepo)(nil)
	_ repository.PaymentRepository      = (*mockPaymentRepo)(nil)
	_ repository.ProfileRepository      = (*mockProfileRepo)(nil)
	_ repository.AuditLogRepository     = (*mockAuditRepo)(nil)
	_ repository.TransactionManager     = (*mockTxManager)(nil)
	_ SubscriptionLocker                = (*mockLocker)(nil)
	_ ReplayGuard                       = (*mockReplayGuard)(nil)
)
