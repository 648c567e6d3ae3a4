package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, professional_id, plan, status, gateway, gateway_subscription_id, gateway_customer_id, amount, currency, current_period_start, current_period_end, cancel_at_period_end, event_at, created_at, updated_at`

func (r *subscriptionRepo) UpsertByProfessional(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, error) {
	const q = `
INSERT INTO subscriptions (
  id, professional_id, plan, status, gateway, gateway_subscription_id, gateway_customer_id,
  amount, currency, current_period_start, current_period_end, cancel_at_period_end, event_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (professional_id) DO UPDATE SET
  plan=$3, status=$4, gateway=$5, gateway_subscription_id=$6, gateway_customer_id=$7,
  amount=$8, currency=$9, current_period_start=$10, current_period_end=$11,
  cancel_at_period_end=$12, event_at=$13, updated_at=NOW()
RETURNING id, created_at;`

	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.ProfessionalID, s.Plan, s.Status, s.Gateway, s.GatewaySubscriptionID, s.GatewayCustomerID,
		s.Amount, s.Currency, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.EventAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	out := *s
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return &out, nil
}

func (r *subscriptionRepo) FindByGatewaySubscriptionID(ctx context.Context, tx repository.Tx, gatewaySubID string) (*model.Subscription, error) {
	if gatewaySubID == "" {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE gateway_subscription_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, gatewaySubID)
}

func (r *subscriptionRepo) FindByProfessionalID(ctx context.Context, tx repository.Tx, professionalID string) (*model.Subscription, error) {
	const q = `SELECT ` + subColumns + ` FROM subscriptions WHERE professional_id=$1;`
	return r.queryOne(ctx, tx, q, professionalID)
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, periodEnd *time.Time, cancelAtEnd *bool, eventAt *time.Time) error {
	const q = `
UPDATE subscriptions
   SET status=$2,
       current_period_end=COALESCE($3, current_period_end),
       cancel_at_period_end=COALESCE($4, cancel_at_period_end),
       event_at=COALESCE($5, event_at),
       updated_at=NOW()
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, periodEnd, cancelAtEnd, eventAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) ListPastDueOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + subColumns + `
  FROM subscriptions
 WHERE status='past_due' AND updated_at < $1
 ORDER BY updated_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := row.Scan(
		&s.ID, &s.ProfessionalID, &s.Plan, &s.Status, &s.Gateway, &s.GatewaySubscriptionID,
		&s.GatewayCustomerID, &s.Amount, &s.Currency, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd, &s.EventAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
