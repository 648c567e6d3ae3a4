package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, subscription_id, professional_id, amount, gateway, gateway_payment_id, payment_method, status, paid_at, created_at`

// InsertIfAbsent relies on the unique index on gateway_payment_id; a repeated
// delivery of the same charge is a no-op and reports inserted=false.
func (r *paymentRepo) InsertIfAbsent(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	const q = `
INSERT INTO subscription_payments (
  id, subscription_id, professional_id, amount, gateway, gateway_payment_id, payment_method, status, paid_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (gateway_payment_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.SubscriptionID, p.ProfessionalID, p.Amount, p.Gateway, p.GatewayPaymentID,
		p.PaymentMethod, p.Status, p.PaidAt, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) FindByGatewayPaymentID(ctx context.Context, tx repository.Tx, gatewayPaymentID string) (*model.Payment, error) {
	if gatewayPaymentID == "" {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + paymentColumns + ` FROM subscription_payments WHERE gateway_payment_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, gatewayPaymentID)
	if err != nil {
		return nil, err
	}

	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.SubscriptionID, &p.ProfessionalID, &p.Amount, &p.Gateway,
		&p.GatewayPaymentID, &p.PaymentMethod, &p.Status, &p.PaidAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE subscription_payments SET status='refunded' WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM subscription_payments WHERE status='approved' AND paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
