package repository

import (
	"context"

	"acolheaqui-billing/internal/domain/model"
)

type PaymentRepository interface {
	// InsertIfAbsent inserts the payment unless a row with the same
	// gateway_payment_id exists. Returns false when the insert was skipped.
	InsertIfAbsent(ctx context.Context, tx Tx, p *model.Payment) (bool, error)
	FindByGatewayPaymentID(ctx context.Context, tx Tx, gatewayPaymentID string) (*model.Payment, error)
	MarkRefunded(ctx context.Context, tx Tx, id string) error
	// SumByPeriod totals approved payments since the start of the given
	// date_trunc period ("week", "month", "year").
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
