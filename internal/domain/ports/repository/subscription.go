package repository

import (
	"context"
	"time"

	"acolheaqui-billing/internal/domain/model"
)

// SubscriptionRepository persists the one-row-per-professional billing ledger.
type SubscriptionRepository interface {
	// UpsertByProfessional inserts or overwrites the professional's row and
	// returns the stored subscription (existing id preserved on conflict).
	UpsertByProfessional(ctx context.Context, tx Tx, s *model.Subscription) (*model.Subscription, error)
	FindByGatewaySubscriptionID(ctx context.Context, tx Tx, gatewaySubID string) (*model.Subscription, error)
	FindByProfessionalID(ctx context.Context, tx Tx, professionalID string) (*model.Subscription, error)
	// UpdateStatus sets status and, when non-nil, period end, cancel flag and
	// the applied event timestamp.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus, periodEnd *time.Time, cancelAtEnd *bool, eventAt *time.Time) error
	// ListPastDueOlderThan returns past_due subscriptions whose last event is
	// older than the cutoff, for the dunning sweep.
	ListPastDueOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Subscription, error)
}
