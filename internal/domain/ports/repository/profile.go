package repository

import (
	"context"

	"acolheaqui-billing/internal/domain/model"
)

// ProfileRepository mirrors plan/status onto the professional's profile row.
type ProfileRepository interface {
	UpdateBilling(ctx context.Context, tx Tx, professionalID string, plan model.PlanTier, status model.SubscriptionStatus) error
}
