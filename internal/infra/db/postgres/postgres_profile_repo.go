package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct{ pool *pgxpool.Pool }

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

// UpdateBilling mirrors plan/status onto the profile row. The profile itself
// is owned by the main application; only the billing columns are touched.
func (r *profileRepo) UpdateBilling(ctx context.Context, tx repository.Tx, professionalID string, plan model.PlanTier, status model.SubscriptionStatus) error {
	const q = `UPDATE profiles SET plan=$2, subscription_status=$3, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, professionalID, plan, status)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
