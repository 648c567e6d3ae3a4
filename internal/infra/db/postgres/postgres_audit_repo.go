package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
	"acolheaqui-billing/internal/domain/ports/repository"
)

var _ repository.AuditLogRepository = (*auditLogRepo)(nil)

type auditLogRepo struct{ pool *pgxpool.Pool }

func NewAuditLogRepo(pool *pgxpool.Pool) *auditLogRepo {
	return &auditLogRepo{pool: pool}
}

func (r *auditLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	const q = `
INSERT INTO admin_activity_log (id, action, entity_type, entity_id, success, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Action, e.EntityType, e.EntityID, e.Success, e.Details, e.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *auditLogRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const q = `
SELECT id, action, entity_type, entity_id, success, details, created_at
  FROM admin_activity_log
 ORDER BY id DESC
 OFFSET $1 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.Success, &e.Details, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
