package repository

import (
	"context"

	"acolheaqui-billing/internal/domain/model"
)

// AuditLogRepository appends to admin_activity_log. Append-only by contract.
type AuditLogRepository interface {
	Append(ctx context.Context, tx Tx, e *model.AuditEntry) error
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.AuditEntry, error)
}
