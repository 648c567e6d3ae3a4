package model

import "time"

// AuditEntry is an append-only record of a processed webhook. Entries are
// never mutated or deleted by this service.
type AuditEntry struct {
	ID         string // ULID, sortable by creation time
	Action     string // e.g. "webhook_payment_succeeded", "dunning_expired"
	EntityType string // "subscription" | "payment"
	EntityID   *string
	Success    bool
	Details    map[string]any // serialized as JSONB
	CreatedAt  time.Time
}
