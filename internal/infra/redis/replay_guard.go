package redis

import (
	"context"
	"time"
)

// ReplayGuard remembers gateway event ids so the same delivery is only
// reconciled once. Entries expire after the retention window; beyond that
// the storage-level unique keys still keep replays harmless.
type ReplayGuard struct {
	cli       RedisClient
	retention time.Duration
}

func NewReplayGuard(cli RedisClient, retention time.Duration) *ReplayGuard {
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &ReplayGuard{cli: cli, retention: retention}
}

// FirstDelivery returns true exactly once per (gateway, eventID) pair within
// the retention window.
func (g *ReplayGuard) FirstDelivery(ctx context.Context, gateway, eventID string) (bool, error) {
	return g.cli.SetNX(ctx, eventKey(gateway, eventID), 1, g.retention)
}

// Forget releases an event id claimed by FirstDelivery. Called when
// reconciliation fails, so the gateway's retry of the same delivery is not
// rejected as a replay.
func (g *ReplayGuard) Forget(ctx context.Context, gateway, eventID string) error {
	return g.cli.Del(ctx, eventKey(gateway, eventID))
}

func eventKey(gateway, eventID string) string {
	return "webhook:event:" + gateway + ":" + eventID
}
