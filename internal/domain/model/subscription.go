package model

import (
	"time"

	"acolheaqui-billing/internal/domain"
)

type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPro     PlanTier = "pro"
	PlanPremium PlanTier = "premium"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is a professional's billing relationship with the platform.
// At most one row exists per professional (upsert on ProfessionalID); rows
// are never hard-deleted, status moves to cancelled/expired instead.
type Subscription struct {
	ID                    string // UUID
	ProfessionalID        string
	Plan                  PlanTier
	Status                SubscriptionStatus
	Gateway               string
	GatewaySubscriptionID string
	GatewayCustomerID     string
	Amount                int64 // minor currency units
	Currency              string
	CurrentPeriodStart    *time.Time
	CurrentPeriodEnd      *time.Time
	CancelAtPeriodEnd     bool
	// EventAt is the gateway timestamp of the last event applied to this row.
	// Updates carrying an older timestamp are rejected as stale.
	EventAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription builds a subscription from a creation/checkout event.
func NewSubscription(id string, ev *CanonicalEvent) (*Subscription, error) {
	if id == "" || ev == nil || ev.Data.ProfessionalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	plan := ev.Data.Plan
	if plan == "" {
		plan = PlanPro
	}
	status := MapGatewayStatus(ev.Data.Status)
	if ev.Data.Status == "" {
		status = SubscriptionStatusActive
	}
	return &Subscription{
		ID:                    id,
		ProfessionalID:        ev.Data.ProfessionalID,
		Plan:                  plan,
		Status:                status,
		Gateway:               ev.Gateway,
		GatewaySubscriptionID: ev.Data.SubscriptionID,
		GatewayCustomerID:     ev.Data.CustomerID,
		Amount:                ev.Data.Amount,
		Currency:              ev.Data.Currency,
		CurrentPeriodStart:    ev.Data.PeriodStart,
		CurrentPeriodEnd:      ev.Data.PeriodEnd,
		CancelAtPeriodEnd:     ev.Data.CancelAtEnd,
		EventAt:               ev.Data.OccurredAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// StaleAgainst reports whether an event timestamp is older than the state
// already applied to the subscription. Events without a timestamp are never
// considered stale.
func (s *Subscription) StaleAgainst(occurredAt *time.Time) bool {
	if occurredAt == nil || s.EventAt == nil {
		return false
	}
	return occurredAt.Before(*s.EventAt)
}

// MapGatewayStatus folds gateway-native status strings into the platform's
// five-state vocabulary. Unknown inputs map to past_due: a status we cannot
// interpret must not silently grant access.
func MapGatewayStatus(native string) SubscriptionStatus {
	switch native {
	case "active", "authorized", "approved", "paid", "CONFIRMED", "RECEIVED", "ACTIVE":
		return SubscriptionStatusActive
	case "trialing", "in_trial", "trial":
		return SubscriptionStatusTrialing
	case "past_due", "unpaid", "overdue", "suspended", "paused", "OVERDUE", "pending":
		return SubscriptionStatusPastDue
	case "canceled", "cancelled", "CANCELLED", "ended":
		return SubscriptionStatusCancelled
	case "expired", "incomplete_expired", "EXPIRED", "inactive":
		return SubscriptionStatusExpired
	default:
		return SubscriptionStatusPastDue
	}
}
