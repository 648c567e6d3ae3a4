package model

import "time"

// CanonicalEventType is the platform's gateway-agnostic billing event vocabulary.
// Parsers map each gateway's native event names onto these; native names with
// no mapping pass through verbatim and are treated as no-ops downstream.
type CanonicalEventType string

const (
	EventSubscriptionCreated   CanonicalEventType = "subscription_created"
	EventSubscriptionUpdated   CanonicalEventType = "subscription_updated"
	EventSubscriptionCancelled CanonicalEventType = "subscription_cancelled"
	EventSubscriptionRenewed   CanonicalEventType = "subscription_renewed"
	EventPaymentSucceeded      CanonicalEventType = "payment_succeeded"
	EventPaymentFailed         CanonicalEventType = "payment_failed"
	EventPaymentOverdue        CanonicalEventType = "payment_overdue"
	EventPaymentRefunded       CanonicalEventType = "payment_refunded"
	EventCheckoutCompleted     CanonicalEventType = "checkout_completed"
)

// Known reports whether t belongs to the canonical vocabulary.
func (t CanonicalEventType) Known() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled,
		EventSubscriptionRenewed, EventPaymentSucceeded, EventPaymentFailed,
		EventPaymentOverdue, EventPaymentRefunded, EventCheckoutCompleted:
		return true
	}
	return false
}

// EventData is the normalized field set every parser produces, regardless of
// gateway. Fields a gateway does not supply stay at their zero value.
type EventData struct {
	SubscriptionID string // gateway-assigned subscription id
	CustomerID     string // gateway-assigned customer/payer id
	PayerEmail     string
	PayerName      string
	ProfessionalID string // platform user id, from metadata / external_reference
	Plan           PlanTier
	Status         string // gateway-native status string, mapped later
	Amount         int64  // minor currency units
	Currency       string
	PaymentID      string // gateway-assigned charge/payment id
	PaymentMethod  string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	CancelAtEnd    bool
	OccurredAt     *time.Time // gateway event timestamp; nil when not provided
	Raw            []byte     // original payload, retained for audit/debug
}

// CanonicalEvent is the internal representation of a billing webhook.
type CanonicalEvent struct {
	Gateway string
	// EventID is the gateway's delivery/event identifier, used for replay
	// detection. Empty when the gateway does not provide one.
	EventID string
	Type    CanonicalEventType
	Data    EventData
}
