package model

import "time"

type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment records a single charge tied to a subscription. Rows are inserted
// on payment_succeeded events, keyed by the gateway's payment id so repeated
// deliveries of the same charge collapse into one row.
type Payment struct {
	ID               string  // UUID
	SubscriptionID   *string // nil when the charge arrived before the subscription row
	ProfessionalID   string
	Amount           int64 // minor currency units
	Gateway          string
	GatewayPaymentID string
	PaymentMethod    string
	Status           PaymentStatus
	PaidAt           *time.Time
	CreatedAt        time.Time
}
