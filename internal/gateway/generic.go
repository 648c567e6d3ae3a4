package gateway

import (
	"encoding/json"
	"net/http"

	"acolheaqui-billing/internal/domain/model"
)

// genericParser handles unrecognized gateway identifiers: a best-effort JSON
// parse keyed on a top-level "type" field. Events land under gateway
// "generic" and unmapped types flow through as no-ops downstream.
type genericParser struct{}

func NewGenericParser() *genericParser { return &genericParser{} }

func (p *genericParser) Name() string { return "generic" }

// Verify is a no-op; there is no signature scheme for an unknown sender.
func (p *genericParser) Verify(_ []byte, _ http.Header) error { return nil }

func (p *genericParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var payload struct {
		ID             string `json:"id"`
		Type           string `json:"type"`
		SubscriptionID string `json:"subscription_id"`
		CustomerID     string `json:"customer_id"`
		ProfessionalID string `json:"professional_id"`
		PaymentID      string `json:"payment_id"`
		Status         string `json:"status"`
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
		OccurredAt     string `json:"occurred_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errMalformed(err)
	}
	return &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: payload.ID,
		Type:    model.CanonicalEventType(payload.Type),
		Data: model.EventData{
			SubscriptionID: payload.SubscriptionID,
			CustomerID:     payload.CustomerID,
			ProfessionalID: payload.ProfessionalID,
			PaymentID:      payload.PaymentID,
			Status:         payload.Status,
			Amount:         payload.Amount,
			Currency:       payload.Currency,
			OccurredAt:     parseTimestamp(payload.OccurredAt),
			Raw:            body,
		},
	}, nil
}
