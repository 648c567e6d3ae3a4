package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
)

var asaasEventTypes = map[string]model.CanonicalEventType{
	"SUBSCRIPTION_CREATED":     model.EventSubscriptionCreated,
	"SUBSCRIPTION_UPDATED":     model.EventSubscriptionUpdated,
	"SUBSCRIPTION_INACTIVATED": model.EventSubscriptionCancelled,
	"SUBSCRIPTION_DELETED":     model.EventSubscriptionCancelled,
	"PAYMENT_RECEIVED":         model.EventPaymentSucceeded,
	"PAYMENT_CONFIRMED":        model.EventPaymentSucceeded,
	"PAYMENT_OVERDUE":          model.EventPaymentOverdue,
	"PAYMENT_REFUNDED":         model.EventPaymentRefunded,
}

// asaasPayload covers both payment and subscription webhooks; Asaas sends
// amounts in centavos on the platform's accounts.
type asaasPayload struct {
	ID      string `json:"id"` // event id, evt_...
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		Customer          string `json:"customer"`
		Subscription      string `json:"subscription"`
		Value             int64  `json:"value"`
		BillingType       string `json:"billingType"`
		Status            string `json:"status"`
		PaymentDate       string `json:"paymentDate"`
		DateCreated       string `json:"dateCreated"`
		ExternalReference string `json:"externalReference"`
	} `json:"payment"`
	Subscription struct {
		ID                string `json:"id"`
		Customer          string `json:"customer"`
		Value             int64  `json:"value"`
		Status            string `json:"status"`
		NextDueDate       string `json:"nextDueDate"`
		Cycle             string `json:"cycle"`
		DateCreated       string `json:"dateCreated"`
		ExternalReference string `json:"externalReference"`
	} `json:"subscription"`
	DateCreated string `json:"dateCreated"`
}

type asaasParser struct {
	token string
	log   *zerolog.Logger
}

func NewAsaasParser(token string, logger *zerolog.Logger) *asaasParser {
	return &asaasParser{token: token, log: logger}
}

func (p *asaasParser) Name() string { return "asaas" }

// Verify checks the asaas-access-token header against the configured value.
// Asaas does not sign payloads; the shared token is its authenticity scheme.
func (p *asaasParser) Verify(body []byte, header http.Header) error {
	if p.token == "" {
		p.log.Warn().Str("gateway", p.Name()).Msg("webhook token not configured, skipping verification")
		return nil
	}
	if !signatureEqual(p.token, header.Get("asaas-access-token")) {
		return errInvalidSignature(nil)
	}
	return nil
}

func (p *asaasParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var payload asaasPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errMalformed(err)
	}

	canonical, ok := asaasEventTypes[payload.Event]
	if !ok {
		canonical = model.CanonicalEventType(payload.Event)
	}

	ev := &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: payload.ID,
		Type:    canonical,
		Data: model.EventData{
			OccurredAt: parseTimestamp(payload.DateCreated),
			Raw:        body,
		},
	}

	if payload.Subscription.ID != "" {
		ev.Data.SubscriptionID = payload.Subscription.ID
		ev.Data.CustomerID = payload.Subscription.Customer
		ev.Data.Amount = payload.Subscription.Value
		ev.Data.Status = payload.Subscription.Status
		ev.Data.ProfessionalID = payload.Subscription.ExternalReference
		ev.Data.PeriodEnd = parseTimestamp(payload.Subscription.NextDueDate)
		if ev.Data.OccurredAt == nil {
			ev.Data.OccurredAt = parseTimestamp(payload.Subscription.DateCreated)
		}
	}
	if payload.Payment.ID != "" {
		ev.Data.PaymentID = payload.Payment.ID
		ev.Data.SubscriptionID = firstNonEmpty(payload.Payment.Subscription, ev.Data.SubscriptionID)
		ev.Data.CustomerID = firstNonEmpty(payload.Payment.Customer, ev.Data.CustomerID)
		ev.Data.Amount = payload.Payment.Value
		ev.Data.Status = payload.Payment.Status
		ev.Data.PaymentMethod = payload.Payment.BillingType
		ev.Data.ProfessionalID = firstNonEmpty(payload.Payment.ExternalReference, ev.Data.ProfessionalID)
		if ev.Data.OccurredAt == nil {
			ev.Data.OccurredAt = parseTimestamp(firstNonEmpty(payload.Payment.PaymentDate, payload.Payment.DateCreated))
		}
	}
	ev.Data.Currency = "BRL"
	return ev, nil
}
