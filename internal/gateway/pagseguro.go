package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
)

var pagSeguroEventTypes = map[string]model.CanonicalEventType{
	"SUBSCRIPTION.CREATED":        model.EventSubscriptionCreated,
	"SUBSCRIPTION.UPDATED":        model.EventSubscriptionUpdated,
	"SUBSCRIPTION.STATUS_CHANGED": model.EventSubscriptionUpdated,
	"SUBSCRIPTION.CANCELED":       model.EventSubscriptionCancelled,
	"CHARGE.PAID":                 model.EventPaymentSucceeded,
	"CHARGE.DECLINED":             model.EventPaymentFailed,
	"CHARGE.OVERDUE":              model.EventPaymentOverdue,
	"CHARGE.REFUNDED":             model.EventPaymentRefunded,
}

type pagSeguroPayload struct {
	ID           string `json:"id"`
	Event        string `json:"event"`
	CreatedAt    string `json:"created_at"`
	Subscription struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Customer    string `json:"customer"`
		NextInvoice string `json:"next_invoice_at"`
		Amount      struct {
			Value    int64  `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Reference string `json:"reference_id"`
	} `json:"subscription"`
	Charge struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		SubscriptionID string `json:"subscription_id"`
		PaidAt         string `json:"paid_at"`
		Amount         struct {
			Value    int64  `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		PaymentMethod struct {
			Type string `json:"type"`
		} `json:"payment_method"`
		Reference string `json:"reference_id"`
	} `json:"charge"`
}

type pagSeguroParser struct {
	secret string
	log    *zerolog.Logger
}

func NewPagSeguroParser(secret string, logger *zerolog.Logger) *pagSeguroParser {
	return &pagSeguroParser{secret: secret, log: logger}
}

func (p *pagSeguroParser) Name() string { return "pagseguro" }

// Verify checks the x-authenticity-token header, an HMAC-SHA256 of the raw
// body under the account's webhook secret.
func (p *pagSeguroParser) Verify(body []byte, header http.Header) error {
	if p.secret == "" {
		p.log.Warn().Str("gateway", p.Name()).Msg("webhook secret not configured, skipping signature verification")
		return nil
	}
	if !signatureEqual(hmacSHA256Hex(p.secret, body), header.Get("x-authenticity-token")) {
		return errInvalidSignature(nil)
	}
	return nil
}

func (p *pagSeguroParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var payload pagSeguroPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errMalformed(err)
	}

	canonical, ok := pagSeguroEventTypes[payload.Event]
	if !ok {
		canonical = model.CanonicalEventType(payload.Event)
	}

	ev := &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: payload.ID,
		Type:    canonical,
		Data: model.EventData{
			OccurredAt: parseTimestamp(payload.CreatedAt),
			Raw:        body,
		},
	}

	if payload.Subscription.ID != "" {
		ev.Data.SubscriptionID = payload.Subscription.ID
		ev.Data.CustomerID = payload.Subscription.Customer
		ev.Data.Status = payload.Subscription.Status
		ev.Data.Amount = payload.Subscription.Amount.Value
		ev.Data.Currency = firstNonEmpty(payload.Subscription.Amount.Currency, "BRL")
		ev.Data.ProfessionalID = payload.Subscription.Reference
		ev.Data.PeriodEnd = parseTimestamp(payload.Subscription.NextInvoice)
	}
	if payload.Charge.ID != "" {
		ev.Data.PaymentID = payload.Charge.ID
		ev.Data.SubscriptionID = firstNonEmpty(payload.Charge.SubscriptionID, ev.Data.SubscriptionID)
		ev.Data.Status = firstNonEmpty(payload.Charge.Status, ev.Data.Status)
		ev.Data.Amount = payload.Charge.Amount.Value
		ev.Data.Currency = firstNonEmpty(payload.Charge.Amount.Currency, "BRL")
		ev.Data.PaymentMethod = payload.Charge.PaymentMethod.Type
		ev.Data.ProfessionalID = firstNonEmpty(payload.Charge.Reference, ev.Data.ProfessionalID)
		if at := parseTimestamp(payload.Charge.PaidAt); at != nil {
			ev.Data.OccurredAt = at
		}
	}
	return ev, nil
}
