package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
)

var pagarmeEventTypes = map[string]model.CanonicalEventType{
	"subscription.created":   model.EventSubscriptionCreated,
	"subscription.updated":   model.EventSubscriptionUpdated,
	"subscription.canceled":  model.EventSubscriptionCancelled,
	"invoice.paid":           model.EventPaymentSucceeded,
	"invoice.payment_failed": model.EventPaymentFailed,
	"invoice.past_due":       model.EventPaymentOverdue,
	"charge.refunded":        model.EventPaymentRefunded,
	"checkout.closed":        model.EventCheckoutCompleted,
}

type pagarmePayload struct {
	ID        string `json:"id"` // hook_...
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		ID       string `json:"id"`
		Code     string `json:"code"` // merchant reference
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Customer struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"customer"`
		Subscription struct {
			ID string `json:"id"`
		} `json:"subscription"`
		PaymentMethod string            `json:"payment_method"`
		NextBillingAt string            `json:"next_billing_at"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"data"`
}

type pagarmeParser struct {
	secret string
	log    *zerolog.Logger
}

func NewPagarmeParser(secret string, logger *zerolog.Logger) *pagarmeParser {
	return &pagarmeParser{secret: secret, log: logger}
}

func (p *pagarmeParser) Name() string { return "pagarme" }

// Verify checks the x-hub-signature header ("sha256=<hex>") against an
// HMAC-SHA256 of the raw body.
func (p *pagarmeParser) Verify(body []byte, header http.Header) error {
	if p.secret == "" {
		p.log.Warn().Str("gateway", p.Name()).Msg("webhook secret not configured, skipping signature verification")
		return nil
	}
	sig := strings.TrimPrefix(header.Get("x-hub-signature"), "sha256=")
	if !signatureEqual(hmacSHA256Hex(p.secret, body), sig) {
		return errInvalidSignature(nil)
	}
	return nil
}

func (p *pagarmeParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var payload pagarmePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errMalformed(err)
	}

	canonical, ok := pagarmeEventTypes[payload.Type]
	if !ok {
		canonical = model.CanonicalEventType(payload.Type)
	}

	ev := &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: payload.ID,
		Type:    canonical,
		Data: model.EventData{
			Status:        payload.Data.Status,
			Amount:        payload.Data.Amount,
			Currency:      firstNonEmpty(payload.Data.Currency, "BRL"),
			CustomerID:    payload.Data.Customer.ID,
			PayerName:     payload.Data.Customer.Name,
			PayerEmail:    payload.Data.Customer.Email,
			PaymentMethod: payload.Data.PaymentMethod,
			OccurredAt:    parseTimestamp(payload.CreatedAt),
			PeriodEnd:     parseTimestamp(payload.Data.NextBillingAt),
			Raw:           body,
		},
	}
	ev.Data.ProfessionalID = firstNonEmpty(payload.Data.Metadata["professional_id"], payload.Data.Code)
	ev.Data.Plan = planFromString(payload.Data.Metadata["plan"])

	if strings.HasPrefix(payload.Type, "subscription.") {
		ev.Data.SubscriptionID = payload.Data.ID
	} else {
		ev.Data.PaymentID = payload.Data.ID
		ev.Data.SubscriptionID = payload.Data.Subscription.ID
	}
	return ev, nil
}
