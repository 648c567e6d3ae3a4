package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
)

// Mercado Pago keys its tables on "type.action"; bare types arrive for
// preapproval (subscription) notifications without an action suffix.
var mercadoPagoEventTypes = map[string]model.CanonicalEventType{
	"subscription_preapproval.created": model.EventSubscriptionCreated,
	"subscription_preapproval.updated": model.EventSubscriptionUpdated,
	"subscription_preapproval":         model.EventSubscriptionUpdated,
	"payment.created":                  model.EventPaymentSucceeded,
	"payment.updated":                  model.EventPaymentSucceeded,
	"payment.refunded":                 model.EventPaymentRefunded,
}

type mercadoPagoPayload struct {
	ID          json.Number `json:"id"`
	Type        string      `json:"type"`
	Action      string      `json:"action"`
	DateCreated string      `json:"date_created"`
	Data        struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
		PreapprovalID     string      `json:"preapproval_id"`
		PayerID           json.Number `json:"payer_id"`
		PayerEmail        string      `json:"payer_email"`
		TransactionAmount float64     `json:"transaction_amount"`
		CurrencyID        string      `json:"currency_id"`
		PaymentTypeID     string      `json:"payment_type_id"`
		NextPaymentDate   string      `json:"next_payment_date"`
		Reason            string      `json:"reason"`
	} `json:"data"`
}

type mercadoPagoParser struct {
	secret string
	log    *zerolog.Logger
}

func NewMercadoPagoParser(secret string, logger *zerolog.Logger) *mercadoPagoParser {
	return &mercadoPagoParser{secret: secret, log: logger}
}

func (p *mercadoPagoParser) Name() string { return "mercadopago" }

// Verify implements Mercado Pago's x-signature v1 scheme: the signed manifest
// is "id:<data.id>;request-id:<x-request-id>;ts:<ts>;" and the header carries
// "ts=<ts>,v1=<hmac>".
func (p *mercadoPagoParser) Verify(body []byte, header http.Header) error {
	if p.secret == "" {
		p.log.Warn().Str("gateway", p.Name()).Msg("webhook secret not configured, skipping signature verification")
		return nil
	}
	sig := header.Get("x-signature")
	if sig == "" {
		return errInvalidSignature(nil)
	}
	var ts, v1 string
	for _, part := range strings.Split(sig, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return errInvalidSignature(nil)
	}

	var payload mercadoPagoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errMalformed(err)
	}
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;",
		strings.ToLower(payload.Data.ID.String()), header.Get("x-request-id"), ts)
	if !signatureEqual(hmacSHA256Hex(p.secret, []byte(manifest)), v1) {
		return errInvalidSignature(nil)
	}
	return nil
}

func (p *mercadoPagoParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var payload mercadoPagoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errMalformed(err)
	}

	native := payload.Type
	if payload.Action != "" {
		native = payload.Action
	}
	canonical, ok := mercadoPagoEventTypes[native]
	if !ok {
		canonical = model.CanonicalEventType(native)
	}
	// payment.updated only means money moved when the embedded status says so
	if payload.Action == "payment.updated" {
		switch payload.Data.Status {
		case "refunded":
			canonical = model.EventPaymentRefunded
		case "rejected", "cancelled":
			canonical = model.EventPaymentFailed
		}
	}
	if payload.Type == "subscription_preapproval" && payload.Data.Status == "cancelled" {
		canonical = model.EventSubscriptionCancelled
	}

	ev := &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: payload.ID.String(),
		Type:    canonical,
		Data: model.EventData{
			Status:         payload.Data.Status,
			ProfessionalID: payload.Data.ExternalReference,
			CustomerID:     payload.Data.PayerID.String(),
			PayerEmail:     payload.Data.PayerEmail,
			Amount:         int64(math.Round(payload.Data.TransactionAmount * 100)),
			Currency:       firstNonEmpty(payload.Data.CurrencyID, "BRL"),
			PaymentMethod:  payload.Data.PaymentTypeID,
			OccurredAt:     parseTimestamp(payload.DateCreated),
			PeriodEnd:      parseTimestamp(payload.Data.NextPaymentDate),
			Raw:            body,
		},
	}
	if payload.Type == "subscription_preapproval" {
		ev.Data.SubscriptionID = payload.Data.ID.String()
		ev.Data.Plan = planFromString(payload.Data.Reason)
	} else {
		ev.Data.PaymentID = payload.Data.ID.String()
		ev.Data.SubscriptionID = payload.Data.PreapprovalID
	}
	return ev, nil
}
