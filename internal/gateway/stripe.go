package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"acolheaqui-billing/internal/domain/model"
)

var stripeEventTypes = map[string]model.CanonicalEventType{
	"customer.subscription.created": model.EventSubscriptionCreated,
	"customer.subscription.updated": model.EventSubscriptionUpdated,
	"customer.subscription.deleted": model.EventSubscriptionCancelled,
	"invoice.paid":                  model.EventSubscriptionRenewed,
	"invoice.payment_succeeded":     model.EventPaymentSucceeded,
	"invoice.payment_failed":        model.EventPaymentFailed,
	"charge.refunded":               model.EventPaymentRefunded,
	"checkout.session.completed":    model.EventCheckoutCompleted,
}

type stripeParser struct {
	secret string
	log    *zerolog.Logger
}

func NewStripeParser(secret string, logger *zerolog.Logger) *stripeParser {
	return &stripeParser{secret: secret, log: logger}
}

func (p *stripeParser) Name() string { return "stripe" }

func (p *stripeParser) Verify(body []byte, header http.Header) error {
	if p.secret == "" {
		p.log.Warn().Str("gateway", p.Name()).Msg("webhook secret not configured, skipping signature verification")
		return nil
	}
	_, err := webhook.ConstructEventWithOptions(
		body,
		header.Get("Stripe-Signature"),
		p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return errInvalidSignature(err)
	}
	return nil
}

func (p *stripeParser) Parse(body []byte) (*model.CanonicalEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, errMalformed(err)
	}

	canonical, ok := stripeEventTypes[string(event.Type)]
	if !ok {
		canonical = model.CanonicalEventType(event.Type)
	}

	ev := &model.CanonicalEvent{
		Gateway: p.Name(),
		EventID: event.ID,
		Type:    canonical,
		Data:    model.EventData{Raw: body},
	}
	if event.Created > 0 {
		t := time.Unix(event.Created, 0).UTC()
		ev.Data.OccurredAt = &t
	}

	switch canonical {
	case model.EventSubscriptionCreated, model.EventSubscriptionUpdated, model.EventSubscriptionCancelled:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errMalformed(err)
		}
		p.fillFromSubscription(&ev.Data, &sub)
	case model.EventSubscriptionRenewed, model.EventPaymentSucceeded, model.EventPaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errMalformed(err)
		}
		p.fillFromInvoice(&ev.Data, &inv)
	case model.EventPaymentRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, errMalformed(err)
		}
		ev.Data.PaymentID = ch.ID
		ev.Data.Amount = ch.AmountRefunded
		ev.Data.Currency = string(ch.Currency)
		ev.Data.ProfessionalID = ch.Metadata["professional_id"]
	case model.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, errMalformed(err)
		}
		ev.Data.CustomerID = stripeCustomerID(sess.Customer)
		ev.Data.Amount = sess.AmountTotal
		ev.Data.Currency = string(sess.Currency)
		ev.Data.ProfessionalID = firstNonEmpty(sess.Metadata["professional_id"], sess.ClientReferenceID)
		ev.Data.Plan = planFromString(sess.Metadata["plan"])
		if sess.Subscription != nil {
			ev.Data.SubscriptionID = sess.Subscription.ID
		}
		if sess.CustomerDetails != nil {
			ev.Data.PayerEmail = sess.CustomerDetails.Email
			ev.Data.PayerName = sess.CustomerDetails.Name
		}
	}
	return ev, nil
}

func (p *stripeParser) fillFromSubscription(d *model.EventData, sub *stripe.Subscription) {
	d.SubscriptionID = sub.ID
	d.CustomerID = stripeCustomerID(sub.Customer)
	d.Status = string(sub.Status)
	d.CancelAtEnd = sub.CancelAtPeriodEnd
	d.ProfessionalID = sub.Metadata["professional_id"]
	d.Plan = planFromString(sub.Metadata["plan"])
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		d.PeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		d.PeriodEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		d.Amount = sub.Items.Data[0].Price.UnitAmount
		d.Currency = string(sub.Items.Data[0].Price.Currency)
	}
}

func (p *stripeParser) fillFromInvoice(d *model.EventData, inv *stripe.Invoice) {
	d.PaymentID = inv.ID
	d.Amount = inv.AmountPaid
	if inv.AmountPaid == 0 {
		d.Amount = inv.AmountDue
	}
	d.Currency = string(inv.Currency)
	d.CustomerID = stripeCustomerID(inv.Customer)
	d.PayerEmail = inv.CustomerEmail
	d.ProfessionalID = inv.Metadata["professional_id"]
	if inv.Subscription != nil {
		d.SubscriptionID = inv.Subscription.ID
	}
}

func stripeCustomerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
