package gateway

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"acolheaqui-billing/internal/domain/model"
)

// Parser translates one gateway's proprietary webhook payload into the
// canonical event shape. Verify runs before Parse; a parser configured
// without a secret skips verification (sandbox mode) and logs at warn.
type Parser interface {
	Name() string
	Verify(body []byte, header http.Header) error
	Parse(body []byte) (*model.CanonicalEvent, error)
}

// Registry resolves the gateway path/query parameter to a parser. Unknown
// gateways fall back to the generic parser, which reads a top-level "type"
// field and records the event under gateway "generic".
type Registry struct {
	parsers map[string]Parser
	generic Parser
	log     *zerolog.Logger
}

// Secrets carries the per-gateway webhook verification material.
type Secrets struct {
	Stripe      string // Stripe endpoint secret (whsec_...)
	MercadoPago string // HMAC secret for the x-signature v1 scheme
	Asaas       string // expected asaas-access-token value
	PagSeguro   string // HMAC secret for the x-authenticity-token header
	Pagarme     string // HMAC secret for the x-hub-signature header
}

func NewRegistry(secrets Secrets, logger *zerolog.Logger) *Registry {
	r := &Registry{parsers: make(map[string]Parser), log: logger}
	for _, p := range []Parser{
		NewStripeParser(secrets.Stripe, logger),
		NewMercadoPagoParser(secrets.MercadoPago, logger),
		NewAsaasParser(secrets.Asaas, logger),
		NewPagSeguroParser(secrets.PagSeguro, logger),
		NewPagarmeParser(secrets.Pagarme, logger),
	} {
		r.parsers[p.Name()] = p
	}
	r.generic = NewGenericParser()
	return r
}

// Lookup returns the parser for the given gateway name, or the generic
// fallback when the name is unrecognized.
func (r *Registry) Lookup(gateway string) Parser {
	name := strings.ToLower(strings.TrimSpace(gateway))
	if p, ok := r.parsers[name]; ok {
		return p
	}
	r.log.Warn().Str("gateway", gateway).Msg("unrecognized gateway, using generic parser")
	return r.generic
}
