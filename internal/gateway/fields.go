package gateway

import (
	"fmt"
	"strings"
	"time"

	"acolheaqui-billing/internal/domain"
	"acolheaqui-billing/internal/domain/model"
)

func errMalformed(cause error) error {
	return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, cause)
}

func errInvalidSignature(cause error) error {
	if cause == nil {
		return domain.ErrInvalidSignature
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, cause)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func planFromString(s string) model.PlanTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pro":
		return model.PlanPro
	case "premium":
		return model.PlanPremium
	case "free":
		return model.PlanFree
	default:
		return ""
	}
}

// parseTimestamp accepts the date formats the Brazilian gateways emit:
// RFC3339 with or without sub-second precision, and bare dates.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
