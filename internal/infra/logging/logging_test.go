//go:build !integration

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithAttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "req-123")
	ctx = WithGateway(ctx, "asaas")
	ctx = WithEventID(ctx, "evt_1")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"req-123"`, `"gateway":"asaas"`, `"event_id":"evt_1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestWithSkipsEmptyValues(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "")
	ctx = WithGateway(ctx, "stripe")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	if strings.Contains(out, "trace_id") || strings.Contains(out, "event_id") {
		t.Errorf("empty fields must be skipped: %s", out)
	}
	if !strings.Contains(out, `"gateway":"stripe"`) {
		t.Errorf("gateway field missing: %s", out)
	}
}
