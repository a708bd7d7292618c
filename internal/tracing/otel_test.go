package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpanPropagatesTraceID(t *testing.T) {
	if err := InitOpenTelemetry("turbogenius-test"); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "turbogenius.test", "test.span", attribute.String("k", "v"))
	defer span.End()

	if GetTraceID(ctx) == "" {
		t.Error("Expected trace ID from span context")
	}
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")

	ctx, span := StartSpan(ctx, "turbogenius.test", "test.span")
	defer span.End()

	if GetTraceID(ctx) != "existing" {
		t.Errorf("Expected existing trace ID, got %s", GetTraceID(ctx))
	}
}
