package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "archivebot-test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	require.Same(t, tp, otel.GetTracerProvider())
	fields := otel.GetTextMapPropagator().Fields()
	require.Contains(t, fields, "traceparent")

	_, span := Tracer().Start(context.Background(), "unit")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
