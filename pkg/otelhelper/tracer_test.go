package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	tracer, shutdown, err := NewTracer(context.Background(), "autoflow-test", false)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), tracer, "run")
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	require.NoError(t, shutdown(context.Background()))
}

func TestSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), provider.Tracer("test"), "step",
		attribute.String(StepIDKey, "SERVER_LOG"))
	SetError(span, errors.New("boom"), attribute.Int(StepIndexKey, 0))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String(StepIDKey, "SERVER_LOG"))
}
