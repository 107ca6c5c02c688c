package logctx

import (
	"context"
	"testing"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestWithAndFrom(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, From(ctx))

	fallback := observability.NopLogger()
	assert.Equal(t, fallback, FromOr(ctx, fallback))

	assert.Equal(t, ctx, With(ctx, nil))

	logger := observability.NopLogger().With(observability.F("k", "v"))
	assert.Equal(t, logger, From(With(ctx, logger)))
}

func TestTraceFields(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0xa},
		SpanID:  trace.SpanID{0xb},
	})
	fields := TraceFields(trace.ContextWithSpanContext(context.Background(), sc))
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "trace_id", fields[0].Key)
		assert.Equal(t, sc.TraceID().String(), fields[0].Value)
		assert.Equal(t, "span_id", fields[1].Key)
	}
}
