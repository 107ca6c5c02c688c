// Package workerpresentation binds loggers for background work that has no inbound request,
// such as signal retries.
package workerpresentation

import (
	"context"
	"sort"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const eventIDKey = "event_id"

// WithEventContext injects a scoped logger for one background execution.
// Dynamic fields only: event_id (generated if empty), trace_id/span_id when valid, plus
// caller-provided low-cardinality attributes such as use_case or signal.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	evtID := attrs[eventIDKey]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := make([]observability.Field, 0, len(attrs)+3)
	fields = append(fields, observability.F(eventIDKey, evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}

	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if k == eventIDKey || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, observability.F(k, attrs[k]))
	}

	return logctx.With(ctx, base.With(fields...))
}

// EventContext adapts WithEventContext to the retry queue, taking trace ids from ctx.
func EventContext(base observability.Logger) lifecycle.ContextDecorator {
	return func(ctx context.Context, attrs map[string]string) context.Context {
		sc := trace.SpanContextFromContext(ctx)
		return WithEventContext(ctx, base, sc.TraceID(), sc.SpanID(), attrs)
	}
}
