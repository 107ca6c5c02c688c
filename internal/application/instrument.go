package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

// Instruments holds the RED metrics, tracer and base logger shared by the use cases of one service.
type Instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	return Instruments{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// Logger returns the service logger, for code paths that run outside a use case.
func (in Instruments) Logger() observability.Logger { return in.log }

// Run is one traced use case execution. End must be called exactly once.
type Run struct {
	span    trace.Span
	log     observability.Logger
	in      Instruments
	useCase string
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Begin starts the span and binds a use-case logger to the returned context.
func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))

	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)
	if fields := logctx.TraceFields(ctx); fields != nil {
		logger = logger.With(fields...)
	}
	// downstream stores and publishers pick the same logger up from ctx
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		span:    span,
		log:     logger,
		in:      in,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.log }

func (r *Run) Span() trace.Span { return r.span }

// Fail records a machine-readable status for the use_case_done line and the span.
func (r *Run) Fail(status string) { r.outcome, r.status = "error", status }

// Reject marks an expected refusal, e.g. a transition the state machine does not allow.
func (r *Run) Reject(status string) { r.outcome, r.status = "rejected", status }

// Note sets the status text without changing the outcome.
func (r *Run) Note(status string) { r.status = status }

func (r *Run) With(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == "success" {
		r.outcome, r.status = "error", "ERROR"
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	r.log.Info("use_case_done", fields...)
}
