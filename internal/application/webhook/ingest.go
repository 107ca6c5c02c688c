package webhook

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/receipt"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	webhookService = "webhook-ingress"
	useCaseIngest  = "webhook.ingest"
)

// Disposition is what happened to one delivery. The provider is acknowledged in every case.
type Disposition string

const (
	DispositionApplied     Disposition = "applied"
	DispositionDuplicate   Disposition = "duplicate"
	DispositionStale       Disposition = "stale"
	DispositionMalformed   Disposition = "malformed"
	DispositionUnsupported Disposition = "unsupported"
	DispositionRejected    Disposition = "rejected"
	DispositionQueued      Disposition = "queued"
	DispositionDropped     Disposition = "dropped"
	DispositionFailed      Disposition = "failed"
)

// Retrier takes signals that failed transiently.
type Retrier interface {
	Enqueue(sig lifecycle.PaymentSignal) bool
}

type IngestInput struct {
	Provider string
	Body     []byte
}

type IngestResult struct {
	Disposition   Disposition
	Reason        string
	TransactionID string
	Outcome       lifecycle.Outcome
}

// IngestUseCase parses a provider notification and hands it to the lifecycle engine.
type IngestUseCase struct {
	engine    lifecycle.SignalApplier
	retries   Retrier
	publisher *application.EventPublisher
	in        application.Instruments
	malformed observability.Counter // webhook_malformed_total{reason}
}

func NewIngestUseCase(engine lifecycle.SignalApplier, retries Retrier, publisher exchange.Publisher, tel observability.Observability) *IngestUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &IngestUseCase{
		engine:    engine,
		retries:   retries,
		publisher: application.NewEventPublisher(publisher, tel),
		in:        application.NewInstruments(tel, webhookService),
		malformed: tel.Metrics().Counter(observability.MWebhookMalformed),
	}
}

// Execute never returns an error for a bad or refused notification; the result says why it
// was not applied.
func (uc *IngestUseCase) Execute(ctx context.Context, cmd IngestInput) (res *IngestResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseIngest, "IngestWebhook",
		attribute.String("webhook.provider", cmd.Provider),
		attribute.Int("webhook.body_bytes", len(cmd.Body)),
	)
	res = &IngestResult{}
	defer func() {
		run.With(
			observability.F("disposition", string(res.Disposition)),
			observability.F("transaction_id", res.TransactionID),
		)
		if res.Reason != "" {
			run.With(observability.F("reason", res.Reason))
		}
		run.End(err)
	}()

	n, perr := Normalize(cmd.Provider, cmd.Body)
	if perr != nil {
		reason := ReasonInvalidJSON
		var mal *MalformedError
		if errors.As(perr, &mal) {
			reason = mal.Reason
		}
		uc.malformed.Add(1, observability.L("reason", reason))
		run.Logger().Warn("webhook_malformed",
			observability.F("reason", reason),
			observability.Err(perr),
		)
		run.Note("MALFORMED")
		res.Disposition, res.Reason = DispositionMalformed, reason
		return res, nil
	}

	env := n.Common()
	res.TransactionID = env.TransactionID
	run.Logger().Info("webhook_received",
		observability.F("provider", env.Provider),
		observability.F("transaction_id", env.TransactionID),
		observability.F("provider_status", env.ProviderStatus),
		observability.F("signal", string(n.Kind())),
	)

	sig := Signal(n, cmd.Body)
	out, aerr := uc.engine.ApplyPaymentSignal(ctx, sig)
	res.Outcome = out

	// redeliveries answered from a receipt are not announced again
	if aerr != nil || !out.Duplicate {
		_ = uc.publisher.Publish(ctx, payment.WebhookReceivedEvent{
			Provider:      env.Provider,
			TransactionID: env.TransactionID,
			Signal:        n.Kind(),
			ProviderState: env.ProviderStatus,
		})
	}

	switch {
	case aerr == nil && out.Duplicate:
		run.Note("DUPLICATE")
		res.Disposition = DispositionDuplicate
	case aerr == nil && out.Result == receipt.ResultStale:
		run.Note("STALE_SIGNAL")
		res.Disposition = DispositionStale
	case aerr == nil:
		res.Disposition = DispositionApplied
	case errors.Is(aerr, lifecycle.ErrUnsupportedSignal):
		run.Note("UNSUPPORTED_SIGNAL")
		res.Disposition, res.Reason = DispositionUnsupported, env.ProviderStatus
		run.Logger().Warn("webhook_unsupported_signal", observability.F("provider_status", env.ProviderStatus))
	case lifecycle.IsTransient(aerr):
		res.Reason = aerr.Error()
		if uc.retries != nil && uc.retries.Enqueue(sig) {
			run.Note("QUEUED_FOR_RETRY")
			res.Disposition = DispositionQueued
		} else {
			run.Note("DROPPED")
			res.Disposition = DispositionDropped
		}
	default:
		if reason, ok := lifecycle.IsRejection(aerr); ok {
			run.Note("REJECTED")
			res.Disposition, res.Reason = DispositionRejected, reason
		} else {
			run.Note("APPLY_FAILED")
			res.Disposition, res.Reason = DispositionFailed, aerr.Error()
		}
		run.Logger().Warn("webhook_signal_not_applied", observability.Err(aerr))
	}
	return res, nil
}
