package application

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"
)

const (
	publishPeer    = "exchange"
	publishTimeout = 300 * time.Millisecond
)

// EventPublisher publishes committed domain events on a best-effort basis. A failed publish is
// logged and counted; it is never retried and never reported as a use case failure.
type EventPublisher struct {
	pub          exchange.Publisher
	log          observability.Logger
	failed       observability.Counter   // exchange_publish_failed_total{event}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewEventPublisher(pub exchange.Publisher, tel observability.Observability) *EventPublisher {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &EventPublisher{
		pub:          pub,
		log:          tel.Logger(),
		failed:       m.Counter(observability.MExchangePublishFailed),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Publish sends events in order and returns the joined publish errors for logging only.
func (p *EventPublisher) Publish(ctx context.Context, events ...exchange.Event) error {
	if p == nil || p.pub == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, p.log)

	var errs []error
	for _, evt := range events {
		name := evt.EventName()
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		start := time.Now()
		outcome := "success"

		err := p.pub.Publish(pubCtx, evt)
		if err == nil && pubCtx.Err() != nil {
			err = pubCtx.Err()
		}
		cancel()

		if err != nil {
			outcome = "error"
			errs = append(errs, err)
			p.failed.Add(1, observability.L("event", name))
			logger.Error("event_publish_failed",
				observability.F("event", name),
				observability.Err(err),
			)
		}
		p.extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", name),
			observability.L("outcome", outcome),
		)
		p.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", name),
		)
	}
	return errors.Join(errs...)
}
