package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domorder "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService        = "payment-service"
	useCasePaymentRequest = "payment.request"
	gatewayPeer           = "payment-gateway"
	gatewayEndpoint       = "create_intent"
	gatewayTimeout        = 5 * time.Second
	cashTxPrefix          = "cash-"
)

var (
	ErrOrderNotPayable = errors.New("payment: order does not accept payments")
	ErrGateway         = errors.New("payment: gateway failure")
)

type IDGenerator interface {
	NewID() string
}

type RequestPaymentInput struct {
	OrderID string
	UserID  string
	Method  string
}

// RequestPaymentUseCase opens a payment intent for a pending order. Cash payments get a local
// transaction id and are settled later by CapturePaymentUseCase.
type RequestPaymentUseCase struct {
	orders    domorder.Repository
	payments  domain.Repository
	gateway   domain.Gateway
	ids       IDGenerator
	publisher *application.EventPublisher
	in        application.Instruments
	now       func() time.Time

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewRequestPaymentUseCase(
	orders domorder.Repository,
	payments domain.Repository,
	gateway domain.Gateway,
	ids IDGenerator,
	publisher domexchange.Publisher,
	tel observability.Observability,
) *RequestPaymentUseCase {
	if tel == nil {
		tel = observability.Nop()
	}
	return &RequestPaymentUseCase{
		orders:       orders,
		payments:     payments,
		gateway:      gateway,
		ids:          ids,
		publisher:    application.NewEventPublisher(publisher, tel),
		in:           application.NewInstruments(tel, paymentService),
		now:          time.Now,
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (uc *RequestPaymentUseCase) Execute(ctx context.Context, cmd RequestPaymentInput) (_ *domain.Payment, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentRequest, "RequestPayment",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.method", cmd.Method),
	)
	run.With(observability.F("order_id", cmd.OrderID), observability.F("method", cmd.Method))
	defer func() { run.End(err) }()

	if cmd.OrderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("order id is required")
	}
	method, err := domain.ParseMethod(cmd.Method)
	if err != nil {
		run.Fail("PAYMENT_METHOD_INVALID")
		return nil, fmt.Errorf("%w: %w", application.ErrValidation, err)
	}

	o, err := uc.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		run.Fail("ORDER_LOOKUP_FAILED")
		return nil, err
	}
	if o.Status != domorder.StatusPending || o.IsPaid {
		run.Fail("ORDER_NOT_PAYABLE")
		return nil, fmt.Errorf("%w: order %s is %s", ErrOrderNotPayable, o.ID, o.Status)
	}
	if active, aerr := uc.payments.FindActiveByOrder(ctx, o.ID); aerr == nil {
		run.Fail("ACTIVE_PAYMENT")
		return nil, fmt.Errorf("%w: %s", domain.ErrActivePayment, active.ID)
	} else if !errors.Is(aerr, domain.ErrNotFound) {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return nil, aerr
	}

	p, err := domain.New(uc.ids.NewID(), o.ID, cmd.UserID, o.Total, method, uc.now())
	if err != nil {
		run.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, fmt.Errorf("%w: %w", application.ErrValidation, err)
	}

	if method == domain.MethodCash {
		p.TransactionID = cashTxPrefix + p.ID
	} else {
		intent, gerr := uc.createIntent(ctx, domain.IntentRequest{
			PaymentID: p.ID,
			OrderID:   o.ID,
			Amount:    p.Amount,
			Method:    method,
		})
		if gerr != nil {
			run.Fail("GATEWAY_FAILED")
			return nil, fmt.Errorf("%w: %w", ErrGateway, gerr)
		}
		p.TransactionID = intent.TransactionID
		p.PixCode = intent.PixCode
		p.PixExpiration = intent.PixExpiration
	}

	if err := uc.payments.Insert(ctx, p); err != nil {
		run.Fail("REPO_INSERT_FAILED")
		return nil, err
	}
	run.With(observability.F("payment_id", p.ID), observability.F("transaction_id", p.TransactionID))

	if perr := uc.publisher.Publish(ctx, domain.NewCreatedEvent(p)); perr != nil {
		run.With(observability.F("event_publish_error", perr.Error()))
	}
	return p, nil
}

func (uc *RequestPaymentUseCase) createIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()

	start := time.Now()
	intent, err := uc.gateway.CreateIntent(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	uc.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", gatewayEndpoint),
	)
	return intent, err
}
