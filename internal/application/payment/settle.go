package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCasePaymentCapture = "payment.capture"
	useCasePaymentRefund  = "payment.refund"
	useCasePaymentGet     = "payment.get"
)

var ErrNotCapturable = errors.New("payment: only cash payments are captured manually")

// CapturePaymentUseCase settles a cash payment on delivery by feeding an approved signal
// with the recorded amount through the lifecycle engine.
type CapturePaymentUseCase struct {
	payments domain.Repository
	engine   lifecycle.SignalApplier
	in       application.Instruments
}

func NewCapturePaymentUseCase(payments domain.Repository, engine lifecycle.SignalApplier, tel observability.Observability) *CapturePaymentUseCase {
	return &CapturePaymentUseCase{payments: payments, engine: engine, in: application.NewInstruments(tel, paymentService)}
}

func (uc *CapturePaymentUseCase) Execute(ctx context.Context, paymentID string) (_ lifecycle.Outcome, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentCapture, "CapturePayment", attribute.String("payment.id", paymentID))
	defer func() { run.End(err) }()

	p, err := uc.payments.Get(ctx, paymentID)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return lifecycle.Outcome{}, err
	}
	if p.Method != domain.MethodCash {
		run.Reject("NOT_CAPTURABLE")
		return lifecycle.Outcome{}, fmt.Errorf("%w: %s is %s", ErrNotCapturable, p.ID, p.Method)
	}
	return uc.engine.ApplyPaymentSignal(ctx, lifecycle.PaymentSignal{
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Kind:          domain.SignalApproved,
		Amount:        p.Amount,
	})
}

// RefundPaymentUseCase is the administrative refund. It is the only way a payment becomes refunded.
type RefundPaymentUseCase struct {
	payments domain.Repository
	engine   lifecycle.SignalApplier
	in       application.Instruments
}

func NewRefundPaymentUseCase(payments domain.Repository, engine lifecycle.SignalApplier, tel observability.Observability) *RefundPaymentUseCase {
	return &RefundPaymentUseCase{payments: payments, engine: engine, in: application.NewInstruments(tel, paymentService)}
}

func (uc *RefundPaymentUseCase) Execute(ctx context.Context, paymentID string) (_ lifecycle.Outcome, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentRefund, "RefundPayment", attribute.String("payment.id", paymentID))
	defer func() { run.End(err) }()

	p, err := uc.payments.Get(ctx, paymentID)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return lifecycle.Outcome{}, err
	}
	return uc.engine.ApplyPaymentSignal(ctx, lifecycle.PaymentSignal{
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Kind:          domain.SignalRefunded,
		Amount:        p.Amount,
	})
}

type GetPaymentUseCase struct {
	payments domain.Repository
	in       application.Instruments
}

func NewGetPaymentUseCase(payments domain.Repository, tel observability.Observability) *GetPaymentUseCase {
	return &GetPaymentUseCase{payments: payments, in: application.NewInstruments(tel, paymentService)}
}

func (uc *GetPaymentUseCase) Execute(ctx context.Context, paymentID string) (_ *domain.Payment, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentGet, "GetPayment", attribute.String("payment.id", paymentID))
	defer func() { run.End(err) }()

	if paymentID == "" {
		run.Fail("PAYMENT_ID_REQUIRED")
		return nil, application.NewValidation("payment id is required")
	}
	return uc.payments.Get(ctx, paymentID)
}
