package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	domexchange "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService       = "order-service"
	useCaseOrderCreate = "order.create"
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

// CreateOrderUseCase is checkout: it prices the cart and stores a pending order.
type CreateOrderUseCase struct {
	repo      domain.Repository
	ids       IDGenerator
	publisher *application.EventPublisher
	in        application.Instruments
	now       func() time.Time
}

func NewCreateOrderUseCase(
	repo domain.Repository,
	ids IDGenerator,
	publisher domexchange.Publisher,
	tel observability.Observability,
) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		repo:      repo,
		ids:       ids,
		publisher: application.NewEventPublisher(publisher, tel),
		in:        application.NewInstruments(tel, orderService),
		now:       time.Now,
	}
}

type ItemInput struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type CreateOrderInput struct {
	Items         []ItemInput
	DeliveryFee   decimal.Decimal
	PaymentMethod string
	Customer      domain.Customer
}

type CreateOrderResult struct {
	Order *domain.Order
}

// Execute validates the cart, stores the order as pending and announces order_created.
// Totals are always recomputed here; client supplied totals are never trusted.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.Int("order.items", len(cmd.Items)),
		attribute.String("order.payment_method", cmd.PaymentMethod),
	)
	defer func() { run.End(err) }()

	if err := checkInput(cmd); err != nil {
		run.Fail("INVALID_INPUT")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	items := make([]domain.Item, len(cmd.Items))
	for i, it := range cmd.Items {
		items[i] = domain.Item{ProductID: it.ProductID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}

	id := uc.ids.NewID()
	run.With(observability.F("order_id", id))

	o, err := domain.New(id, items, cmd.DeliveryFee, cmd.PaymentMethod, cmd.Customer, uc.now())
	if err != nil {
		run.Fail("INVALID_ORDER")
		return nil, fmt.Errorf("%w: %w", application.ErrValidation, err)
	}
	if err := uc.repo.Insert(ctx, o); err != nil {
		run.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}

	if perr := uc.publisher.Publish(ctx, domain.NewCreatedEvent(o)); perr != nil {
		run.With(observability.F("event_publish_error", perr.Error()))
	}
	run.Span().SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.total", o.Total.StringFixed(2)),
	)
	return &CreateOrderResult{Order: o}, nil
}

func checkInput(cmd CreateOrderInput) error {
	if len(cmd.Items) == 0 {
		return application.NewValidation("at least one item is required")
	}
	if _, err := dompayment.ParseMethod(cmd.PaymentMethod); err != nil {
		return application.NewValidation(err.Error())
	}
	if strings.TrimSpace(cmd.Customer.Name) == "" || strings.TrimSpace(cmd.Customer.Address) == "" {
		return application.NewValidation("customer name and address are required")
	}
	return nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
