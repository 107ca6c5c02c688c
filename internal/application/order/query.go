package order

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderGet = "order.get"

// GetOrderUseCase reads an order for tracking pages. Reads are not serialized with transitions.
type GetOrderUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewGetOrderUseCase(repo domain.Repository, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, run := uc.in.Begin(ctx, useCaseOrderGet, "GetOrder", attribute.String("order.id", id))
	defer func() { run.End(err) }()

	if id == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, application.NewValidation("order id is required")
	}
	o, err := uc.repo.Get(ctx, id)
	if err != nil {
		if err = wrapRepositoryError(err); errors.Is(err, ErrNotFound) {
			run.Fail("NOT_FOUND")
		}
		return nil, err
	}
	return o, nil
}
