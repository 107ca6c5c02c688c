package order

import (
	"context"
	"errors"
	"testing"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIDs struct{ next string }

func (f fixedIDs) NewID() string { return f.next }

type capture struct{ events []exchange.Event }

func (c *capture) Publish(_ context.Context, e exchange.Event) error {
	c.events = append(c.events, e)
	return nil
}

func checkout() CreateOrderInput {
	return CreateOrderInput{
		Items: []ItemInput{
			{ProductID: "burger", Name: "Burger", UnitPrice: decimal.RequireFromString("12.45"), Quantity: 2},
		},
		DeliveryFee:   decimal.RequireFromString("5.00"),
		PaymentMethod: "pix",
		Customer:      domain.Customer{Name: "Ana", Phone: "+55 11 99999-0000", Address: "Rua A, 1"},
	}
}

func TestCreateOrderPricesAndPublishes(t *testing.T) {
	repo := memory.NewOrderRepository()
	pub := &capture{}
	uc := NewCreateOrderUseCase(repo, fixedIDs{"O1"}, pub, observability.Nop())

	res, err := uc.Execute(context.Background(), checkout())
	require.NoError(t, err)
	assert.Equal(t, "O1", res.Order.ID)
	assert.Equal(t, domain.StatusPending, res.Order.Status)
	assert.Equal(t, "29.90", res.Order.Total.StringFixed(2))
	assert.Equal(t, "24.90", res.Order.Items[0].LineTotal.StringFixed(2))

	stored, err := repo.Get(context.Background(), "O1")
	require.NoError(t, err)
	require.NoError(t, stored.Validate())
	assert.False(t, stored.IsPaid)

	require.Len(t, pub.events, 1)
	created, ok := pub.events[0].(domain.CreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "O1", created.OrderID)
}

func TestCreateOrderValidation(t *testing.T) {
	uc := NewCreateOrderUseCase(memory.NewOrderRepository(), fixedIDs{"O1"}, nil, nil)

	tests := map[string]func(*CreateOrderInput){
		"no items":        func(in *CreateOrderInput) { in.Items = nil },
		"zero quantity":   func(in *CreateOrderInput) { in.Items[0].Quantity = 0 },
		"negative fee":    func(in *CreateOrderInput) { in.DeliveryFee = decimal.NewFromInt(-1) },
		"unknown method":  func(in *CreateOrderInput) { in.PaymentMethod = "boleto" },
		"missing address": func(in *CreateOrderInput) { in.Customer.Address = " " },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := checkout()
			mutate(&in)
			_, err := uc.Execute(context.Background(), in)
			assert.ErrorIs(t, err, application.ErrValidation)
		})
	}
}

func TestCreateOrderDuplicateID(t *testing.T) {
	repo := memory.NewOrderRepository()
	uc := NewCreateOrderUseCase(repo, fixedIDs{"O1"}, nil, nil)

	_, err := uc.Execute(context.Background(), checkout())
	require.NoError(t, err)
	_, err = uc.Execute(context.Background(), checkout())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetOrder(t *testing.T) {
	repo := memory.NewOrderRepository()
	_, err := NewCreateOrderUseCase(repo, fixedIDs{"O1"}, nil, nil).Execute(context.Background(), checkout())
	require.NoError(t, err)

	get := NewGetOrderUseCase(repo, nil)
	o, err := get.Execute(context.Background(), "O1")
	require.NoError(t, err)
	assert.Equal(t, "O1", o.ID)

	_, err = get.Execute(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = get.Execute(context.Background(), "")
	assert.ErrorIs(t, err, application.ErrValidation)
}
