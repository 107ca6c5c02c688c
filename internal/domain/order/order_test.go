package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewPricesItems(t *testing.T) {
	o, err := New("O1", []Item{
		{ProductID: "burger", Name: "Burger", UnitPrice: dec("12.45"), Quantity: 2},
	}, dec("5.00"), "pix", Customer{Name: "Ana"}, time.Now())
	require.NoError(t, err)

	assert.True(t, o.Items[0].LineTotal.Equal(dec("24.90")))
	assert.True(t, o.Subtotal.Equal(dec("24.90")))
	assert.True(t, o.Total.Equal(dec("29.90")))
	assert.Equal(t, StatusPending, o.Status)
	assert.False(t, o.IsPaid)
	assert.NoError(t, o.Validate())
}

func TestNewRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		items []Item
		fee   decimal.Decimal
		want  error
	}{
		"no items":       {nil, decimal.Zero, ErrInvalidItems},
		"zero quantity":  {[]Item{{ProductID: "p", UnitPrice: dec("1"), Quantity: 0}}, decimal.Zero, ErrInvalidItems},
		"negative price": {[]Item{{ProductID: "p", UnitPrice: dec("-1"), Quantity: 1}}, decimal.Zero, ErrInvalidAmount},
		"negative fee":   {[]Item{{ProductID: "p", UnitPrice: dec("1"), Quantity: 1}}, dec("-0.01"), ErrInvalidAmount},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New("O", tc.items, tc.fee, "pix", Customer{}, time.Now())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		by       Trigger
		want     bool
	}{
		{StatusPending, StatusConfirmed, TriggerPayment, true},
		{StatusPending, StatusConfirmed, TriggerOperator, false},
		{StatusPending, StatusCancelled, TriggerPayment, true},
		{StatusPending, StatusDelivered, TriggerOperator, false},
		{StatusConfirmed, StatusPreparing, TriggerOperator, true},
		{StatusPreparing, StatusReady, TriggerOperator, true},
		{StatusReady, StatusOutForDelivery, TriggerOperator, true},
		{StatusOutForDelivery, StatusDelivered, TriggerOperator, true},
		{StatusOutForDelivery, StatusDifficulty, TriggerOperator, true},
		{StatusDifficulty, StatusDelivered, TriggerOperator, true},
		{StatusDifficulty, StatusCancelled, TriggerOperator, true},
		{StatusPreparing, StatusCancelled, TriggerOperator, true},
		{StatusReady, StatusPreparing, TriggerOperator, false},
		{StatusDelivered, StatusCancelled, TriggerOperator, false},
		{StatusCancelled, StatusPending, TriggerOperator, false},
		{StatusCancelled, StatusConfirmed, TriggerPayment, false},
		{StatusConfirmed, StatusUnknown, TriggerOperator, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.by), "%s -> %s by %s", tc.from, tc.to, tc.by)
	}
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for to := range known {
			assert.False(t, CanTransition(from, to, TriggerPayment|TriggerOperator), "%s -> %s", from, to)
		}
	}
}

func TestTransitionKeepsPaidFlag(t *testing.T) {
	o, err := New("O1", []Item{{ProductID: "p", UnitPrice: dec("10"), Quantity: 1}}, decimal.Zero, "pix", Customer{}, time.Now())
	require.NoError(t, err)

	require.NoError(t, o.TransitionTo(StatusConfirmed, TriggerPayment, time.Now()))
	assert.True(t, o.IsPaid)
	assert.NoError(t, o.Validate())

	require.NoError(t, o.TransitionTo(StatusCancelled, TriggerOperator, time.Now()))
	assert.False(t, o.IsPaid)
	assert.NoError(t, o.Validate())

	err = o.TransitionTo(StatusPreparing, TriggerOperator, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCancelled, o.Status)
}

func TestLinkPaymentFirstWriterWins(t *testing.T) {
	o := &Order{ID: "O1"}
	require.NoError(t, o.LinkPayment("P1"))
	require.NoError(t, o.LinkPayment("P1"))
	assert.ErrorIs(t, o.LinkPayment("P2"), ErrAlreadyLinked)
	assert.Equal(t, "P1", o.PaymentID)
}

func TestParseStatusMapsLegacyValuesToUnknown(t *testing.T) {
	assert.Equal(t, StatusOutForDelivery, ParseStatus("out_for_delivery"))
	assert.Equal(t, StatusUnknown, ParseStatus("delivering"))
	assert.Equal(t, StatusUnknown, ParseStatus("PAID"))
}
