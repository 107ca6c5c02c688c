package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusProcessing))
	assert.True(t, CanTransition(StatusPending, StatusApproved))
	assert.True(t, CanTransition(StatusProcessing, StatusRejected))
	assert.True(t, CanTransition(StatusApproved, StatusRefunded))

	assert.False(t, CanTransition(StatusPending, StatusRefunded))
	assert.False(t, CanTransition(StatusRejected, StatusApproved))
	assert.False(t, CanTransition(StatusRefunded, StatusApproved))
	assert.False(t, CanTransition(StatusApproved, StatusRejected))
}

func TestApplyStampsTimestamps(t *testing.T) {
	p, err := New("P1", "O1", "U1", decimal.RequireFromString("29.90"), MethodPix, time.Now())
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.Apply(StatusChange{From: StatusPending, To: StatusApproved, At: at}))
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, at, *p.PaidAt)

	require.NoError(t, p.Apply(StatusChange{From: StatusApproved, To: StatusRefunded, At: at.Add(time.Hour)}))
	require.NotNil(t, p.RefundedAt)
	assert.Equal(t, StatusRefunded, p.Status)
}

func TestApplyRejectsStaleExpectation(t *testing.T) {
	p, err := New("P1", "O1", "U1", decimal.NewFromInt(10), MethodCreditCard, time.Now())
	require.NoError(t, err)

	err = p.Apply(StatusChange{From: StatusProcessing, To: StatusApproved, At: time.Now()})
	assert.ErrorIs(t, err, ErrConflict)

	err = p.Apply(StatusChange{From: StatusPending, To: StatusRefunded, At: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPending, p.Status)
}

func TestRejectionReasonRecorded(t *testing.T) {
	p, err := New("P1", "O1", "U1", decimal.NewFromInt(10), MethodDebitCard, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.Apply(StatusChange{From: StatusPending, To: StatusRejected, At: time.Now(), Reason: "cc_rejected_insufficient_amount"}))
	assert.Equal(t, "cc_rejected_insufficient_amount", p.RejectionReason)
	assert.True(t, p.Status.IsTerminal())
}

func TestNewRequiresPositiveAmount(t *testing.T) {
	_, err := New("P1", "O1", "U1", decimal.Zero, MethodPix, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("pix")
	require.NoError(t, err)
	assert.Equal(t, MethodPix, m)

	_, err = ParseMethod("boleto")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestSignalTarget(t *testing.T) {
	s, ok := SignalApproved.Target()
	assert.True(t, ok)
	assert.Equal(t, StatusApproved, s)

	_, ok = SignalUnknown.Target()
	assert.False(t, ok)
}
