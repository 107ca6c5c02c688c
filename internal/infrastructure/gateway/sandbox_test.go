package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxPixIntent(t *testing.T) {
	s := NewSandbox(10*time.Minute, nil)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	req := domain.IntentRequest{PaymentID: "P1", OrderID: "O1", Amount: decimal.RequireFromString("29.9"), Method: domain.MethodPix}
	intent, err := s.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.TransactionID, "sbx_"))
	assert.Contains(t, intent.PixCode, "br.gov.bcb.pix")
	assert.Contains(t, intent.PixCode, "540529.90")
	require.NotNil(t, intent.PixExpiration)
	assert.Equal(t, now.Add(10*time.Minute), *intent.PixExpiration)

	again, err := s.CreateIntent(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, intent, again)
}

func TestSandboxCardIntentHasNoPix(t *testing.T) {
	s := NewSandbox(0, nil)
	intent, err := s.CreateIntent(context.Background(), domain.IntentRequest{PaymentID: "P2", Amount: decimal.NewFromInt(10), Method: domain.MethodCreditCard})
	require.NoError(t, err)
	assert.Empty(t, intent.PixCode)
	assert.Nil(t, intent.PixExpiration)
}

func TestSandboxRejectsBadRequests(t *testing.T) {
	s := NewSandbox(0, nil)
	_, err := s.CreateIntent(context.Background(), domain.IntentRequest{PaymentID: "P1", Amount: decimal.Zero, Method: domain.MethodPix})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.CreateIntent(ctx, domain.IntentRequest{PaymentID: "P1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}
