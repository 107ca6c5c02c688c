// Package gateway holds the payment gateway adapters.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"

	"github.com/google/uuid"
)

const DefaultPixTTL = 30 * time.Minute

// Sandbox answers intents locally, the way the provider's test environment does. Asking twice
// for the same payment returns the same intent.
type Sandbox struct {
	mu      sync.Mutex
	intents map[string]domain.Intent
	pixTTL  time.Duration
	now     func() time.Time
	log     observability.Logger
}

func NewSandbox(pixTTL time.Duration, logger observability.Logger) *Sandbox {
	if pixTTL <= 0 {
		pixTTL = DefaultPixTTL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sandbox{
		intents: make(map[string]domain.Intent),
		pixTTL:  pixTTL,
		now:     time.Now,
		log:     logger.With(observability.F("component", "gateway_sandbox")),
	}
}

func (s *Sandbox) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	if err := ctx.Err(); err != nil {
		return domain.Intent{}, err
	}
	if req.PaymentID == "" {
		return domain.Intent{}, fmt.Errorf("gateway: payment id is required")
	}
	if !req.Amount.IsPositive() {
		return domain.Intent{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if intent, ok := s.intents[req.PaymentID]; ok {
		return intent, nil
	}

	intent := domain.Intent{TransactionID: "sbx_" + strings.ReplaceAll(uuid.NewString(), "-", "")}
	if req.Method == domain.MethodPix {
		exp := s.now().UTC().Add(s.pixTTL)
		intent.PixCode = pixCode(intent.TransactionID, req.Amount.StringFixed(2))
		intent.PixExpiration = &exp
	}
	s.intents[req.PaymentID] = intent

	logctx.FromOr(ctx, s.log).Info("gateway_intent_created",
		observability.F("payment_id", req.PaymentID),
		observability.F("order_id", req.OrderID),
		observability.F("transaction_id", intent.TransactionID),
		observability.F("method", string(req.Method)),
	)
	return intent, nil
}

// pixCode renders a copy-and-paste code in the EMV TLV layout: two-digit id, two-digit length, value.
func pixCode(txID, amount string) string {
	var b strings.Builder
	tlv := func(id, value string) {
		fmt.Fprintf(&b, "%s%02d%s", id, len(value), value)
	}
	tlv("00", "01")
	tlv("26", "0014br.gov.bcb.pix"+fmt.Sprintf("01%02d%s", len(txID), txID))
	tlv("52", "0000")
	tlv("53", "986")
	tlv("54", amount)
	tlv("58", "BR")
	tlv("59", "FOODORDER")
	tlv("60", "SAO PAULO")
	return b.String()
}
