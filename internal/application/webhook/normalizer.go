// Package webhook turns provider payment notifications into lifecycle signals.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"

	"github.com/shopspring/decimal"
)

// DefaultProvider is the provider assumed when the caller does not name one.
const DefaultProvider = "mercadopago"

// Malformed reasons, used as the webhook_malformed_total label.
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonUnsupportedTopic = "unsupported_topic"
	ReasonMissingID        = "missing_transaction_id"
	ReasonMissingAmount    = "missing_amount"
)

// MalformedError reports a payload that can never become a signal.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err == nil {
		return "webhook: malformed payload: " + e.Reason
	}
	return "webhook: malformed payload: " + e.Reason + ": " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Notification is one parsed provider notification. The concrete type is the signal kind.
type Notification interface {
	Common() Envelope
	Kind() payment.Signal
}

// Envelope holds the fields every notification carries.
type Envelope struct {
	Provider       string
	EventID        string
	TransactionID  string
	OrderID        string
	Amount         decimal.Decimal
	ProviderStatus string
}

func (e Envelope) Common() Envelope { return e }

type Processing struct{ Envelope }

type Approved struct{ Envelope }

type Rejected struct {
	Envelope
	Detail string
}

// Unknown carries a provider status no rule maps. The engine refuses it.
type Unknown struct{ Envelope }

func (Processing) Kind() payment.Signal { return payment.SignalProcessing }
func (Approved) Kind() payment.Signal   { return payment.SignalApproved }
func (Rejected) Kind() payment.Signal   { return payment.SignalRejected }
func (Unknown) Kind() payment.Signal    { return payment.SignalUnknown }

// providerPayload is the notification body: {id, type, action, data{...}}.
type providerPayload struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   *struct {
		ID                json.RawMessage  `json:"id"`
		Status            string           `json:"status"`
		StatusDetail      string           `json:"status_detail"`
		TransactionAmount *decimal.Decimal `json:"transaction_amount"`
		ExternalReference string           `json:"external_reference"`
	} `json:"data"`
}

// Normalize parses body. Refunds and chargebacks are never inferred from a webhook: they come
// back as Unknown.
func Normalize(provider string, body []byte) (Notification, error) {
	if provider == "" {
		provider = DefaultProvider
	}

	var p providerPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedError{Reason: ReasonInvalidJSON, Err: err}
	}
	if p.Type != "" && p.Type != "payment" {
		return nil, &MalformedError{Reason: ReasonUnsupportedTopic, Err: fmt.Errorf("topic %q", p.Type)}
	}
	if p.Data == nil {
		return nil, &MalformedError{Reason: ReasonMissingID}
	}
	txID := rawID(p.Data.ID)
	if txID == "" {
		return nil, &MalformedError{Reason: ReasonMissingID}
	}
	if p.Data.TransactionAmount == nil {
		return nil, &MalformedError{Reason: ReasonMissingAmount}
	}

	env := Envelope{
		Provider:       provider,
		EventID:        rawID(p.ID),
		TransactionID:  txID,
		OrderID:        p.Data.ExternalReference,
		Amount:         *p.Data.TransactionAmount,
		ProviderStatus: p.Data.Status,
	}

	switch strings.ToLower(p.Data.Status) {
	case "approved":
		return Approved{env}, nil
	case "rejected", "cancelled":
		return Rejected{Envelope: env, Detail: p.Data.StatusDetail}, nil
	case "pending", "in_process", "authorized":
		return Processing{env}, nil
	}
	return Unknown{env}, nil
}

// rawID accepts ids sent as JSON strings or numbers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// Signal builds the engine input for n.
func Signal(n Notification, raw []byte) lifecycle.PaymentSignal {
	env := n.Common()
	sig := lifecycle.PaymentSignal{
		OrderID:       env.OrderID,
		TransactionID: env.TransactionID,
		Kind:          n.Kind(),
		Amount:        env.Amount,
		Raw:           json.RawMessage(raw),
	}
	if r, ok := n.(Rejected); ok {
		sig.Reason = r.Detail
	}
	return sig
}
