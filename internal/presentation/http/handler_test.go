package httppresentation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	appOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/order"
	appPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/webhook"
	exmemory "github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/exchange/memory"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/id"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	tel := observability.Nop()
	orders := memory.NewOrderRepository()
	payments := memory.NewPaymentRepository()
	receipts := memory.NewReceiptStore()
	ids := id.NewUUIDGenerator()

	events := exmemory.New(64, tel)
	t.Cleanup(func() { _ = events.Close() })

	engine := lifecycle.NewEngine(orders, payments, receipts, events, tel, lifecycle.Options{LockTimeout: time.Second})

	h := NewHandler(Deps{
		CreateOrder:    appOrder.NewCreateOrderUseCase(orders, ids, events, tel),
		GetOrder:       appOrder.NewGetOrderUseCase(orders, tel),
		RequestPayment: appPayment.NewRequestPaymentUseCase(orders, payments, gateway.NewSandbox(0, nil), ids, events, tel),
		GetPayment:     appPayment.NewGetPaymentUseCase(payments, tel),
		CapturePayment: appPayment.NewCapturePaymentUseCase(payments, engine, tel),
		RefundPayment:  appPayment.NewRefundPaymentUseCase(payments, engine, tel),
		IngestWebhook:  webhook.NewIngestUseCase(engine, nil, events, tel),
		Operator:       engine,
		Events:         events,
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	}, tel)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func checkout(t *testing.T, srv *httptest.Server, method string) string {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/orders", map[string]any{
		"items": []map[string]any{
			{"productId": "burger", "name": "Burger", "unitPrice": "12.45", "quantity": 2},
		},
		"deliveryFee":   "5.00",
		"paymentMethod": method,
		"customer":      map[string]any{"name": "Ana", "phone": "+5511999990000", "address": "Rua A, 1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "29.90", body["total"])
	assert.Equal(t, "pending", body["status"])
	return body["id"].(string)
}

func requestPayment(t *testing.T, srv *httptest.Server, orderID, method string) map[string]any {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/orders/"+orderID+"/payments", map[string]any{"method": method})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body
}

func providerBody(txID, orderID, status, amount string) string {
	return fmt.Sprintf(`{"id":9001,"type":"payment","action":"payment.updated","data":{"id":%q,"status":%q,"transaction_amount":%s,"external_reference":%q}}`,
		txID, status, amount, orderID)
}

func TestWebhookApprovesOrderOnce(t *testing.T) {
	srv := newServer(t)
	orderID := checkout(t, srv, "pix")
	pay := requestPayment(t, srv, orderID, "pix")
	assert.NotEmpty(t, pay["pixCode"])
	txID := pay["transactionId"].(string)

	resp, body := do(t, srv, http.MethodPost, "/webhooks/mercadopago", providerBody(txID, orderID, "approved", "29.90"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", body["status"])

	resp, body = do(t, srv, http.MethodPost, "/webhooks/mercadopago", providerBody(txID, orderID, "approved", "29.90"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["status"])

	resp, body = do(t, srv, http.MethodGet, "/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, true, body["isPaid"])
	assert.Equal(t, pay["id"], body["paymentId"])
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		body   string
		status string
	}{
		{"not json", "{", "malformed"},
		{"missing transaction", `{"type":"payment","data":{"status":"approved","transaction_amount":1}}`, "malformed"},
		{"unknown transaction", providerBody("nope", "", "approved", "10.00"), "rejected"},
		{"unsupported status", providerBody("nope", "", "refunded", "10.00"), "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, http.MethodPost, "/webhooks", tt.body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

func TestWebhookAmountMismatchIsRejected(t *testing.T) {
	srv := newServer(t)
	orderID := checkout(t, srv, "pix")
	txID := requestPayment(t, srv, orderID, "pix")["transactionId"].(string)

	resp, body := do(t, srv, http.MethodPost, "/webhooks/mercadopago", providerBody(txID, orderID, "approved", "1.00"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", body["status"])
	assert.Equal(t, lifecycle.ReasonAmountMismatch, body["reason"])

	_, body = do(t, srv, http.MethodGet, "/orders/"+orderID, nil)
	assert.Equal(t, "pending", body["status"])
}

func TestOperatorTransitions(t *testing.T) {
	srv := newServer(t)
	orderID := checkout(t, srv, "cash")

	resp, body := do(t, srv, http.MethodPost, "/orders/"+orderID+"/transitions", map[string]any{"status": "delivered", "actor": "ops"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, lifecycle.ReasonInvalidTransition, body["reason"])

	resp, body = do(t, srv, http.MethodPost, "/orders/"+orderID+"/transitions", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "cancelled", body["orderStatus"])

	resp, _ = do(t, srv, http.MethodPost, "/orders/missing/transitions", map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCashCaptureAndRefund(t *testing.T) {
	srv := newServer(t)
	orderID := checkout(t, srv, "cash")
	pay := requestPayment(t, srv, orderID, "cash")
	paymentID := pay["id"].(string)
	assert.Empty(t, pay["pixCode"])

	resp, body := do(t, srv, http.MethodPost, "/orders/"+orderID+"/payments", map[string]any{"method": "cash"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)

	resp, body = do(t, srv, http.MethodPost, "/payments/"+paymentID+"/capture", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "confirmed", body["orderStatus"])
	assert.Equal(t, "approved", body["paymentStatus"])

	resp, body = do(t, srv, http.MethodPost, "/payments/"+paymentID+"/refund", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "cancelled", body["orderStatus"])
	assert.Equal(t, "refunded", body["paymentStatus"])

	resp, body = do(t, srv, http.MethodGet, "/payments/"+paymentID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "refunded", body["status"])
	assert.NotEmpty(t, body["refundedAt"])
}

func TestCaptureRefusesProviderPayments(t *testing.T) {
	srv := newServer(t)
	orderID := checkout(t, srv, "pix")
	paymentID := requestPayment(t, srv, orderID, "pix")["id"].(string)

	resp, _ := do(t, srv, http.MethodPost, "/payments/"+paymentID+"/capture", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRequestErrors(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/orders", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/orders", `{"unexpected":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/payments/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	orderID := checkout(t, srv, "pix")
	resp, _ = do(t, srv, http.MethodPost, "/orders/"+orderID+"/payments", map[string]any{"method": "boleto"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(headerRequestID, "req-42")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-42", resp.Header.Get(headerRequestID))

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestEventStream(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	require.Equal(t, ": connected", lines.Text())

	orderID := checkout(t, srv, "pix")

	var event, data string
	for lines.Scan() {
		line := lines.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if event != "" && data != "" {
			break
		}
	}
	assert.Equal(t, "order_created", event)
	assert.Contains(t, data, orderID)
}
