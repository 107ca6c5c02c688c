// Package httppresentation is the HTTP surface: provider webhooks, checkout, payment
// administration, operator transitions and the live event stream.
package httppresentation

import (
	"context"
	"net/http"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	appOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/order"
	appPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/webhook"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domainOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
)

// Operator applies administrative order transitions.
type Operator interface {
	ApplyOperatorTransition(ctx context.Context, cmd lifecycle.OperatorTransition) (lifecycle.Outcome, error)
}

// Deps are the use cases behind the routes. A nil use case leaves its routes unmounted.
type Deps struct {
	CreateOrder    application.UseCase[appOrder.CreateOrderInput, *appOrder.CreateOrderResult]
	GetOrder       application.UseCase[string, *domainOrder.Order]
	RequestPayment application.UseCase[appPayment.RequestPaymentInput, *domainPayment.Payment]
	GetPayment     application.UseCase[string, *domainPayment.Payment]
	CapturePayment application.UseCase[string, lifecycle.Outcome]
	RefundPayment  application.UseCase[string, lifecycle.Outcome]
	IngestWebhook  application.UseCase[webhook.IngestInput, *webhook.IngestResult]
	Operator       Operator
	Events         exchange.Subscriber

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	deps Deps
	log  observability.Logger

	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

func NewHandler(deps Deps, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		deps:         deps,
		log:          tel.Logger().With(observability.F("component", componentHTTPHandler)),
		httpRequests: tel.Metrics().Counter(observability.MHTTPRequests),
		httpDuration: tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
}

// Router wires every route behind Trace → request logger → access log → metrics → recoverer.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		h.withTrace,
		ObservabilityMiddleware(h.log, func(r *http.Request) string { return r.Header.Get(headerRequestID) }),
		h.withAccessLog,
		h.withHTTPMetrics,
		middleware.Recoverer,
	)

	r.Get("/healthz", h.handleHealth)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}

	if h.deps.IngestWebhook != nil {
		r.Post("/webhooks", h.handleWebhook)
		r.Post("/webhooks/{provider}", h.handleWebhook)
	}

	r.Route("/orders", func(r chi.Router) {
		if h.deps.CreateOrder != nil {
			r.Post("/", h.handleCreateOrder)
		}
		r.Route("/{orderID}", func(r chi.Router) {
			if h.deps.GetOrder != nil {
				r.Get("/", h.handleGetOrder)
			}
			if h.deps.Operator != nil {
				r.Post("/transitions", h.handleTransition)
			}
			if h.deps.RequestPayment != nil {
				r.Post("/payments", h.handleRequestPayment)
			}
		})
	})

	r.Route("/payments/{paymentID}", func(r chi.Router) {
		if h.deps.GetPayment != nil {
			r.Get("/", h.handleGetPayment)
		}
		if h.deps.CapturePayment != nil {
			r.Post("/capture", h.handleCapturePayment)
		}
		if h.deps.RefundPayment != nil {
			r.Post("/refund", h.handleRefundPayment)
		}
	})

	if h.deps.Events != nil {
		r.Get("/events", h.handleEvents)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
