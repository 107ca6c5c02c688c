package httppresentation

import (
	"net/http"
	"time"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	appOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/order"
	domainOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type itemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type createOrderRequest struct {
	Items         []itemRequest        `json:"items"`
	DeliveryFee   decimal.Decimal      `json:"deliveryFee"`
	PaymentMethod string               `json:"paymentMethod"`
	Customer      domainOrder.Customer `json:"customer"`
}

type itemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type orderResponse struct {
	ID            string               `json:"id"`
	Items         []itemResponse       `json:"items"`
	Subtotal      string               `json:"subtotal"`
	DeliveryFee   string               `json:"deliveryFee"`
	Total         string               `json:"total"`
	Status        domainOrder.Status   `json:"status"`
	IsPaid        bool                 `json:"isPaid"`
	PaymentMethod string               `json:"paymentMethod"`
	PaymentID     string               `json:"paymentId,omitempty"`
	Customer      domainOrder.Customer `json:"customer"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

func toOrderResponse(o *domainOrder.Order) orderResponse {
	items := make([]itemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	return orderResponse{
		ID:            o.ID,
		Items:         items,
		Subtotal:      o.Subtotal.StringFixed(2),
		DeliveryFee:   o.DeliveryFee.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		Status:        o.Status,
		IsPaid:        o.IsPaid,
		PaymentMethod: o.PaymentMethod,
		PaymentID:     o.PaymentID,
		Customer:      o.Customer,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]appOrder.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, appOrder.ItemInput{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	result, err := h.deps.CreateOrder.Execute(r.Context(), appOrder.CreateOrderInput{
		Items:         items,
		DeliveryFee:   req.DeliveryFee,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.deps.GetOrder.Execute(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type transitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

type outcomeResponse struct {
	Result        string `json:"result"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
	OrderStatus   string `json:"orderStatus,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

func toOutcomeResponse(out lifecycle.Outcome) outcomeResponse {
	return outcomeResponse{
		Result:        string(out.Result),
		Duplicate:     out.Duplicate,
		OrderID:       out.OrderID,
		PaymentID:     out.PaymentID,
		OrderStatus:   string(out.OrderStatus),
		PaymentStatus: string(out.PaymentStatus),
	}
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := h.deps.Operator.ApplyOperatorTransition(r.Context(), lifecycle.OperatorTransition{
		OrderID: chi.URLParam(r, "orderID"),
		Target:  domainOrder.ParseStatus(req.Status),
		Actor:   req.Actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}
