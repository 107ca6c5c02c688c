package httppresentation

import (
	"net/http"
	"time"

	appPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/payment"
	domainPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"

	"github.com/go-chi/chi/v5"
)

type requestPaymentRequest struct {
	Method string `json:"method"`
	UserID string `json:"userId"`
}

type paymentResponse struct {
	ID              string               `json:"id"`
	OrderID         string               `json:"orderId"`
	UserID          string               `json:"userId,omitempty"`
	Amount          string               `json:"amount"`
	Method          domainPayment.Method `json:"method"`
	Status          domainPayment.Status `json:"status"`
	TransactionID   string               `json:"transactionId"`
	PixCode         string               `json:"pixCode,omitempty"`
	PixExpiration   *time.Time           `json:"pixExpiration,omitempty"`
	PaidAt          *time.Time           `json:"paidAt,omitempty"`
	RefundedAt      *time.Time           `json:"refundedAt,omitempty"`
	RejectionReason string               `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func toPaymentResponse(p *domainPayment.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		UserID:          p.UserID,
		Amount:          p.Amount.StringFixed(2),
		Method:          p.Method,
		Status:          p.Status,
		TransactionID:   p.TransactionID,
		PixCode:         p.PixCode,
		PixExpiration:   p.PixExpiration,
		PaidAt:          p.PaidAt,
		RefundedAt:      p.RefundedAt,
		RejectionReason: p.RejectionReason,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (h *Handler) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	var req requestPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.deps.RequestPayment.Execute(r.Context(), appPayment.RequestPaymentInput{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  req.UserID,
		Method:  req.Method,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.GetPayment.Execute(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.CapturePayment.Execute(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

func (h *Handler) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	out, err := h.deps.RefundPayment.Execute(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}
