package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/lifecycle"
	appPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/application/payment"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/exchange"
	domainOrder "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/foodorder-pipeline/internal/domain/payment"
)

const maxRequestBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domainOrder.ErrInvalidItems),
		errors.Is(err, domainOrder.ErrInvalidAmount),
		errors.Is(err, domainPayment.ErrUnknownMethod):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainPayment.ErrNotFound),
		errors.Is(err, lifecycle.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Reason: lifecycle.ReasonNotFound})
	case lifecycle.IsTransient(err),
		errors.Is(err, exchange.ErrClosed),
		errors.Is(err, exchange.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, appPayment.ErrGateway):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, lifecycle.ErrUnsupportedSignal):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		if reason, ok := lifecycle.IsRejection(err); ok {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Reason: reason})
			return
		}
		if errors.Is(err, domainPayment.ErrActivePayment) ||
			errors.Is(err, domainOrder.ErrConflict) ||
			errors.Is(err, appPayment.ErrOrderNotPayable) ||
			errors.Is(err, appPayment.ErrNotCapturable) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
	}
}
