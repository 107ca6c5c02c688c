package httppresentation

import (
	"io"
	"net/http"

	"github.com/Zhima-Mochi/foodorder-pipeline/internal/application/webhook"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability"
	"github.com/Zhima-Mochi/foodorder-pipeline/internal/observability/logctx"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type webhookResponse struct {
	Status        webhook.Disposition `json:"status"`
	Reason        string              `json:"reason,omitempty"`
	TransactionID string              `json:"transactionId,omitempty"`
}

// handleWebhook always answers 200 so the provider stops redelivering. Failures are
// logged and counted by the ingest use case instead.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logctx.FromOr(r.Context(), h.log).Warn("webhook_body_unreadable", observability.Err(err))
	}

	res, _ := h.deps.IngestWebhook.Execute(r.Context(), webhook.IngestInput{
		Provider: chi.URLParam(r, "provider"),
		Body:     body,
	})
	if res == nil {
		writeJSON(w, http.StatusOK, webhookResponse{Status: webhook.DispositionFailed})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Status:        res.Disposition,
		Reason:        res.Reason,
		TransactionID: res.TransactionID,
	})
}
