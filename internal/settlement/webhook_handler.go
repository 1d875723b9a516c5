package settlement

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/momo-settlement/internal/transport"
)

// WebhookHandler receives asynchronous status notifications from the gateway.
// The gateway retries on non-2xx, so anything already applied (duplicate
// delivery, record already terminal) still answers 200.
type WebhookHandler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewWebhookHandler(logger *slog.Logger, service ServiceAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
	}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/callback", h.GatewayCallback)
}

func (h *WebhookHandler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var cb CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.Logger.Error("cannot decode gateway callback", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	if err := h.service.HandleCallback(r.Context(), &cb); err != nil {
		// A reference matching no record answers 404 so the gateway's retry
		// surfaces the mismatch instead of burying it.
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
