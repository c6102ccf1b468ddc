package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fieldops/visitsync/internal/model"
)

// NotificationInserter is the persistence slice the webhook needs.
type NotificationInserter interface {
	InsertNotification(ctx context.Context, n model.ChangeNotification) error
}

// WebhookHandler ingests calendar change notifications. It stores the raw
// signal and returns immediately; classification and transitions happen in
// the reconciliation runner.
type WebhookHandler struct {
	store       NotificationInserter
	clientState string
	logger      *slog.Logger
}

func NewWebhookHandler(store NotificationInserter, clientState string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{store: store, clientState: clientState, logger: logger}
}

type webhookPayload struct {
	Value []struct {
		SubscriptionID string `json:"subscriptionId"`
		ChangeType     string `json:"changeType"`
		ClientState    string `json:"clientState"`
		ResourceData   struct {
			ID string `json:"id"`
		} `json:"resourceData"`
	} `json:"value"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Subscription validation handshake: the provider expects its token
	// echoed back as plain text before it starts delivering.
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(token))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, item := range payload.Value {
		if h.clientState != "" && item.ClientState != h.clientState {
			h.logger.Warn("notification with wrong client state dropped",
				"subscription_id", item.SubscriptionID)
			continue
		}

		changeType := model.ChangeUpdated
		if item.ChangeType == "deleted" {
			changeType = model.ChangeDeleted
		}

		err := h.store.InsertNotification(r.Context(), model.ChangeNotification{
			SubscriptionID: item.SubscriptionID,
			ResourceID:     item.ResourceData.ID,
			ChangeType:     changeType,
		})
		if err != nil {
			h.logger.Error("store change notification",
				"subscription_id", item.SubscriptionID,
				"resource_id", item.ResourceData.ID,
				"err", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
}
