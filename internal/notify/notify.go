package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"kedaipos/backend/internal/domain"
)

// Notifier receives operational events the dashboard wants pushed out of
// band. Implementations must not block the caller for long; the service
// invokes them on their own goroutines and ignores delivery failures.
type Notifier interface {
	HighValueSale(ctx context.Context, tx domain.Transaction)
	LowStock(ctx context.Context, item domain.InventoryItem)
}

type NoopNotifier struct{}

func (NoopNotifier) HighValueSale(_ context.Context, _ domain.Transaction) {}

func (NoopNotifier) LowStock(_ context.Context, _ domain.InventoryItem) {}

// WebhookNotifier posts a small JSON payload to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

func NewWebhookNotifier(url string, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type webhookEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	SentAt  string `json:"sent_at"`
}

func (n *WebhookNotifier) HighValueSale(ctx context.Context, tx domain.Transaction) {
	n.post(ctx, webhookEvent{
		Event:   "high_value_sale",
		Message: fmt.Sprintf("High value sale %s: %.0f via %s", tx.Number, tx.TotalAmount, tx.PaymentMethod),
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) LowStock(ctx context.Context, item domain.InventoryItem) {
	n.post(ctx, webhookEvent{
		Event:   "low_stock",
		Message: fmt.Sprintf("Low stock: %s at %.2f %s (minimum %.2f)", item.Name, item.CurrentStock, item.Unit, item.MinimumStock),
		SentAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, event webhookEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.WithError(err).Warn("notify: marshal event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.logger.WithError(err).Warn("notify: build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.WithError(err).WithField("event", event.Event).Warn("notify: webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.WithFields(logrus.Fields{
			"event":  event.Event,
			"status": resp.StatusCode,
		}).Warn("notify: webhook rejected event")
	}
}
