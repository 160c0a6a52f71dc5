// Package webhook posts finished sync runs to an external endpoint so other
// systems (dashboards, journaling tools) can react without polling.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesync/internal/domain"
)

type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Result     domain.SyncResult `json:"result"`
}

type Publisher struct {
	webhookURL string
	httpClient *http.Client
	log        *zap.Logger
}

func NewPublisher(webhookURL string, timeout time.Duration, log *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// SyncFinished delivers the result as a sync.completed or sync.failed event.
// Delivery is best-effort: failures are logged, never surfaced to the run.
func (p *Publisher) SyncFinished(ctx context.Context, result domain.SyncResult) {
	if p.webhookURL == "" {
		return
	}
	event := Event{
		ID:         uuid.NewString(),
		Type:       "sync.completed",
		OccurredAt: time.Now().UTC(),
		Result:     result,
	}
	if !result.Success {
		event.Type = "sync.failed"
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.log.Warn("webhook event marshal failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		p.log.Warn("webhook request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.ID)
	req.Header.Set("X-Event-Type", event.Type)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Warn("webhook delivery failed", zap.String("url", p.webhookURL), zap.Error(err))
		return
	}
	resp.Body.Close()
}
