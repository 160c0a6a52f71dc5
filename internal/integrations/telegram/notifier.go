// Package telegram pushes sync failure alerts to a Telegram chat via the
// bot sendMessage API. Successful runs stay quiet.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tradesync/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends messages through a single bot to a single chat. A
// Notifier with empty credentials is valid and drops every message.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// SyncFinished alerts on failed runs only. Successful runs carry no
// errors, so they generate no chat traffic.
func (n *Notifier) SyncFinished(ctx context.Context, result domain.SyncResult) {
	if result.Success {
		return
	}
	_ = n.Notify(ctx, fmt.Sprintf("Sync for account %s (%s) failed: %s",
		result.AccountID, result.PlatformID, result.ErrorMessage))
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Notify posts text to the configured chat. Errors are returned so the
// caller can log them; delivery is best effort either way.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || text == "" {
		return nil
	}
	raw, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram sendMessage: status %d", resp.StatusCode)
	}
	return nil
}
