package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Slack posts notifications to a Slack incoming webhook.
type Slack struct {
	WebhookURL string
	HTTP       *http.Client
}

// NewSlack creates a Slack sink for the given incoming-webhook URL.
func NewSlack(webhookURL string) (*Slack, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("notify: slack webhook url is required")
	}
	return &Slack{WebhookURL: webhookURL, HTTP: &http.Client{Timeout: 10 * time.Second}}, nil
}

// Notify implements [Sink].
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{"text": Format(msg)})
	if err != nil {
		return fmt.Errorf("notify: slack marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("notify: slack status %d: %s", res.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}
