package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookClient publishes station events to the ingestion webhook the same
// way the hub's rule chain does: one POST per event.
type WebhookClient struct {
	baseURL string
	http    *http.Client
}

// NewWebhookClient creates a client for the given ingestd base URL.
func NewWebhookClient(baseURL string) *WebhookClient {
	return &WebhookClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect verifies the target is reachable via its health endpoint.
func (c *WebhookClient) Connect() error {
	resp, err := c.http.Get(c.baseURL + "/healthz")
	if err != nil {
		return fmt.Errorf("webhook target unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Disconnect releases idle connections.
func (c *WebhookClient) Disconnect() {
	c.http.CloseIdleConnections()
}

// Publish generates and posts one event for the station.
func (c *WebhookClient) Publish(ctx context.Context, station *Station) (bool, error) {
	body, err := station.PayloadGenerator.GeneratePayload(station)
	if err != nil {
		return false, fmt.Errorf("generating payload for %s: %w", station.Name, err)
	}

	url := fmt.Sprintf("%s/webhook/inmet/%s", c.baseURL, station.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}
