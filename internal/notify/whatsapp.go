package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WhatsAppClient sends messages through the local WhatsApp gateway
// (a bridge process exposing a small HTTP API).
type WhatsAppClient struct {
	gatewayURL string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewWhatsAppClient creates a gateway client.
func NewWhatsAppClient(gatewayURL string, log zerolog.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "whatsapp").Logger(),
	}
}

// Send posts one message to the gateway. Any non-2xx response is an error
// so the queue can retry.
func (c *WhatsAppClient) Send(ctx context.Context, n *Notification) error {
	if c.gatewayURL == "" {
		return fmt.Errorf("whatsapp gateway not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"recipient": n.Recipient,
		"message":   n.Body,
		"kind":      n.Kind,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
