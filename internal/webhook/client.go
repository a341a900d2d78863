// Package webhook delivers template emails by posting them to a workflow
// automation endpoint that performs the actual send.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one POST to the workflow endpoint.
const DefaultTimeout = 10 * time.Second

// maxErrorBody limits how much of a failed response body is kept.
const maxErrorBody = 4096

// Payload is the JSON document the workflow expects.
type Payload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// StatusError is returned when the endpoint answers with anything but 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.Code, e.Body)
}

// Client posts payloads to a single webhook URL.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a webhook client. A non-positive timeout selects DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// URL returns the configured endpoint.
func (c *Client) URL() string {
	return c.url
}

// Send posts p to the endpoint. Only HTTP 200 counts as success.
func (c *Client) Send(ctx context.Context, p Payload) error {
	if c.url == "" {
		return fmt.Errorf("webhook URL is not configured")
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
