package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Type string

const (
	TaskAssigned       Type = "taskAssigned"
	SubmissionReceived Type = "submissionReceived"
	SubmissionApproved Type = "submissionApproved"
	SubmissionRejected Type = "submissionRejected"
	ProgressUpdate     Type = "progressUpdate"
)

// Message is the body the send-notification function expects.
type Message struct {
	Type Type                   `json:"type"`
	To   string                 `json:"to"`
	Data map[string]interface{} `json:"data"`
}

type Client struct {
	functionURL string
	apiKey      string
	httpClient  *http.Client
	backoffs    []time.Duration
}

func NewClient(functionURL, apiKey string) *Client {
	return &Client{
		functionURL: strings.TrimSuffix(functionURL, "/"),
		apiKey:      apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// WithBackoffs replaces the retry delays.
func (c *Client) WithBackoffs(backoffs ...time.Duration) *Client {
	c.backoffs = backoffs
	return c
}

// Enabled reports whether a function URL is configured. A disabled client
// accepts every message and sends nothing.
func (c *Client) Enabled() bool {
	return c.functionURL != ""
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Enabled() || strings.TrimSpace(msg.To) == "" {
		return nil
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return c.RetryWithBackoff(ctx, func() error {
		return c.post(ctx, jsonData)
	}, 3)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.functionURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send notification: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// It stops early, returning the context error, once ctx is done.
func (c *Client) RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if i < len(c.backoffs) && i < maxRetries-1 {
			timer := time.NewTimer(c.backoffs[i])
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: last error: %v", ctx.Err(), lastErr)
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
