// Package notify is the client side of POST /emit-event, used by the CRUD
// layer and the CLI to push events into connected sockets.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const DefaultTimeout = 2 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Emit posts an event and fails on transport errors or a non-200 answer.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	body, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, data})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emit-event", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.NotifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to call emit-event: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("emit-event failed (Status: %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// EmitBestEffort is Emit for callers that must not fail because the socket
// server is slow or down.
func (c *Client) EmitBestEffort(ctx context.Context, event string, data any) {
	if err := c.Emit(ctx, event, data); err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("notification dropped")
	}
}
