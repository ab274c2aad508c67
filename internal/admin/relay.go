package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/observability"
)

const (
	relayPath           = "/admin/messages"
	defaultRelayTimeout = 25 * time.Second
)

// RelayClient forwards encoded admin messages to the ingress of remote
// clusters. Each endpoint gets at most one retry; endpoints that keep
// failing are skipped, never the whole batch. The underlying HTTP
// client is safe for concurrent use, so sends need no extra locking.
type RelayClient struct {
	urls    []string
	token   string
	timeout time.Duration
	client  *http.Client
}

// NewRelayClient builds a relay for the given base URLs. A
// non-positive timeout falls back to the default request timeout.
func NewRelayClient(urls []string, token string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}
	return &RelayClient{
		urls:    append([]string(nil), urls...),
		token:   token,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Send delivers the payload to every configured remote cluster. A
// failed endpoint is retried once and then abandoned; other endpoints
// are attempted regardless.
func (c *RelayClient) Send(ctx context.Context, payload []byte) {
	for _, u := range c.urls {
		endpoint := strings.TrimSuffix(u, "/") + relayPath
		err := c.post(ctx, endpoint, payload)
		if err == nil {
			metrics.Global().RecordRelayDelivered()
			continue
		}
		logging.Op().Warn("relaying admin message failed, retrying once", "endpoint", endpoint, "error", err)
		if err := c.post(ctx, endpoint, payload); err != nil {
			logging.Op().Error("relaying admin message failed twice, giving up", "endpoint", endpoint, "error", err)
			metrics.Global().RecordRelayAbandoned()
			continue
		}
		metrics.Global().RecordRelayDelivered()
	}
}

func (c *RelayClient) post(ctx context.Context, endpoint string, payload []byte) error {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	// Continue the local trace in the remote cluster.
	if tc := observability.ExtractTraceContext(ctx); tc.TraceParent != "" {
		req.Header.Set("traceparent", tc.TraceParent)
		if tc.TraceState != "" {
			req.Header.Set("tracestate", tc.TraceState)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote cluster returned status %d", resp.StatusCode)
	}
	return nil
}
