package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultUserAgent = "shopper/1.0"

func trimBase(baseURL, fallback string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return fallback
	}
	return base
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON issues a GET against url and decodes the body into out, classifying
// every failure mode. Exceeding the client timeout is transient; 404/410 mean
// the product is gone and 401/403 mean the credentials are bad, both permanent.
func getJSON(ctx context.Context, client *http.Client, sourceID, url, userAgent string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(sourceID, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Transient(sourceID, classifyTransportErr(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Transient(sourceID, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(sourceID, resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		// Malformed responses tend to be upstream hiccups; retriable.
		return Transient(sourceID, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func classifyTransportErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	return fmt.Errorf("connection: %w", err)
}

func statusError(sourceID string, status int, payload []byte) error {
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return Permanent(sourceID, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Permanent(sourceID, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return Transient(sourceID, err)
	default:
		return Transient(sourceID, err)
	}
}
