package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/tphakala/fallguard/internal/errors"
)

const (
	defaultWebhookTimeout = 30 * time.Second

	// maxErrorBodySize limits how much of an error response is read
	maxErrorBodySize = 1024
)

// WebhookProvider POSTs the notification as JSON.
type WebhookProvider struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookProvider validates target. A nil client gets a default one with
// a 30 s timeout.
func NewWebhookProvider(target string, headers map[string]string, client *http.Client) (*WebhookProvider, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("webhook URL must be an absolute http(s) URL").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookProvider{url: target, headers: maps.Clone(headers), client: client}, nil
}

func (w *WebhookProvider) Name() string { return "webhook" }

func (w *WebhookProvider) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryHTTP).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fallguard-webhook/1.0")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return errors.Newf("webhook returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt)).
			Component("notification").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
