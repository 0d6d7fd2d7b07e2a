package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

const webhookTimeout = 30 * time.Second

// WebhookRetryPayload is the dispatch-by-provider payload shape.
type WebhookRetryPayload struct {
	Provider string            `json:"provider"`
	Data     json.RawMessage   `json:"data"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
}

// WebhookRetryResult is the result record persisted on success.
type WebhookRetryResult struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
}

// ProviderWebhookDispatcher delivers a provider-specific webhook retry,
// bypassing the original signature check since the webhook was authenticated
// on first receipt (§4.4).
type ProviderWebhookDispatcher interface {
	Dispatch(ctx context.Context, data json.RawMessage) error
}

// WebhookRetryHandler implements the webhook_retry job type.
type WebhookRetryHandler struct {
	Providers  map[string]ProviderWebhookDispatcher
	HTTPClient *http.Client
}

func NewWebhookRetryHandler(providers map[string]ProviderWebhookDispatcher) *WebhookRetryHandler {
	return &WebhookRetryHandler{
		Providers:  providers,
		HTTPClient: &http.Client{Timeout: webhookTimeout},
	}
}

func (h *WebhookRetryHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	var payload WebhookRetryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("webhook_retry: %w: %v", ErrInvalidPayload, err)
	}

	if dispatcher, ok := h.Providers[payload.Provider]; ok {
		if err := dispatcher.Dispatch(ctx, payload.Data); err != nil {
			return nil, fmt.Errorf("webhook_retry: %s dispatch: %w", payload.Provider, err)
		}
		return json.Marshal(WebhookRetryResult{Status: "delivered"})
	}

	if payload.URL == "" {
		return nil, fmt.Errorf("webhook_retry: %w: url is required for unknown providers", ErrInvalidPayload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, payload.URL, bytes.NewReader(payload.Data))
	if err != nil {
		return nil, fmt.Errorf("webhook_retry: build request: %w", err)
	}
	for k, v := range payload.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook_retry: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("webhook_retry: target returned %d", resp.StatusCode)
	}

	return json.Marshal(WebhookRetryResult{Status: "delivered", StatusCode: resp.StatusCode})
}
