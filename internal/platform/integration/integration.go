// Package integration defines the outbound adapter contracts for
// clearinghouse and payer-direct systems, plus an HTTP implementation with
// bounded timeouts, a fixed retry budget, and correlation ids so repeated
// submissions can be deduplicated downstream.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CallOptions bound a single adapter call.
type CallOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	CorrelationID string
}

// ClaimPayload is the payer-specific submission payload assembled by the
// dispatcher. The wire encoding (EDI/X12 or proprietary JSON) is the remote
// system's concern; this core only carries the fields.
type ClaimPayload map[string]interface{}

// SubmitResult is the normalized envelope for a single-claim submission.
type SubmitResult struct {
	Success        bool                   `json:"success"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// BatchSubmitResult is the envelope for a grouped submission. Accepted and
// Rejected are keyed by the caller-supplied claim reference.
type BatchSubmitResult struct {
	Success        bool              `json:"success"`
	BatchReference string            `json:"batch_reference,omitempty"`
	Accepted       map[string]string `json:"accepted,omitempty"` // claim ref -> tracking number
	Rejected       map[string]string `json:"rejected,omitempty"` // claim ref -> reason
	Error          string            `json:"error,omitempty"`
}

// StatusResult is the envelope for an external status query.
type StatusResult struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ClearinghouseAdapter submits electronic claims through a clearinghouse and
// queries their disposition.
type ClearinghouseAdapter interface {
	Submit(ctx context.Context, payerID string, payload ClaimPayload, opts CallOptions) (*SubmitResult, error)
	SubmitBatch(ctx context.Context, payerID string, payloads []ClaimPayload, opts CallOptions) (*BatchSubmitResult, error)
	CheckStatus(ctx context.Context, externalID, claimRef string, opts CallOptions) (*StatusResult, error)
}

// PayerAdapter queries a payer system directly, for payers reachable without
// a clearinghouse.
type PayerAdapter interface {
	CheckStatus(ctx context.Context, externalID, claimRef string, opts CallOptions) (*StatusResult, error)
}

// APIError describes a failed adapter call, naming the remote service and
// endpoint so operators can trace it.
type APIError struct {
	Service  string
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s returned %d: %s", e.Service, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Service, e.Endpoint, e.Message)
}

// HTTPClient implements ClearinghouseAdapter and PayerAdapter against a
// JSON-over-HTTP gateway.
type HTTPClient struct {
	service string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates an HTTPClient. The service name only labels errors
// and logs.
func NewHTTPClient(service, baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		service: service,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (c *HTTPClient) Submit(ctx context.Context, payerID string, payload ClaimPayload, opts CallOptions) (*SubmitResult, error) {
	body := map[string]interface{}{
		"payer_id": payerID,
		"claim":    payload,
	}
	var result SubmitResult
	if err := c.call(ctx, http.MethodPost, "/claims", body, &result, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) SubmitBatch(ctx context.Context, payerID string, payloads []ClaimPayload, opts CallOptions) (*BatchSubmitResult, error) {
	body := map[string]interface{}{
		"payer_id": payerID,
		"claims":   payloads,
	}
	var result BatchSubmitResult
	if err := c.call(ctx, http.MethodPost, "/claims/batch", body, &result, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, externalID, claimRef string, opts CallOptions) (*StatusResult, error) {
	body := map[string]interface{}{
		"external_id": externalID,
		"claim_ref":   claimRef,
	}
	var result StatusResult
	if err := c.call(ctx, http.MethodPost, "/claims/status", body, &result, opts); err != nil {
		return nil, err
	}
	return &result, nil
}

// call performs the request with a per-attempt timeout and a fixed retry
// budget. Every attempt carries the same correlation id so the remote side
// can deduplicate repeats.
func (c *HTTPClient) call(ctx context.Context, method, endpoint string, body, out interface{}, opts CallOptions) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	attempts := opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryDelay):
			}
		}

		lastErr = c.doOnce(ctx, method, endpoint, raw, out, timeout, opts.CorrelationID)
		if lastErr == nil {
			return nil
		}
		// Client errors are not retryable; the request will not get better.
		if apiErr, ok := lastErr.(*APIError); ok && apiErr.Status >= 400 && apiErr.Status < 500 {
			return lastErr
		}
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, endpoint string, raw []byte, out interface{}, timeout time.Duration, correlationID string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return &APIError{Service: c.service, Endpoint: endpoint, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Service: c.service, Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Service: c.service, Endpoint: endpoint, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Service: c.service, Endpoint: endpoint, Status: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &APIError{Service: c.service, Endpoint: endpoint, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}
