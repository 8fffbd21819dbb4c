package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxErrorBody = 4096

// RestConfig configures a RestClient
type RestConfig struct {
	ProviderID      string
	BaseURL         string
	HTTPClient      *http.Client
	MaxAttempts     int
	InitialInterval time.Duration
}

// RestClient issues JSON requests to a provider with bounded retries. Only
// retryable ProviderErrors are retried.
type RestClient struct {
	providerID      string
	baseURL         string
	httpClient      *http.Client
	maxAttempts     int
	initialInterval time.Duration
}

func NewRestClient(cfg RestConfig) *RestClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &RestClient{
		providerID:      cfg.ProviderID,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:      httpClient,
		maxAttempts:     maxAttempts,
		initialInterval: interval,
	}
}

// ProviderID returns the provider name used in errors and logs.
func (c *RestClient) ProviderID() string {
	return c.providerID
}

// Request describes one provider call
type Request struct {
	Method      string
	Path        string
	BearerToken string
	Body        any
	// SingleAttempt disables retries for calls that are unsafe to repeat
	SingleAttempt bool
}

// Do sends req and decodes the JSON response into out when out is non-nil.
func (c *RestClient) Do(ctx context.Context, req Request, out any) error {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("unable to marshal request body: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.Reset()
	retries := uint64(c.maxAttempts - 1)
	if req.SingleAttempt {
		retries = 0
	}
	policy := backoff.WithMaxRetries(backoff.WithContext(b, ctx), retries)

	operation := func() error {
		err := c.send(ctx, req, payload, out)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		zap.L().Warn("Provider call failed, retrying",
			zap.String("provider", c.providerID),
			zap.String("path", req.Path),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.RetryNotify(operation, policy, notify)
}

func (c *RestClient) send(ctx context.Context, req Request, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return NewProviderError(ErrorInternal, c.providerID, "unable to build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pe := NewProviderError(CategoryForStatus(resp.StatusCode), c.providerID,
			fmt.Sprintf("%s %s returned %d: %s", req.Method, req.Path, resp.StatusCode, strings.TrimSpace(string(msg))), nil)
		pe.StatusCode = resp.StatusCode
		return pe
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewProviderError(ErrorContractMismatch, c.providerID, "unable to decode response", err)
	}
	return nil
}

func (c *RestClient) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		// cancellation is not worth retrying
		return &ProviderError{Category: ErrorTimeout, ProviderID: c.providerID, Message: "request cancelled", Underlying: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(ErrorTimeout, c.providerID, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, c.providerID, "request failed", err)
}
