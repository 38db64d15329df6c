package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 1
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 5 * time.Second

	maxBodyBytes = 4 << 20
)

// HTTPClient performs JSON GET requests with per-call timeout and retry.
// One HTTPClient is shared by all provider adapters.
type HTTPClient struct {
	client     *http.Client
	retries    int
	retryDelay time.Duration
	maxDelay   time.Duration
	userAgent  string
	onAttempt  func(provider string, err error)
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.retries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets the maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithAttemptHook is called after every attempt with its error (nil on success).
func WithAttemptHook(fn func(provider string, err error)) ClientOption {
	return func(c *HTTPClient) {
		c.onAttempt = fn
	}
}

// NewHTTPClient creates a client with default timeout and retry settings.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		client:     &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		userAgent:  "token-call-tracker/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON fetches url and decodes the body into dst.
// The returned error is always a *FetchError (or the context error).
func (c *HTTPClient) getJSON(ctx context.Context, provider, url string, headers map[string]string, dst any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.maxDelay
	policy.Multiplier = 2

	var last error
	operation := func() (struct{}, error) {
		err := c.attempt(ctx, provider, url, headers, dst)
		if c.onAttempt != nil {
			c.onAttempt(provider, err)
		}
		if err == nil {
			return struct{}{}, nil
		}
		last = err
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		var fe *FetchError
		if errors.As(err, &fe) && fe.StatusCode == http.StatusTooManyRequests {
			if secs := retryAfterSeconds(fe); secs > 0 {
				// Never wait longer than the configured backoff cap.
				if maxSecs := int(c.maxDelay / time.Second); secs > maxSecs {
					secs = maxSecs
				}
				if secs > 0 {
					return struct{}{}, backoff.RetryAfter(secs)
				}
			}
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.retries+1)),
	)
	if err == nil {
		return nil
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(provider, ClassTransport, ctxErr)
	}
	if last != nil {
		return last
	}
	return newError(provider, ClassTransport, err)
}

// retryAfter carries a parsed Retry-After header through a FetchError.
type retryAfter int

func (r retryAfter) Error() string {
	return fmt.Sprintf("retry after %ds", int(r))
}

func retryAfterSeconds(fe *FetchError) int {
	var ra retryAfter
	if errors.As(fe.Err, &ra) {
		return int(ra)
	}
	return 0
}

func (c *HTTPClient) attempt(ctx context.Context, provider, url string, headers map[string]string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return newError(provider, ClassConfiguration, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return newError(provider, ClassTransport, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return newError(provider, ClassTransport, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		fe := &FetchError{Class: ClassTransport, Provider: provider, StatusCode: resp.StatusCode, Err: errors.New("rate limited")}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			fe.Err = retryAfter(secs)
		}
		return fe
	case resp.StatusCode >= 500:
		return &FetchError{Class: ClassTransport, Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error: %s", truncate(body))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &FetchError{Class: ClassConfiguration, Provider: provider, StatusCode: resp.StatusCode, Err: errors.New("credential rejected")}
	case resp.StatusCode == http.StatusNotFound:
		return &FetchError{Class: ClassNoData, Provider: provider, StatusCode: resp.StatusCode, Err: errors.New("not found")}
	case resp.StatusCode != http.StatusOK:
		return &FetchError{Class: ClassTransport, Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", truncate(body))}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return newError(provider, ClassMalformed, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
