package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
	"github.com/esclipse/SynthraCloud/pkg/redis"
)

// Client is an HTTP client wrapper with retry logic and logging
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient   *http.Client
	logger       *logger.Logger
	retryConfig  RetryConfig
	rateLimiter  *redis.RateLimiter
	rateLimitCfg *redis.RateLimitConfig
}

// Backoff selects how the delay grows between attempts
type Backoff int

const (
	// BackoffLinear waits InitialDelay * attempt (2s, 4s, 6s, ...)
	BackoffLinear Backoff = iota
	// BackoffExponential doubles the delay each attempt, capped at MaxDelay
	BackoffExponential
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      Backoff
	Enabled      bool
}

// New creates a new HTTP client using the job service retry policy from config.
// The client has no overall timeout; callers bound each call with a context.
func New(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     log,
		retryConfig: RetryConfig{
			MaxRetries:   cfg.JobService.MaxRetries,
			InitialDelay: cfg.JobService.RetryDelay,
			MaxDelay:     time.Minute,
			Backoff:      BackoffLinear,
			Enabled:      cfg.JobService.MaxRetries > 0,
		},
	}
}

// NewWithTimeout creates a client with a per-attempt timeout
func NewWithTimeout(cfg *config.Config, log *logger.Logger, timeout time.Duration) *Client {
	client := New(cfg, log)
	client.httpClient.Timeout = timeout
	return client
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	c.retryConfig.Enabled = maxRetries > 0
	return c
}

// WithBackoff sets the backoff strategy
func (c *Client) WithBackoff(b Backoff) *Client {
	c.retryConfig.Backoff = b
	return c
}

// DisableRetry disables automatic retry
func (c *Client) DisableRetry() *Client {
	c.retryConfig.Enabled = false
	return c
}

// WithRateLimiter sets the rate limiter for this client
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.rateLimiter = limiter
	c.rateLimitCfg = &cfg
	return c
}

// Get performs a GET request with optional extra headers
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.Do(req)
}

// PostJSON performs a POST request with JSON body.
// The body is buffered so it can be replayed on retry.
func (c *Client) PostJSON(ctx context.Context, url string, data interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.Do(req)
}

// Do executes the request with retry logic and logging
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	startTime := time.Now()
	url := req.URL.String()
	method := req.Method

	if c.rateLimiter != nil && c.rateLimitCfg != nil {
		if err := c.rateLimiter.Wait(req.Context(), *c.rateLimitCfg); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
	}).Debug("HTTP request started")

	if c.retryConfig.Enabled {
		resp, err = c.doWithRetry(req)
	} else {
		resp, err = c.httpClient.Do(req)
	}

	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   method,
			"url":      url,
			"duration": duration,
			"error":    err.Error(),
			"kind":     ClassifyError(err).String(),
		}).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}

// doWithRetry executes the request, retrying retryable transport failures and 5xx
func (c *Client) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)

		retryable := false
		if err != nil {
			retryable = IsRetryableTransportError(err) && ctx.Err() == nil
		} else {
			retryable = IsRetryableStatus(resp.StatusCode)
		}

		if !retryable || attempt >= c.retryConfig.MaxRetries {
			return resp, err
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		delay := c.delayFor(attempt + 1)
		fields := map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay,
			"url":     req.URL.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status_code"] = resp.StatusCode
		}
		c.logger.WithFields(fields).Warn("Retrying HTTP request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// delayFor returns the wait before retry number n (1-based)
func (c *Client) delayFor(n int) time.Duration {
	var delay time.Duration
	switch c.retryConfig.Backoff {
	case BackoffExponential:
		delay = c.retryConfig.InitialDelay << (n - 1)
	default:
		delay = c.retryConfig.InitialDelay * time.Duration(n)
	}
	if c.retryConfig.MaxDelay > 0 && delay > c.retryConfig.MaxDelay {
		delay = c.retryConfig.MaxDelay
	}
	return delay
}

// IsRetryableStatus reports whether an upstream status should be retried (5xx)
func IsRetryableStatus(statusCode int) bool {
	return statusCode >= 500
}

// IsRetryableTransportError reports whether a transport failure belongs to the
// timeout / connection-reset class. DNS failures and refused connections are
// not retried. The caller is responsible for not retrying once its own
// context is done.
func IsRetryableTransportError(err error) bool {
	switch ClassifyError(err) {
	case KindTimeout, KindReset:
		return true
	default:
		return false
	}
}

// ErrorKind is a coarse transport failure class
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindUnreachable
	KindReset
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindReset:
		return "reset"
	default:
		return "other"
	}
}

// StatusCode maps a transport failure class to the status returned to callers
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ClassifyError sorts a transport error into an ErrorKind
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindUnreachable
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindUnreachable
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.Canceled) {
		return KindReset
	}

	return KindOther
}
