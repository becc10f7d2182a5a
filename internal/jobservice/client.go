package jobservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/httputil"
	"github.com/esclipse/SynthraCloud/pkg/logger"
	"github.com/esclipse/SynthraCloud/pkg/redis"
)

// taskIDPlaceholder is substituted in status/result path templates
const taskIDPlaceholder = "{taskId}"

// noCache disables intermediary caching on poll fetches
var noCache = http.Header{
	"Cache-Control": {"no-cache"},
	"Pragma":        {"no-cache"},
}

// Response is a decoded upstream reply. Body is nil when the payload is not a
// JSON object.
type Response struct {
	StatusCode int
	Body       map[string]interface{}
	Raw        []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client talks to the stock-screening job service
// ⭐ SSOT: job service 호출은 이 클라이언트에서만
type Client struct {
	cfg    config.JobServiceConfig
	submit *httputil.Client
	poll   *httputil.Client
	logger *logger.Logger
}

// New creates a job service client. Submissions retry per config and pass the
// Redis rate limiter when one is given; poll fetches are never retried.
func New(cfg *config.Config, log *logger.Logger, limiter *redis.RateLimiter) *Client {
	submit := httputil.New(cfg, log)
	if limiter != nil && cfg.JobService.RateLimit > 0 {
		submit = submit.WithRateLimiter(limiter, redis.JobServiceRateLimit(cfg.JobService.RateLimit))
	}

	return &Client{
		cfg:    cfg.JobService,
		submit: submit,
		poll:   httputil.New(cfg, log).DisableRetry(),
		logger: log,
	}
}

// BaseURL returns the configured job service base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// SubmitURL returns the submission endpoint
func (c *Client) SubmitURL() string {
	return c.cfg.BaseURL + c.cfg.SubmitPath
}

// StatusURL synthesizes the status endpoint of a task. It returns "" when the
// status template is disabled.
func (c *Client) StatusURL(baseURL, taskID string) string {
	return expand(baseURL, c.cfg.StatusPath, taskID)
}

// ResultURL synthesizes the result endpoint of a task. It returns "" when the
// result template is disabled.
func (c *Client) ResultURL(baseURL, taskID string) string {
	return expand(baseURL, c.cfg.ResultPath, taskID)
}

func expand(baseURL, template, taskID string) string {
	if template == "" || baseURL == "" || taskID == "" {
		return ""
	}
	path := strings.ReplaceAll(template, taskIDPlaceholder, url.PathEscape(taskID))
	return strings.TrimRight(baseURL, "/") + path
}

// Resolve turns a possibly relative upstream URL into an absolute one against
// baseURL. Absolute URLs are returned unchanged.
func Resolve(baseURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return ref
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// Submit posts a screening job. ctx bounds the whole retry loop.
func (c *Client) Submit(ctx context.Context, payload interface{}) (*Response, error) {
	resp, err := c.submit.PostJSON(ctx, c.SubmitURL(), payload)
	if err != nil {
		return nil, fmt.Errorf("job submission failed: %w", err)
	}
	return decode(resp)
}

// Fetch GETs a status or result URL once with caching disabled
func (c *Client) Fetch(ctx context.Context, target string) (*Response, error) {
	resp, err := c.poll.Get(ctx, target, noCache)
	if err != nil {
		return nil, fmt.Errorf("job fetch failed: %w", err)
	}
	return decode(resp)
}

// Ping GETs the base URL, used to wake a sleeping upstream
func (c *Client) Ping(ctx context.Context) (int, error) {
	resp, err := c.poll.Get(ctx, c.cfg.BaseURL, noCache)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func decode(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job service response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Raw: raw}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err == nil {
		out.Body = body
	}

	return out, nil
}
