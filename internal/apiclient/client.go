// Package apiclient is a small client for the SynthraCloud stock-analysis
// API, used by the CLI.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/esclipse/SynthraCloud/internal/screening"
)

const stockAnalysisPath = "/api/stock-analysis"

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int         `json:"-"`
	Message string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
	Hint    string      `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// Response is either a pending job or a completed result
type Response struct {
	Pending *screening.Pending
	Result  *screening.Result
	Raw     json.RawMessage
}

// Client calls a running SynthraCloud server
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL
func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")

	return &Client{http: client}
}

// Submit posts a screening request
func (c *Client) Submit(ctx context.Context, req screening.Request) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(stockAnalysisPath)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	return decode(resp)
}

// Poll resolves a continuation token once
func (c *Client) Poll(ctx context.Context, token string) (*Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("pollToken", token).
		Get(stockAnalysisPath)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	return decode(resp)
}

// Wait submits and keeps polling until the job completes, fails or ctx ends.
// onPending is called after every pending answer.
func (c *Client) Wait(ctx context.Context, req screening.Request, onPending func(*screening.Pending)) (*screening.Result, error) {
	out, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	for out.Pending != nil {
		if onPending != nil {
			onPending(out.Pending)
		}

		delay := time.Duration(out.Pending.RetryInMs) * time.Millisecond
		if delay <= 0 {
			delay = 2 * time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		out, err = c.Poll(ctx, out.Pending.PollToken)
		if err != nil {
			return nil, err
		}
	}

	return out.Result, nil
}

func decode(resp *resty.Response) (*Response, error) {
	body := resp.Body()

	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		return nil, apiErr
	}

	var probe struct {
		Polling bool `json:"polling"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &Response{Raw: json.RawMessage(body)}
	if probe.Polling {
		out.Pending = &screening.Pending{}
		if err := json.Unmarshal(body, out.Pending); err != nil {
			return nil, fmt.Errorf("decode pending: %w", err)
		}
		return out, nil
	}

	out.Result = &screening.Result{}
	if err := json.Unmarshal(body, out.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
