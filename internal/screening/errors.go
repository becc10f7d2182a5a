package screening

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/esclipse/SynthraCloud/internal/jobservice"
	"github.com/esclipse/SynthraCloud/pkg/httputil"
)

// Error carries an HTTP status to the handler. Handlers write it as
// {error, details}.
type Error struct {
	Status  int
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// maxRawDetail bounds raw upstream bodies echoed as details
const maxRawDetail = 500

// transportError classifies a failed upstream call into 502/503/504 with a
// localized hint.
func transportError(err error) *Error {
	kind := httputil.ClassifyError(err)

	var hint string
	switch kind {
	case httputil.KindTimeout:
		hint = "筛选服务响应超时，全市场扫描耗时较长，请稍后重试或指定股票代码"
	case httputil.KindUnreachable:
		hint = "无法连接到筛选服务，请确认服务地址可用或稍后重试"
	case httputil.KindReset:
		hint = "与筛选服务的连接中断，请稍后重试"
	default:
		hint = "筛选服务请求失败，请稍后重试"
	}

	return &Error{
		Status:  kind.StatusCode(),
		Message: "Failed to reach job service",
		Details: hint,
		Err:     err,
	}
}

// upstreamError propagates a non-OK upstream reply with a best-effort message
func upstreamError(resp *jobservice.Response, fallback string) *Error {
	e := &Error{
		Status:  resp.StatusCode,
		Message: extractMessage(resp, fallback),
	}
	if resp.Body != nil {
		e.Details = resp.Body["details"]
	}
	if e.Status < 400 {
		e.Status = http.StatusBadGateway
	}
	return e
}

// invalidResponse reports an upstream body that is not a JSON object
func invalidResponse(resp *jobservice.Response) *Error {
	return &Error{
		Status:  http.StatusBadGateway,
		Message: "Invalid response from job service",
		Details: truncate(string(resp.Raw)),
	}
}

// extractMessage looks through the nested error shapes upstreams use:
// error.message, error as a string, message, detail, then the raw body.
func extractMessage(resp *jobservice.Response, fallback string) string {
	if body := resp.Body; body != nil {
		switch e := body["error"].(type) {
		case map[string]interface{}:
			if s, ok := e["message"].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		case string:
			if strings.TrimSpace(e) != "" {
				return e
			}
		}
		for _, key := range []string{"message", "detail"} {
			switch v := body[key].(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					return v
				}
			case nil:
			default:
				if data, err := json.Marshal(v); err == nil {
					return string(data)
				}
			}
		}
		return fallback
	}

	if raw := strings.TrimSpace(string(resp.Raw)); raw != "" {
		return truncate(raw)
	}
	return fallback
}

func truncate(s string) string {
	if len(s) <= maxRawDetail {
		return s
	}
	cut := maxRawDetail
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
