package llm

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"

	"github.com/esclipse/SynthraCloud/pkg/httputil"
)

// Failure is an LLM error translated for API callers
type Failure struct {
	Status int
	Hint   string
	Detail string
}

// Describe maps an LLM client error to an HTTP status and a user-facing hint.
// Upstream API errors keep their status; transport errors are classified.
func Describe(err error) Failure {
	if err == nil {
		return Failure{Status: http.StatusOK}
	}

	if errors.Is(err, ErrNoAPIKey) {
		return Failure{
			Status: http.StatusBadRequest,
			Hint:   "未配置 API Key，请在设置中填写或联系管理员配置 OPENAI_API_KEY",
			Detail: err.Error(),
		}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		f := Failure{Status: apiErr.StatusCode, Detail: apiErr.Message}
		if f.Detail == "" {
			f.Detail = http.StatusText(apiErr.StatusCode)
		}
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			f.Hint = "API Key 无效或无权访问该模型"
		case apiErr.StatusCode == http.StatusNotFound:
			f.Hint = "模型不存在或 Base URL 配置错误"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			f.Hint = "请求过于频繁或额度不足，请稍后重试"
		case apiErr.StatusCode >= 500:
			f.Hint = "模型服务暂时不可用，请稍后重试"
		default:
			f.Hint = "模型服务返回错误"
		}
		if f.Status == 0 {
			f.Status = http.StatusBadGateway
		}
		return f
	}

	kind := httputil.ClassifyError(err)
	f := Failure{Status: kind.StatusCode(), Detail: err.Error()}
	switch kind {
	case httputil.KindTimeout:
		f.Hint = "模型服务响应超时，请稍后重试"
	case httputil.KindUnreachable:
		f.Hint = "无法连接到模型服务，请检查 Base URL 或网络"
	case httputil.KindReset:
		f.Hint = "与模型服务的连接中断，请重试"
	default:
		f.Status = http.StatusInternalServerError
		f.Hint = "模型调用失败"
	}
	return f
}
