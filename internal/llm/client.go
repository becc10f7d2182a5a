package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// ErrNoAPIKey is returned when neither the caller nor the environment supplies a key
var ErrNoAPIKey = errors.New("llm: no API key configured")

// Settings are caller-supplied credential overrides. Empty fields fall back
// to the environment configuration.
type Settings struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Message roles accepted from callers
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat completion API
// ⭐ SSOT: LLM 호출은 이 클라이언트에서만
type Client struct {
	defaults       Settings
	translateModel string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         *logger.Logger
}

// New creates a new LLM client from config
func New(cfg *config.Config, log *logger.Logger) *Client {
	limit := rate.Inf
	if cfg.LLM.RateLimit > 0 {
		limit = rate.Limit(cfg.LLM.RateLimit)
	}
	burst := cfg.LLM.RateBurst
	if burst <= 0 {
		burst = 1
	}

	timeout := cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		defaults: Settings{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		},
		translateModel: cfg.LLM.TranslateModel,
		timeout:        timeout,
		limiter:        rate.NewLimiter(limit, burst),
		logger:         log,
	}
}

// Resolve applies per-request overrides on top of the configured defaults,
// field by field.
func (c *Client) Resolve(override *Settings) Settings {
	s := c.defaults
	if override != nil {
		if v := strings.TrimSpace(override.APIKey); v != "" {
			s.APIKey = v
		}
		if v := strings.TrimSpace(override.BaseURL); v != "" {
			s.BaseURL = v
		}
		if v := strings.TrimSpace(override.Model); v != "" {
			s.Model = v
		}
	}
	if !strings.HasSuffix(s.BaseURL, "/") {
		s.BaseURL += "/"
	}
	return s
}

// resolveTranslate is Resolve with the translation model as the fallback model
func (c *Client) resolveTranslate(override *Settings) Settings {
	s := c.Resolve(override)
	if override == nil || strings.TrimSpace(override.Model) == "" {
		if c.translateModel != "" {
			s.Model = c.translateModel
		}
	}
	return s
}

func (c *Client) prepare(ctx context.Context, s Settings) (openai.Client, error) {
	if s.APIKey == "" {
		return openai.Client{}, ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return openai.Client{}, fmt.Errorf("llm rate limit wait: %w", err)
	}
	return openai.NewClient(
		option.WithAPIKey(s.APIKey),
		option.WithBaseURL(s.BaseURL),
		option.WithMaxRetries(0),
	), nil
}

func buildMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Complete runs a single non-streaming chat completion and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, override *Settings, system string, messages []Message) (string, error) {
	s := c.Resolve(override)
	client, err := c.prepare(ctx, s)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.Model),
		Messages: buildMessages(system, messages),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"model":    s.Model,
		"duration": time.Since(start),
	}).Debug("Chat completion finished")

	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream runs a streaming chat completion, calling onDelta for every
// non-empty content delta. It returns when the stream ends, the context is
// cancelled or onDelta fails.
func (c *Client) Stream(ctx context.Context, override *Settings, system string, messages []Message, onDelta func(string) error) error {
	s := c.Resolve(override)
	client, err := c.prepare(ctx, s)
	if err != nil {
		return err
	}

	stream := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.Model),
		Messages: buildMessages(system, messages),
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	return nil
}

// Translate sends content as the only user message with translation options
// in the request body. Translation models reject system messages.
func (c *Client) Translate(ctx context.Context, override *Settings, content, targetLanguage string) (string, error) {
	s := c.resolveTranslate(override)
	client, err := c.prepare(ctx, s)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := client.Chat.Completions.New(ctx,
		openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(s.Model),
			Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(content)},
		},
		option.WithJSONSet("translation_options", map[string]string{
			"source_lang": "auto",
			"target_lang": targetLanguage,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("translation: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}
