package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

func newTestClient(baseURL, apiKey string) *Client {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			APIKey:         apiKey,
			BaseURL:        baseURL,
			Model:          "qwen3-plus",
			TranslateModel: "qwen-mt-turbo",
			Timeout:        5 * time.Second,
		},
	}
	return New(cfg, logger.NewNop())
}

func TestResolvePrecedence(t *testing.T) {
	client := newTestClient("https://env.example.com/v1", "env-key")

	t.Run("defaults", func(t *testing.T) {
		s := client.Resolve(nil)
		assert.Equal(t, "env-key", s.APIKey)
		assert.Equal(t, "https://env.example.com/v1/", s.BaseURL)
		assert.Equal(t, "qwen3-plus", s.Model)
	})

	t.Run("partial override", func(t *testing.T) {
		s := client.Resolve(&Settings{Model: "gpt-4o-mini", APIKey: "  "})
		assert.Equal(t, "env-key", s.APIKey)
		assert.Equal(t, "gpt-4o-mini", s.Model)
	})

	t.Run("full override", func(t *testing.T) {
		s := client.Resolve(&Settings{APIKey: "k", BaseURL: "https://other/", Model: "m"})
		assert.Equal(t, Settings{APIKey: "k", BaseURL: "https://other/", Model: "m"}, s)
	})

	t.Run("translate model fallback", func(t *testing.T) {
		assert.Equal(t, "qwen-mt-turbo", client.resolveTranslate(nil).Model)
		assert.Equal(t, "custom-mt", client.resolveTranslate(&Settings{Model: "custom-mt"}).Model)
	})
}

func TestCompleteWithoutAPIKey(t *testing.T) {
	client := newTestClient("https://unused.example.com/v1", "")

	_, err := client.Complete(context.Background(), nil, "", []Message{{Role: RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, ErrNoAPIKey)

	f := Describe(err)
	assert.Equal(t, http.StatusBadRequest, f.Status)
	assert.NotEmpty(t, f.Hint)
}

func completionJSON(content string) string {
	body, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"m",`+
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`, body)
}

func TestComplete(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("<p>你好</p>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/v1", "test-key")
	out, err := client.Complete(context.Background(), nil, "system prompt", []Message{
		{Role: RoleUser, Content: "写一段介绍"},
		{Role: RoleAssistant, Content: "好的"},
		{Role: RoleUser, Content: "再短一点"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>你好</p>", out)

	assert.Equal(t, "qwen3-plus", got["model"])
	messages, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]interface{})["role"])
}

func TestTranslateSendsOptions(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON("Hello"))
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/v1", "test-key")
	out, err := client.Translate(context.Background(), nil, "你好", "English")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)

	assert.Equal(t, "qwen-mt-turbo", got["model"])
	opts, ok := got["translation_options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "auto", opts["source_lang"])
	assert.Equal(t, "English", opts["target_lang"])

	messages := got["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])
}

func TestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"<p>", "Hi", "</p>"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\","+
				"\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/v1", "test-key")

	var parts []string
	err := client.Stream(context.Background(), nil, "", []Message{{Role: RoleUser, Content: "hi"}}, func(delta string) error {
		parts = append(parts, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"<p>", "Hi", "</p>"}, parts)
}

func TestUpstreamErrorIsDescribed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/v1", "bad-key")
	_, err := client.Complete(context.Background(), nil, "", []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)

	f := Describe(err)
	assert.Equal(t, http.StatusUnauthorized, f.Status)
	assert.Equal(t, "API Key 无效或无权访问该模型", f.Hint)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"not found", fmt.Errorf("wrap: %w", &openai.Error{StatusCode: http.StatusNotFound}), http.StatusNotFound},
		{"upstream 500", &openai.Error{StatusCode: http.StatusInternalServerError}, http.StatusInternalServerError},
		{"timeout", fmt.Errorf("chat: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Describe(tt.err)
			assert.Equal(t, tt.status, f.Status)
			assert.NotEmpty(t, f.Hint)
		})
	}
}
