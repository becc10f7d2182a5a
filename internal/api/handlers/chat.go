package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// CreativeSystemPrompt steers the model toward editor-ready HTML fragments
const CreativeSystemPrompt = "你是内容创作助手，请根据用户需求输出适合富文本编辑器的 HTML 片段。" +
	"输出仅包含正文内容，不要包含 markdown 代码块、标题之外的说明或外层 HTML/Body 标签。"

const chatFailed = "Failed to generate creative response"

// ChatModel is the part of the LLM client the chat handler needs
type ChatModel interface {
	Complete(ctx context.Context, override *llm.Settings, system string, messages []llm.Message) (string, error)
	Stream(ctx context.Context, override *llm.Settings, system string, messages []llm.Message, onDelta func(string) error) error
}

const (
	missingMessages = "Missing chat messages"
	invalidMessages = "Invalid chat messages"
)

// chatRequest is the body of a creative chat call. Messages stay untyped so
// malformed entries can be filtered instead of failing the whole request.
type chatRequest struct {
	Messages interface{}   `json:"messages"`
	Settings *llm.Settings `json:"settings,omitempty"`
	Stream   bool          `json:"stream"`
}

// sanitize keeps user and assistant messages with string content. A non-empty
// problem is the 400 message to return.
func (r chatRequest) sanitize() (messages []llm.Message, problem string) {
	raw, ok := r.Messages.([]interface{})
	if !ok || len(raw) == 0 {
		return nil, missingMessages
	}

	messages = make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, ok := m["content"].(string)
		if !ok || (role != llm.RoleUser && role != llm.RoleAssistant) {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: content})
	}

	if len(messages) == 0 {
		return nil, invalidMessages
	}
	return messages, ""
}

// deltaFrame is one streamed chunk
type deltaFrame struct {
	Content string `json:"content"`
}

var chatUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// ChatHandler proxies creative writing requests to the chat model
// ⭐ SSOT: 창작 채팅 API 핸들러는 이 구조체에서만
type ChatHandler struct {
	model  ChatModel
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(model ChatModel, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		model:  model,
		logger: log,
	}
}

// Chat answers with one message, or streams server-sent events when asked to
// POST /api/creative-chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	messages, problem := req.sanitize()
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	if req.Stream || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamSSE(w, r, req.Settings, messages)
		return
	}

	message, err := h.model.Complete(r.Context(), req.Settings, CreativeSystemPrompt, messages)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Creative chat failed")
		respondLLMError(w, chatFailed, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// streamSSE writes deltas as `data: {"content": ...}` frames followed by
// `data: [DONE]`. Headers are sent with the first delta so a failure before
// any output still gets a JSON error response.
func (h *ChatHandler) streamSSE(w http.ResponseWriter, r *http.Request, settings *llm.Settings, messages []llm.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}

	err := h.model.Stream(r.Context(), settings, CreativeSystemPrompt, messages, func(delta string) error {
		start()
		if err := writeEvent(w, deltaFrame{Content: delta}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Creative chat stream failed")
		if !started {
			respondLLMError(w, chatFailed, err)
			return
		}
		f := llm.Describe(err)
		_ = writeEvent(w, errorBody{Error: chatFailed, Details: f.Detail, Hint: f.Hint})
	}

	start()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// ChatSocket serves the same stream over a WebSocket: one request frame in,
// {content} frames out, then a "[DONE]" text frame.
// GET /api/creative-chat/ws
func (h *ChatHandler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(errorBody{Error: "Invalid request body", Details: err.Error()})
		return
	}

	messages, problem := req.sanitize()
	if problem != "" {
		_ = conn.WriteJSON(errorBody{Error: problem})
		return
	}

	err = h.model.Stream(r.Context(), req.Settings, CreativeSystemPrompt, messages, func(delta string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(deltaFrame{Content: delta})
	})
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Creative chat socket failed")
		f := llm.Describe(err)
		_ = conn.WriteJSON(errorBody{Error: chatFailed, Details: f.Detail, Hint: f.Hint})
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte("[DONE]"))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
