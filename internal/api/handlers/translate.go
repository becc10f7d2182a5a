package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/internal/translate"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

const (
	translateMissing = "Missing content or target language"
	translateFailed  = "Failed to translate content"
)

// TranslateRequest is a single-target translation
type TranslateRequest struct {
	Content        string        `json:"content"`
	TargetLanguage string        `json:"targetLanguage"`
	Settings       *llm.Settings `json:"settings,omitempty"`
}

// BatchTranslateRequest translates one fragment into several languages
type BatchTranslateRequest struct {
	Content         string        `json:"content"`
	TargetLanguages []string      `json:"targetLanguages"`
	Settings        *llm.Settings `json:"settings,omitempty"`
}

// batchEntry is either a translation or a per-target error
type batchEntry struct {
	TranslatedContent string `json:"translatedContent,omitempty"`
	Error             string `json:"error,omitempty"`
	Details           string `json:"details,omitempty"`
	Hint              string `json:"hint,omitempty"`
}

// TranslateHandler handles HTML translation endpoints
type TranslateHandler struct {
	service *translate.Service
	logger  *logger.Logger
}

// NewTranslateHandler creates a new translate handler
func NewTranslateHandler(service *translate.Service, log *logger.Logger) *TranslateHandler {
	return &TranslateHandler{
		service: service,
		logger:  log,
	}
}

// Translate translates an HTML fragment
// POST /api/translate
func (h *TranslateHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	out, err := h.service.Translate(r.Context(), req.Content, req.TargetLanguage, req.Settings)
	if errors.Is(err, translate.ErrMissingInput) {
		respondError(w, http.StatusBadRequest, translateMissing)
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).WithField("target", req.TargetLanguage).Error("Translation failed")
		respondLLMError(w, translateFailed, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"translatedContent": out})
}

// TranslateBatch translates into every requested language concurrently
// POST /api/translate/batch
func (h *TranslateHandler) TranslateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchTranslateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErrorDetails(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	hasTarget := false
	for _, target := range req.TargetLanguages {
		if strings.TrimSpace(target) != "" {
			hasTarget = true
			break
		}
	}
	if strings.TrimSpace(req.Content) == "" || !hasTarget {
		respondError(w, http.StatusBadRequest, translateMissing)
		return
	}

	outcomes := h.service.TranslateAll(r.Context(), req.Content, req.TargetLanguages, req.Settings)

	translations := make(map[string]batchEntry, len(outcomes))
	failed := 0
	for target, outcome := range outcomes {
		if outcome.Err != nil {
			failed++
			f := llm.Describe(outcome.Err)
			translations[target] = batchEntry{Error: translateFailed, Details: f.Detail, Hint: f.Hint}
			continue
		}
		translations[target] = batchEntry{TranslatedContent: outcome.TranslatedContent}
	}

	if failed > 0 {
		h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
			"targets": len(outcomes),
			"failed":  failed,
		}).Warn("Batch translation partially failed")
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"translations": translations})
}
