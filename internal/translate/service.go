package translate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// ErrMissingInput is returned when content or the target language is empty
var ErrMissingInput = errors.New("missing content or target language")

// Translator is the part of the LLM client the service needs
type Translator interface {
	Translate(ctx context.Context, override *llm.Settings, content, targetLanguage string) (string, error)
}

// Service translates HTML fragments while keeping inline images intact
type Service struct {
	llm    Translator
	logger *logger.Logger
}

// NewService creates a translation service
func NewService(translator Translator, log *logger.Logger) *Service {
	return &Service{llm: translator, logger: log}
}

// Translate translates one HTML fragment into targetLanguage
func (s *Service) Translate(ctx context.Context, content, targetLanguage string, settings *llm.Settings) (string, error) {
	targetLanguage = strings.TrimSpace(targetLanguage)
	if strings.TrimSpace(content) == "" || targetLanguage == "" {
		return "", ErrMissingInput
	}

	protected, images := ProtectImages(content)

	translated, err := s.llm.Translate(ctx, settings, protected, targetLanguage)
	if err != nil {
		return "", err
	}

	restored := RestoreImages(translated, images)
	s.checkImages(content, restored, targetLanguage)

	return restored, nil
}

// checkImages logs when the model dropped or invented <img> elements
func (s *Service) checkImages(before, after, targetLanguage string) {
	want, err := countImages(before)
	if err != nil {
		return
	}
	got, err := countImages(after)
	if err != nil {
		return
	}
	if want != got {
		s.logger.WithFields(map[string]interface{}{
			"target":      targetLanguage,
			"images_in":   want,
			"images_out":  got,
			"placeholder": strings.Contains(after, "__IMG_PLACEHOLDER_"),
		}).Warn("Image count changed during translation")
	}
}

// Outcome is the per-target result of a batch translation
type Outcome struct {
	TranslatedContent string `json:"translatedContent,omitempty"`
	Err               error  `json:"-"`
}

// TranslateAll translates content into every target concurrently. Each
// target's failure is isolated in its own Outcome.
func (s *Service) TranslateAll(ctx context.Context, content string, targets []string, settings *llm.Settings) map[string]Outcome {
	results := make(map[string]Outcome, len(targets))
	if strings.TrimSpace(content) == "" {
		for _, target := range targets {
			results[target] = Outcome{Err: ErrMissingInput}
		}
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true

		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			out, err := s.Translate(ctx, content, target, settings)

			mu.Lock()
			results[target] = Outcome{TranslatedContent: out, Err: err}
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return results
}
