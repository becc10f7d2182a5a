package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// echoTranslator "translates" 你好 and leaves everything else, placeholders included, untouched
type echoTranslator struct {
	mu       sync.Mutex
	received []string
	failFor  map[string]error
}

func (e *echoTranslator) Translate(_ context.Context, _ *llm.Settings, content, target string) (string, error) {
	e.mu.Lock()
	e.received = append(e.received, content)
	e.mu.Unlock()

	if err := e.failFor[target]; err != nil {
		return "", err
	}
	return strings.ReplaceAll(content, "你好", "Hello ("+target+")"), nil
}

func TestProtectAndRestoreImages(t *testing.T) {
	html := `<p>你好</p><img src="data:image/png;base64,AAAA" alt="a"><img src="https://cdn/x.png"><img src="data:image/jpeg;base64,/9j/4AAQ+==">`

	protected, images := ProtectImages(html)
	require.Len(t, images, 2)
	assert.Equal(t, "data:image/png;base64,AAAA", images[0])
	assert.Contains(t, protected, `src="__IMG_PLACEHOLDER_0__"`)
	assert.Contains(t, protected, `src="__IMG_PLACEHOLDER_1__"`)
	assert.Contains(t, protected, `src="https://cdn/x.png"`)
	assert.NotContains(t, protected, "base64")

	assert.Equal(t, html, RestoreImages(protected, images))
}

func TestRestoreManyImages(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString(`<img src="data:image/png;base64,`)
		b.WriteString(strings.Repeat(string(rune('A'+i)), i+1))
		b.WriteString(`">`)
	}
	html := b.String()

	protected, images := ProtectImages(html)
	require.Len(t, images, 12)
	assert.Equal(t, html, RestoreImages(protected, images))
}

func TestTranslatePreservesImages(t *testing.T) {
	tr := &echoTranslator{}
	svc := NewService(tr, logger.NewNop())

	html := `<p>你好</p><p><img src="data:image/png;base64,AAAA" alt="Star Icon" /></p>`
	out, err := svc.Translate(context.Background(), html, "English", nil)
	require.NoError(t, err)

	assert.Equal(t, `<p>Hello (English)</p><p><img src="data:image/png;base64,AAAA" alt="Star Icon" /></p>`, out)
	require.Len(t, tr.received, 1)
	assert.NotContains(t, tr.received[0], "AAAA")
}

func TestTranslateMissingInput(t *testing.T) {
	svc := NewService(&echoTranslator{}, logger.NewNop())

	_, err := svc.Translate(context.Background(), "", "English", nil)
	assert.ErrorIs(t, err, ErrMissingInput)
	_, err = svc.Translate(context.Background(), "<p>x</p>", " ", nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestTranslateAllIsolatesFailures(t *testing.T) {
	boom := errors.New("model not found")
	tr := &echoTranslator{failFor: map[string]error{"French": boom}}
	svc := NewService(tr, logger.NewNop())

	results := svc.TranslateAll(context.Background(), "<p>你好</p>", []string{"English", "French", "Japanese", "English", ""}, nil)

	require.Len(t, results, 3)
	assert.Equal(t, "<p>Hello (English)</p>", results["English"].TranslatedContent)
	assert.NoError(t, results["English"].Err)
	assert.ErrorIs(t, results["French"].Err, boom)
	assert.Equal(t, "<p>Hello (Japanese)</p>", results["Japanese"].TranslatedContent)
	assert.Len(t, tr.received, 3)
}

func TestCountImages(t *testing.T) {
	n, err := countImages(`<div><img src="a"><p><img src="b"/></p></div>`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
