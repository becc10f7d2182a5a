package screening

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// AnnotationFailed replaces the analysis when the chat API fails
const AnnotationFailed = "AI 分析生成失败，请稍后重试。"

const annotationSystemPrompt = "你是一名专业的A股量化分析师，请根据筛选结果给出简洁、客观的中文分析，不构成投资建议。"

// Completer is the part of the LLM client the annotator needs
type Completer interface {
	Complete(ctx context.Context, override *llm.Settings, system string, messages []llm.Message) (string, error)
}

// Annotator asks a chat model for commentary on a match list
type Annotator struct {
	llm           Completer
	maxMatches    int
	defaultPrompt string
	logger        *logger.Logger
}

// NewAnnotator creates an annotator. maxMatches bounds the prompt size.
func NewAnnotator(completer Completer, maxMatches int, defaultPrompt string, log *logger.Logger) *Annotator {
	if maxMatches <= 0 {
		maxMatches = 20
	}
	return &Annotator{
		llm:           completer,
		maxMatches:    maxMatches,
		defaultPrompt: defaultPrompt,
		logger:        log,
	}
}

// Annotate returns model commentary for matches. Errors never escape: a
// failed call yields AnnotationFailed.
func (a *Annotator) Annotate(ctx context.Context, matches []Match, instruction string, settings *llm.Settings) string {
	if len(matches) == 0 {
		return ""
	}

	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = a.defaultPrompt
	}

	prompt := BuildPrompt(matches, instruction, a.maxMatches)
	out, err := a.llm.Complete(ctx, settings, annotationSystemPrompt, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		a.logger.WithError(err).WithField("matches", len(matches)).Warn("Annotation failed")
		return AnnotationFailed
	}

	return strings.TrimSpace(out)
}

// BuildPrompt renders the first max matches, one per line, followed by the
// instruction. Unknown values print as "--".
func BuildPrompt(matches []Match, instruction string, max int) string {
	shown := matches
	if max > 0 && len(shown) > max {
		shown = shown[:max]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "策略筛选共命中 %d 只股票", len(matches))
	if len(shown) < len(matches) {
		fmt.Fprintf(&b, "，以下列出前 %d 只", len(shown))
	}
	b.WriteString("：\n")

	for i, m := range shown {
		fmt.Fprintf(&b, "%d. %s %s | 日期 %s | 收盘 %s | 涨跌幅 %s%% | 量比 %s | 振幅 %s%% | 参考价 %s | 市盈率 %s | 市值 %s亿 | 净利润 %s | 策略 %s\n",
			i+1,
			orDash(m.Symbol),
			orDash(m.Name),
			orDash(m.Date),
			num(m.Close),
			num(m.ChangePct),
			num(m.VolumeRatio),
			num(m.TurbulencePct),
			num(m.MinPriceM),
			num(m.PETTM),
			num(m.MarketCapBillion),
			num(m.NetProfit),
			orDash(m.Strategy),
		)
	}

	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

func num(v *float64) string {
	if v == nil {
		return "--"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
