package strategyconfig

import "strings"

// Config is the screening policy: how upstream task states are read, how
// annotation prompts are bounded and how strategy ids are labelled.
type Config struct {
	Meta       Meta              `yaml:"meta" json:"meta"`
	Poll       Poll              `yaml:"poll" json:"poll"`
	Annotation Annotation        `yaml:"annotation" json:"annotation"`
	Strategies map[string]string `yaml:"strategies" json:"strategies"` // id -> display label
}

// Meta 메타 정보
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

// Poll controls task-state interpretation
type Poll struct {
	CompletionStatuses []string `yaml:"completion_statuses" json:"completion_statuses"`
	FailureStatuses    []string `yaml:"failure_statuses" json:"failure_statuses"`
	DefaultRetryMs     int      `yaml:"default_retry_ms" json:"default_retry_ms"`
}

// Annotation bounds the AI commentary prompt
type Annotation struct {
	MaxMatches    int    `yaml:"max_matches" json:"max_matches"`
	DefaultPrompt string `yaml:"default_prompt" json:"default_prompt"`
}

// Default returns the built-in policy used when no file is configured
func Default() *Config {
	return &Config{
		Meta: Meta{PolicyID: "default", Version: "1"},
		Poll: Poll{
			CompletionStatuses: []string{"completed", "finished", "success", "ready"},
			FailureStatuses:    []string{"failed", "error", "cancelled", "canceled"},
			DefaultRetryMs:     2000,
		},
		Annotation: Annotation{
			MaxMatches:    20,
			DefaultPrompt: "请基于策略命中的股票列表，结合市盈率、市值、盈利情况进行评分，输出0-5分，并给出排序建议。",
		},
		Strategies: map[string]string{
			"s1": "底部暴力K线",
		},
	}
}

// IsCompleted reports whether an upstream status string means "done"
func (p Poll) IsCompleted(status string) bool {
	return containsFold(p.CompletionStatuses, status)
}

// IsFailed reports whether an upstream status string is a terminal failure
func (p Poll) IsFailed(status string) bool {
	return containsFold(p.FailureStatuses, status)
}

// Label returns the display label of a strategy id, or the id itself
func (c *Config) Label(strategyID string) string {
	if label, ok := c.Strategies[strategyID]; ok && label != "" {
		return label
	}
	return strategyID
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
