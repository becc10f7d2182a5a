package strategyconfig

import (
	"fmt"
	"strings"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	if cfg.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}

	if len(cfg.Poll.CompletionStatuses) == 0 {
		return ValidationError{"poll.completion_statuses", "at least one status required"}
	}
	for _, s := range cfg.Poll.CompletionStatuses {
		if strings.TrimSpace(s) == "" {
			return ValidationError{"poll.completion_statuses", "empty status"}
		}
		// A status cannot be both terminal-success and terminal-failure
		if cfg.Poll.IsFailed(s) {
			return ValidationError{"poll.failure_statuses", fmt.Sprintf("%q is also a completion status", s)}
		}
	}

	if cfg.Poll.DefaultRetryMs <= 0 {
		return ValidationError{"poll.default_retry_ms", "must be > 0"}
	}

	if cfg.Annotation.MaxMatches <= 0 {
		return ValidationError{"annotation.max_matches", "must be > 0"}
	}

	return nil
}
