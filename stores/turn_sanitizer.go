package stores

import (
	"fmt"
)

// SanitizeTurns filters stored turns down to the ones safe to replay to the
// generation backend. A turn missing either its user prompt or its bot
// response would put the replayed history out of user/model alternation, so
// it is skipped rather than failing the whole reconstruction. Old rows can
// end up half-empty after interrupted writes or hand-edited databases.
func SanitizeTurns(turns []Turn) []Turn {
	sanitized := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.UserPrompt == "" || t.BotResponse == "" {
			continue
		}
		sanitized = append(sanitized, t)
	}
	return sanitized
}

// DetectMalformedTurns reports which stored turns would be excluded from
// reconstruction, for diagnostics and admin tooling.
func DetectMalformedTurns(turns []Turn) []string {
	var issues []string
	for i, t := range turns {
		switch {
		case t.UserPrompt == "" && t.BotResponse == "":
			issues = append(issues, fmt.Sprintf("turn %d (seq %d): empty user_prompt and bot_response", i, t.Sequence))
		case t.UserPrompt == "":
			issues = append(issues, fmt.Sprintf("turn %d (seq %d): missing user_prompt", i, t.Sequence))
		case t.BotResponse == "":
			issues = append(issues, fmt.Sprintf("turn %d (seq %d): missing bot_response", i, t.Sequence))
		}
	}
	return issues
}
