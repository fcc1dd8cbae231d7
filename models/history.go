package models

// Roles understood by the generation backend. Stored turns are flattened into
// alternating user/model entries before each generation call.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// HistoryEntry is the model-ready shape of one side of an exchange: a role tag
// paired with text content. It is always derived, never stored directly.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// UserEntry builds a user-role history entry.
func UserEntry(text string) HistoryEntry {
	return HistoryEntry{Role: RoleUser, Text: text}
}

// ModelEntry builds a model-role history entry.
func ModelEntry(text string) HistoryEntry {
	return HistoryEntry{Role: RoleModel, Text: text}
}
