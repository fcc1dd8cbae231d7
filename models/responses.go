package models

import "time"

// Session creation statuses returned by POST /session/start.
const (
	SessionCreated       = "created"
	SessionAlreadyExists = "already_exists"
)

// ChatResponse is the JSON body of a non-streamed POST /chat. History is only
// populated in client-supplied history mode, where the caller owns persistence.
type ChatResponse struct {
	Response string         `json:"response"`
	History  []HistoryEntry `json:"history,omitempty"`
}

// SessionStatusResponse reports the outcome of an idempotent session create.
type SessionStatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the liveness body for GET / and GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TurnResponse is one stored conversation turn as returned by the history
// endpoint. It excludes internal DB fields other than the row id.
type TurnResponse struct {
	ID          uint      `json:"id"`
	SessionID   string    `json:"session_id"`
	UserPrompt  string    `json:"user_prompt"`
	BotResponse string    `json:"bot_response"`
	Timestamp   time.Time `json:"timestamp"`
}
