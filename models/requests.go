package models

// ChatRequest is the body of POST /chat. Which fields are required depends on
// the deployment mode: stateless needs only Message, client-supplied history
// mode also carries History, server-persisted mode carries SessionID instead.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`
}

// SessionRequest is the body of POST /session/start.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}
