package stores

import (
	"time"

	"gorm.io/gorm"
)

// Turn is one completed exchange within a session: the user's prompt paired
// with the generated reply. Rows are append-only; a turn is never updated
// after creation.
type Turn struct {
	gorm.Model
	SessionID   string `gorm:"index;not null"`
	Sequence    int    `gorm:"not null"`
	UserPrompt  string `gorm:"type:text"`
	BotResponse string `gorm:"type:text"`
	// Timestamp is assigned by the server at turn completion, not by the client.
	Timestamp time.Time `gorm:"not null"`
}

// Session holds metadata for a conversation. The SessionID is opaque and
// client-supplied, so uniqueness is enforced here rather than assumed.
type Session struct {
	gorm.Model
	SessionID string `gorm:"uniqueIndex;not null"`
	TurnCount int    `gorm:"default:0"`
	Turns     []Turn `gorm:"foreignKey:SessionID;references:SessionID"`
}

// SessionInfo holds basic session metadata for listing
type SessionInfo struct {
	SessionID string `json:"session_id"`
	TurnCount int    `json:"turn_count"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SessionStore interface for abstracting session persistence
type SessionStore interface {
	// EnsureSession creates the session record if absent. It reports whether a
	// new record was created and must never clobber an existing record's turns.
	EnsureSession(sessionID string) (created bool, err error)

	// FetchTurns returns a session's turns in chronological order.
	// limit: maximum number of turns to retrieve (0 = return all turns)
	FetchTurns(sessionID string, limit int) ([]Turn, error)

	// AppendTurn appends one completed turn as a single insert, never a
	// read-modify-write of the whole turn sequence.
	AppendTurn(sessionID string, turn Turn) error

	// Session listing
	ListSessions() ([]string, error)
	ListSessionInfo() ([]SessionInfo, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for session stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres", "memory"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}

// clampTimestamp fills in a missing timestamp and keeps timestamps
// non-decreasing relative to the previous turn in the session.
func clampTimestamp(turn *Turn, prev time.Time) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if turn.Timestamp.Before(prev) {
		turn.Timestamp = prev
	}
}
