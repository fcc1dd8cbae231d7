package sessions

import (
	"context"
	"fmt"

	"github.com/segfault-society/saathi/models"
	"github.com/segfault-society/saathi/stores"
)

// Mode selects how conversation state is handled. Exactly one mode is active
// per deployment; switching modes changes the wire contract.
type Mode string

const (
	// ModeStateless answers every request independently with no history.
	ModeStateless Mode = "stateless"
	// ModeClientHistory expects the request to carry the full prior history
	// and returns the updated history for the caller to keep.
	ModeClientHistory Mode = "client_history"
	// ModeServerPersisted keeps history in the session store, keyed by the
	// client-supplied session id.
	ModeServerPersisted Mode = "server_persisted"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStateless, ModeClientHistory, ModeServerPersisted:
		return Mode(s), nil
	case "":
		return ModeStateless, nil
	default:
		return "", fmt.Errorf("unknown session mode: %q", s)
	}
}

// Generator is the external text-generation capability. Implementations take
// an ordered history ending in the new user message and return the reply,
// either whole or as a forward-only sequence of text fragments.
type Generator interface {
	Generate(ctx context.Context, history []models.HistoryEntry) (string, error)
	GenerateStream(ctx context.Context, history []models.HistoryEntry) (<-chan string, <-chan error)
}

// ErrorKind classifies manager errors for the transport edge.
type ErrorKind int

const (
	// KindInvalidRequest marks a request-shape violation; no side effects occurred.
	KindInvalidRequest ErrorKind = iota
	// KindGenerationFailure marks a generator error; no turn was persisted.
	KindGenerationFailure
	// KindStoreUnavailable marks a session-store failure.
	KindStoreUnavailable
)

// Error is the manager's error type. Downstream collaborator errors are
// wrapped here so raw generator/store errors never reach the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func generationFailure(err error) *Error {
	return &Error{Kind: KindGenerationFailure, Message: "generation failed", Err: err}
}

func storeUnavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: "session store unavailable", Err: err}
}

// Result is the outcome of one completed chat turn.
type Result struct {
	Reply string
	// History is the updated full history; populated in client-supplied
	// history mode, where the caller owns persistence.
	History []models.HistoryEntry
	// Turn is the persisted record; populated in server-persisted mode.
	Turn *stores.Turn
	// Degraded reports that the store could not be used and the reply was
	// produced without persistence.
	Degraded bool
}

// Manager mediates between chat requests, the session store, and the
// generation client. It is safe for concurrent use, but it does not serialize
// concurrent requests for the same session id: two racing turns on one
// session may each be generated without seeing the other's context.
type Manager struct {
	Mode      Mode
	Generator Generator
	Store     stores.SessionStore

	// HistoryLimit caps how many stored turns are replayed (0 = all).
	HistoryLimit int
	// AutoCreateSessions creates the session record on first chat contact
	// instead of requiring an explicit /session/start call.
	AutoCreateSessions bool
	// AllowDegraded keeps answering chats when the store is down, reporting
	// the degraded state instead of failing the request.
	AllowDegraded bool
}

// NewManager creates a manager for the given mode and generator. Server-persisted
// deployments attach a store with WithStore.
func NewManager(mode Mode, generator Generator) *Manager {
	return &Manager{
		Mode:      mode,
		Generator: generator,
	}
}

// WithStore sets the session store
func (m *Manager) WithStore(store stores.SessionStore) *Manager {
	m.Store = store
	return m
}

// WithHistoryLimit caps the number of replayed turns
func (m *Manager) WithHistoryLimit(limit int) *Manager {
	m.HistoryLimit = limit
	return m
}

// WithAutoCreateSessions enables implicit session creation on first chat
func (m *Manager) WithAutoCreateSessions(enabled bool) *Manager {
	m.AutoCreateSessions = enabled
	return m
}

// WithDegradedMode allows answering without persistence when the store fails
func (m *Manager) WithDegradedMode(enabled bool) *Manager {
	m.AllowDegraded = enabled
	return m
}
