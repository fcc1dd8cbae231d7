package stores

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type memorySession struct {
	createdAt time.Time
	updatedAt time.Time
	turns     []Turn
}

// MemoryStore implements SessionStore with a process-wide map. It exists for
// deployments that want session context without a durable database; its
// lifecycle is the process lifetime and it is never cleared automatically.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	nextID   uint
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
	}
}

// EnsureSession creates the session entry if absent. The map lock makes
// creation exactly-once here, but callers must not rely on that: the durable
// stores only promise a benign duplicate-create under races.
func (s *MemoryStore) EnsureSession(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return false, nil
	}

	now := time.Now().UTC()
	s.sessions[sessionID] = &memorySession{createdAt: now, updatedAt: now}
	return true, nil
}

// AppendTurn appends a completed turn, creating the session entry on first contact
func (s *MemoryStore) AppendTurn(sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		now := time.Now().UTC()
		sess = &memorySession{createdAt: now, updatedAt: now}
		s.sessions[sessionID] = sess
	}

	prevTime := turn.Timestamp
	if n := len(sess.turns); n > 0 {
		prevTime = sess.turns[n-1].Timestamp
	}

	s.nextID++
	turn.ID = s.nextID
	turn.SessionID = sessionID
	turn.Sequence = len(sess.turns) + 1
	turn.CreatedAt = time.Now().UTC()
	clampTimestamp(&turn, prevTime)

	sess.turns = append(sess.turns, turn)
	sess.updatedAt = time.Now().UTC()
	return nil
}

// FetchTurns retrieves turns for a session in sequence order
// limit: maximum number of turns to retrieve (0 = return all turns)
func (s *MemoryStore) FetchTurns(sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	turns := sess.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// ListSessions returns all session IDs in stable order
func (s *MemoryStore) ListSessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListSessionInfo returns all sessions with details, most recently updated first
func (s *MemoryStore) ListSessionInfo() ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SessionInfo, 0, len(s.sessions))
	for id, sess := range s.sessions {
		result = append(result, SessionInfo{
			SessionID: id,
			TurnCount: len(sess.turns),
			CreatedAt: sess.createdAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: sess.updatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt > result[j].UpdatedAt })
	return result, nil
}

// Connect is a no-op for the in-memory store
func (s *MemoryStore) Connect() error { return nil }

// Close drops nothing; in-memory sessions live for the process lifetime
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds once the store is constructed
func (s *MemoryStore) Ping() error {
	if s.sessions == nil {
		return fmt.Errorf("memory store is not initialized")
	}
	return nil
}
