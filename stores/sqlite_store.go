package stores

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/segfault-society/saathi/logger"
)

// SQLiteStore implements SessionStore for SQLite databases
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&Session{}, &Turn{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// EnsureSession creates the session record if it does not already exist.
// Creation is idempotent: an existing record is left untouched. Two racing
// creates for the same previously-absent id may both pass the existence
// check; the loser's insert fails on the unique index and is reported as
// already existing, which leaves at worst a benign empty record behind.
func (s *SQLiteStore) EnsureSession(sessionID string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database connection is nil")
	}

	var count int64
	if err := s.db.Model(&Session{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check for session %s: %w", sessionID, err)
	}
	if count > 0 {
		return false, nil
	}

	sess := Session{SessionID: sessionID, TurnCount: 0}
	if err := s.db.Create(&sess).Error; err != nil {
		// Lost a create race; the record exists now either way.
		if err := s.db.Model(&Session{}).Where("session_id = ?", sessionID).Count(&count).Error; err == nil && count > 0 {
			return false, nil
		}
		return false, fmt.Errorf("failed to create session record: %w", err)
	}

	return true, nil
}

// AppendTurn appends a completed turn to the session's history. The session
// record is created first if this is the session's first contact.
func (s *SQLiteStore) AppendTurn(sessionID string, turn Turn) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	if _, err := s.EnsureSession(sessionID); err != nil {
		logger.L.Warn("could not ensure session record before append", "session_id", sessionID, "error", err)
	}

	var count int64
	if err := s.db.Model(&Turn{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count existing turns: %w", err)
	}
	seq := int(count) + 1

	var prev Turn
	prevTime := turn.Timestamp
	if err := s.db.Where("session_id = ?", sessionID).Order("sequence DESC").First(&prev).Error; err == nil {
		prevTime = prev.Timestamp
	}

	turn.SessionID = sessionID
	turn.Sequence = seq
	clampTimestamp(&turn, prevTime)

	tx := s.db.Begin()
	if err := tx.Create(&turn).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create turn record: %w", err)
	}

	if err := tx.Model(&Session{}).Where("session_id = ?", sessionID).Update("turn_count", seq).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update session turn count: %w", err)
	}

	return tx.Commit().Error
}

// FetchTurns retrieves turns for a session in sequence order
// limit: maximum number of turns to retrieve (0 = return all turns)
func (s *SQLiteStore) FetchTurns(sessionID string, limit int) ([]Turn, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var turns []Turn
	query := s.db.Where("session_id = ?", sessionID).Order("sequence ASC")

	if limit > 0 {
		// Get total count first
		var count int64
		if err := s.db.Model(&Turn{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count turns: %w", err)
		}

		// If more than limit, offset to get only last N turns
		if count > int64(limit) {
			offset := int(count) - limit
			query = query.Offset(offset)
		}
	}

	if err := query.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}

	return turns, nil
}

// ListSessions returns all session IDs
func (s *SQLiteStore) ListSessions() ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var sessions []Session
	if err := s.db.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.SessionID
	}

	return ids, nil
}

// ListSessionInfo returns all sessions with details, most recently updated first
func (s *SQLiteStore) ListSessionInfo() ([]SessionInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var sessions []Session
	if err := s.db.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	result := make([]SessionInfo, len(sessions))
	for i, sess := range sessions {
		result[i] = SessionInfo{
			SessionID: sess.SessionID,
			TurnCount: sess.TurnCount,
			CreatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: sess.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return result, nil
}
