package stores

import (
	"fmt"
)

// Supported store backends.
const (
	StoreTypeSQLite   = "sqlite"
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)

// NewStore creates a new session store based on the configuration
func NewStore(config *StoreConfig) (SessionStore, error) {
	switch config.Type {
	case StoreTypeSQLite:
		return NewSQLiteStore(config)
	case StoreTypePostgres:
		return NewPostgresStore(config)
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewSQLiteStoreDefault creates a SQLite store with default settings
func NewSQLiteStoreDefault() (SessionStore, error) {
	return NewSQLiteStoreSimple("chat_history.sqlite")
}

// NewPostgresStoreDefault creates a PostgreSQL store from connection parameters
func NewPostgresStoreDefault(host, user, password, dbname string, port int) (SessionStore, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresStoreSimple(dsn)
}
