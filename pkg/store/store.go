package store

import (
	"fmt"
	"strings"
)

// Config selects a storage backend
type Config struct {
	// Backend is "memory", "sqlite" or "postgres". When empty the DSN
	// is inspected: postgres:// DSNs pick postgres, anything else sqlite.
	Backend string

	// DSN is the file path for sqlite or the connection string for postgres
	DSN string
}

// Open creates a store for the given config
func Open(cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
			backend = "postgres"
		} else {
			backend = "sqlite"
		}
	}

	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStore(cfg.DSN)
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}
