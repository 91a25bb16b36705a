package store

import (
	"errors"
	"time"

	"github.com/psantana5/eventtimings/pkg/models"
)

// Store persists finalized runs. SQLite, PostgreSQL and memory implement it.
type Store interface {
	SaveRun(run *models.Run) error
	GetRun(id string) (*models.Run, error)
	ListRuns() ([]*models.RunInfo, error)
	DeleteRun(id string) error

	// Lifecycle
	Close() error
	HealthCheck() error
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // Connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SQLite specific
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "sqlite", "":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "evtimings.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrRunNotFound         = errors.New("run not found")
	ErrRunExists           = errors.New("run already stored")
)
