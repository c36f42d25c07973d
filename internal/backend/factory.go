// Package backend selects and constructs the persistence backend from
// configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"walletd/internal/config"
	"walletd/internal/store"
	"walletd/internal/store/memory"
	"walletd/internal/store/mongo"
	"walletd/internal/store/sqlite"
)

// Type identifies a persistence backend.
type Type string

const (
	MemoryBackend Type = "memory"
	SQLiteBackend Type = "sqlite"
	MongoBackend  Type = "mongo"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, MongoBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases backend resources on shutdown.
type CleanupFunc func(ctx context.Context) error

// Result holds the constructed backend. Every built-in backend also
// carries the audit trail, so Audit is always populated.
type Result struct {
	Store   store.Store
	Audit   store.AuditStore
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateBackend constructs the backend named by cfg.DataBackend.
func (f *Factory) CreateBackend(ctx context.Context, cfg *config.Config) (*Result, error) {
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.DataBackend)
	}

	switch t {
	case MemoryBackend:
		return f.createMemoryBackend()
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case MongoBackend:
		return f.createMongoBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", t)
	}
}

func (f *Factory) createMemoryBackend() (*Result, error) {
	st := memory.New()

	f.logger.Info("Initialized memory backend")

	return &Result{
		Store:   st,
		Audit:   st,
		Cleanup: nil,
	}, nil
}

func (f *Factory) createSQLiteBackend(cfg *config.Config) (*Result, error) {
	st, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)

	return &Result{
		Store:   st,
		Audit:   st,
		Cleanup: func(context.Context) error { return st.Close() },
	}, nil
}

func (f *Factory) createMongoBackend(ctx context.Context, cfg *config.Config) (*Result, error) {
	st, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB backend: %w", err)
	}

	f.logger.Info("Initialized MongoDB backend", "database", cfg.MongoDatabase)

	return &Result{
		Store:   st,
		Audit:   st,
		Cleanup: st.Close,
	}, nil
}
