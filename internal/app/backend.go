package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/temario/internal/config"
	"github.com/felixgeelhaar/temario/internal/selection"
	"github.com/felixgeelhaar/temario/internal/session"
	"github.com/felixgeelhaar/temario/internal/storage/memory"
	"github.com/felixgeelhaar/temario/internal/storage/postgres"
	"github.com/felixgeelhaar/temario/internal/storage/sqlite"
)

// ErrReadOnlyBackend is returned when migrating or seeding the memory driver
var ErrReadOnlyBackend = errors.New("storage driver does not support migrations")

// Backend is one storage driver's set of stores. Sessions, Writer and
// Recorder are nil for the memory driver.
type Backend struct {
	Driver   string
	Content  selection.ContentIndex
	History  selection.HistoryStore
	Sessions session.Store
	Writer   memory.ContentWriter
	Recorder memory.AttemptRecorder

	migrate func(ctx context.Context) error
	version func(ctx context.Context) (int, error)
	close   func() error
}

// OpenBackend opens the storage driver named by cfg.Storage.Driver
func OpenBackend(ctx context.Context, cfg *config.LocalConfig) (*Backend, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		path, err := cfg.SQLitePath()
		if err != nil {
			return nil, err
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		content := sqlite.NewContentStore(db)
		history := sqlite.NewHistoryStore(db)
		slog.Debug("opened sqlite storage", "path", path)
		return &Backend{
			Driver:   "sqlite",
			Content:  content,
			History:  history,
			Sessions: sqlite.NewSessionStore(db),
			Writer:   content,
			Recorder: history,
			migrate:  db.Migrate,
			version:  db.Version,
			close:    db.Close,
		}, nil

	case "postgres":
		poolCfg := postgres.DefaultPoolConfig()
		if cfg.Storage.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.Storage.MaxConns)
		}
		db, err := postgres.Open(ctx, cfg.Storage.PostgresURL, poolCfg)
		if err != nil {
			return nil, err
		}
		content := postgres.NewContentStore(db)
		history := postgres.NewHistoryStore(db)
		slog.Debug("opened postgres storage", "max_conns", poolCfg.MaxConns)
		return &Backend{
			Driver:   "postgres",
			Content:  content,
			History:  history,
			Sessions: postgres.NewSessionStore(db),
			Writer:   content,
			Recorder: history,
			migrate:  db.Migrate,
			version:  db.Version,
			close:    db.Close,
		}, nil

	case "memory":
		catalog, err := memory.LoadFixture(cfg.Storage.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("load fixture: %w", err)
		}
		slog.Debug("loaded in-memory catalog", "fixture", cfg.Storage.FixturePath)
		return &Backend{
			Driver:  "memory",
			Content: catalog,
			History: catalog,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Storage.Driver)
	}
}

// Migrate applies pending schema migrations
func (b *Backend) Migrate(ctx context.Context) error {
	if b.migrate == nil {
		return fmt.Errorf("%w: %s", ErrReadOnlyBackend, b.Driver)
	}
	return b.migrate(ctx)
}

// Version returns the applied schema version, 0 for the memory driver
func (b *Backend) Version(ctx context.Context) (int, error) {
	if b.version == nil {
		return 0, nil
	}
	return b.version(ctx)
}

// Seed writes a fixture's content and attempt history into the backend
func (b *Backend) Seed(ctx context.Context, fx memory.Fixture) error {
	if b.Writer == nil {
		return fmt.Errorf("%w: %s", ErrReadOnlyBackend, b.Driver)
	}
	return fx.Apply(ctx, b.Writer, b.Recorder)
}

// Close releases the backend's connections
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}
