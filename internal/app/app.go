// Package app wires the selection engine from configuration: storage
// driver, content cache, resilience decorators, services and the event bus.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/cache"
	"github.com/felixgeelhaar/temario/internal/config"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/queue"
	"github.com/felixgeelhaar/temario/internal/selection"
	"github.com/felixgeelhaar/temario/internal/session"
	"github.com/felixgeelhaar/temario/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config    *config.LocalConfig
	Backend   *Backend
	Content   *storage.CachedContentIndex
	Selection *selection.Service
	Sessions  *session.Service

	// Set when events are enabled and the broker was reachable
	Events   *queue.Connection
	Producer *queue.Producer
	Consumer *queue.ContentConsumer

	closers []func() error
}

// Options override parts of the wiring, mostly for tests
type Options struct {
	// Backend replaces the configured storage driver
	Backend *Backend
	// Cache replaces the configured content cache
	Cache cache.Cache
	// SkipEvents leaves the event bus disconnected
	SkipEvents bool
}

// New creates an application instance with all dependencies wired
func New(ctx context.Context, cfg *config.LocalConfig, opts Options) (*App, error) {
	a := &App{Config: cfg}

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = OpenBackend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
		}
		a.closers = append(a.closers, backend.Close)
	}
	a.Backend = backend

	c := opts.Cache
	if c == nil {
		var err error
		c, err = a.newCache(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	// cache hits never reach the resilience guard
	res := ResilienceConfig(cfg)
	res.Name = "content"
	content := storage.NewResilientContentIndex(backend.Content, res)
	a.Content = storage.NewCachedContentIndex(content, c, cfg.Cache.TTL)

	res.Name = "history"
	history := storage.NewResilientHistoryStore(backend.History, res)

	a.Selection = selection.NewService(a.Content, history, SelectionConfig(cfg))

	store, err := a.newSessionStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sessions = session.NewService(a.Selection, store, SessionConfig(cfg))

	if cfg.Events.Enabled && !opts.SkipEvents {
		a.connectEvents()
	}

	return a, nil
}

func (a *App) newCache(ctx context.Context) (cache.Cache, error) {
	switch a.Config.Cache.Driver {
	case "redis":
		rc := a.Config.Cache.Redis
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		slog.Info("using redis content cache", "addr", rc.Addr)
		return r, nil
	case "none":
		return cache.Noop{}, nil
	default:
		return cache.NewMemory(), nil
	}
}

func (a *App) newSessionStore() (session.Store, error) {
	switch a.Config.Sessions.Store {
	case "file":
		dir, err := config.TemarioDir()
		if err != nil {
			return nil, err
		}
		return session.NewFileStore(filepath.Join(dir, "sessions"))
	case "database":
		if a.Backend.Sessions != nil {
			return a.Backend.Sessions, nil
		}
		slog.Warn("storage driver has no session table, keeping sessions in memory", "driver", a.Backend.Driver)
		return session.NewMemoryStore(), nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// connectEvents attaches the producer and the content consumer. A broker
// that cannot be reached leaves events off.
func (a *App) connectEvents() {
	conn, err := queue.NewConnection(a.Config.Events.RabbitMQURL)
	if err != nil {
		slog.Warn("event bus unavailable, continuing without events", "error", err)
		return
	}
	a.Events = conn
	a.closers = append(a.closers, conn.Close)

	a.Producer = queue.NewProducer(conn)
	a.Sessions.SetPublisher(a.Producer)

	a.Consumer = queue.NewContentConsumer(conn, a.Content, queue.ConsumerConfig{
		Workers: a.Config.Events.ConsumerWorkers,
	})
}

// Start launches background work: the content consumer and the expired
// session sweeper. Both stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.Consumer != nil {
		if err := a.Consumer.Start(ctx); err != nil {
			return fmt.Errorf("start content consumer: %w", err)
		}
	}
	go a.Sessions.RunSweeper(ctx, a.Config.Sessions.SweepInterval)
	return nil
}

// Close stops consumers and releases connections in reverse order
func (a *App) Close() error {
	if a.Consumer != nil {
		a.Consumer.Stop()
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// ResilienceConfig maps the resilience section onto the store decorators
func ResilienceConfig(cfg *config.LocalConfig) storage.ResilienceConfig {
	return storage.ResilienceConfig{
		MaxAttempts:   cfg.Resilience.MaxAttempts,
		InitialDelay:  cfg.Resilience.InitialDelay,
		MaxConcurrent: cfg.Resilience.MaxConcurrent,
		Timeout:       cfg.Resilience.Timeout,
	}
}

// SelectionConfig maps the selection section onto the selection service
func SelectionConfig(cfg *config.LocalConfig) selection.Config {
	sc := selection.DefaultConfig()
	sc.MaxCount = cfg.Selection.MaxCount
	sc.ActiveWindow = cfg.Selection.ActiveWindow
	sc.StrictFlags = cfg.Selection.StrictFlags
	if order, err := domain.ParseFailedOrder(cfg.Selection.DefaultFailedOrder); err == nil {
		sc.DefaultFailedOrder = order
	}
	return sc
}

// SessionConfig maps the sessions and adaptive sections onto the session
// service
func SessionConfig(cfg *config.LocalConfig) session.Config {
	return session.Config{
		TTL:          cfg.Sessions.TTL,
		ActiveWindow: cfg.Selection.ActiveWindow,
		Adaptive: adaptive.Config{
			WarmupAnswers:  cfg.Adaptive.WarmupAnswers,
			TrailingWindow: cfg.Adaptive.TrailingWindow,
			UpperThreshold: cfg.Adaptive.UpperThreshold,
			LowerThreshold: cfg.Adaptive.LowerThreshold,
		},
	}
}
