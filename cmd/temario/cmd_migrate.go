package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/felixgeelhaar/temario/internal/app"
	"github.com/felixgeelhaar/temario/internal/config"
	"github.com/felixgeelhaar/temario/internal/queue"
	"github.com/felixgeelhaar/temario/internal/storage/memory"
)

// cmdMigrate applies schema migrations and optionally loads a content
// fixture into the configured database
func cmdMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	seed := fs.String("seed", "", "YAML fixture with laws, articles, questions and topics to load")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	defer backend.Close()

	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := backend.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Printf("✓ %s schema at version %d\n", backend.Driver, version)

	if *seed == "" {
		return nil
	}

	fx, err := memory.LoadFixtureFile(*seed)
	if err != nil {
		return err
	}
	if err := backend.Seed(ctx, fx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("✓ Loaded %d laws, %d topics, %d sections from %s\n",
		len(fx.Laws), len(fx.Topics), len(fx.Sections), *seed)

	return announceContentChange(ctx, cfg, fx)
}

// announceContentChange tells running daemons to drop cached scopes for
// the seeded laws
func announceContentChange(ctx context.Context, cfg *config.LocalConfig, fx memory.Fixture) error {
	if !cfg.Events.Enabled {
		return nil
	}

	conn, err := queue.NewConnection(cfg.Events.RabbitMQURL)
	if err != nil {
		fmt.Printf("! Event bus unavailable, running daemons keep cached content until TTL: %v\n", err)
		return nil
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	for _, law := range fx.Laws {
		if err := producer.PublishContentChanged(ctx, law.ShortName); err != nil {
			return err
		}
	}
	// topic scopes span laws
	if len(fx.Topics) > 0 {
		if err := producer.PublishContentChanged(ctx, ""); err != nil {
			return err
		}
	}
	fmt.Println("✓ Content change announced")
	return nil
}
