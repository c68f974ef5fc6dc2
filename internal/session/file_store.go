package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/storage/local"
)

const collectionSessions = "sessions"

// FileStore persists sessions as JSON documents under a directory
type FileStore struct {
	store *local.Store
}

// NewFileStore creates a file-backed session store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &FileStore{store: store}, nil
}

func (f *FileStore) Save(ctx context.Context, s *Session) error {
	return f.store.Save(collectionSessions, s.ID, s)
}

func (f *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := f.store.Load(collectionSessions, id, &s); err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (f *FileStore) Update(ctx context.Context, s *Session, expectedVersion int) error {
	var current Session
	err := f.store.Modify(collectionSessions, s.ID, &current, func() (any, error) {
		if current.Version != expectedVersion {
			return nil, fmt.Errorf("%w: session %s is at version %d, expected %d", domain.ErrStateConflict, s.ID, current.Version, expectedVersion)
		}
		return s, nil
	})
	return translate(err)
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	return translate(f.store.Delete(collectionSessions, id))
}

func (f *FileStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := f.store.List(collectionSessions)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		s, err := f.Get(ctx, id)
		if err != nil {
			slog.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		if !s.Expired(now) {
			continue
		}
		if err := f.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, local.ErrNotFound), errors.Is(err, local.ErrInvalidID):
		return domain.ErrSessionNotFound
	default:
		return err
	}
}
