package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore implements session.Store using SQLite.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO adaptive_sessions (id, user_id, mode, seed, status, state, version, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id=excluded.user_id, mode=excluded.mode, seed=excluded.seed,
			status=excluded.status, state=excluded.state, version=excluded.version,
			updated_at=excluded.updated_at, expires_at=excluded.expires_at`,
		sess.ID, sess.UserID, string(sess.Mode), sess.Seed, string(sess.Status), string(state),
		sess.Version, sess.CreatedAt.UTC(), sess.UpdatedAt.UTC(), sess.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, mode, seed, status, state, version, created_at, updated_at, expires_at
		FROM adaptive_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// Update writes sess only if the stored version still equals expectedVersion.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session, expectedVersion int) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE adaptive_sessions
		SET status = ?, state = ?, version = ?, updated_at = ?, expires_at = ?
		WHERE id = ? AND version = ?`,
		string(sess.Status), string(state), sess.Version, sess.UpdatedAt.UTC(), sess.ExpiresAt.UTC(),
		sess.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM adaptive_sessions WHERE id = ?", sess.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("read session version: %w", err)
	}
	return fmt.Errorf("%w: session %s is at version %d, expected %d", domain.ErrStateConflict, sess.ID, version, expectedVersion)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM adaptive_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM adaptive_sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func scanSession(row *sql.Row) (*session.Session, error) {
	var sess session.Session
	var mode, status, state string

	err := row.Scan(&sess.ID, &sess.UserID, &mode, &sess.Seed, &status, &state,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	sess.Mode = domain.SelectionMode(mode)
	sess.Status = session.Status(status)
	return &sess, nil
}
