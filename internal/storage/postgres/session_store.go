package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore implements session.Store over PostgreSQL
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new PostgreSQL session store
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db.SQL}
}

// Save inserts or replaces a session
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	state, err := marshalState(sess.State)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO adaptive_sessions (id, user_id, mode, seed, status, state, version, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, mode = EXCLUDED.mode, seed = EXCLUDED.seed,
			status = EXCLUDED.status, state = EXCLUDED.state, version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		sess.ID, sess.UserID, string(sess.Mode), sess.Seed, string(sess.Status), state,
		sess.Version, sess.CreatedAt, sess.UpdatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var sess session.Session
	var mode, status string
	var state pqtype.NullRawMessage

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, mode, seed, status, state, version, created_at, updated_at, expires_at
		FROM adaptive_sessions WHERE id = $1`, id).Scan(
		&sess.ID, &sess.UserID, &mode, &sess.Seed, &status, &state,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if state.Valid {
		if err := json.Unmarshal(state.RawMessage, &sess.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
	}
	sess.Mode = domain.SelectionMode(mode)
	sess.Status = session.Status(status)
	return &sess, nil
}

// Update writes sess only if the stored version still equals expectedVersion
func (s *SessionStore) Update(ctx context.Context, sess *session.Session, expectedVersion int) error {
	state, err := marshalState(sess.State)
	if err != nil {
		return err
	}

	// one round trip: the updated row, or the current version when the
	// guard did not match
	var version int
	var applied bool
	err = s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE adaptive_sessions
			SET status = $2, state = $3, version = $4, updated_at = $5, expires_at = $6
			WHERE id = $1 AND version = $7
			RETURNING version
		)
		SELECT version, TRUE FROM updated
		UNION ALL
		SELECT version, FALSE FROM adaptive_sessions WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM updated)`,
		sess.ID, string(sess.Status), state, sess.Version, sess.UpdatedAt, sess.ExpiresAt, expectedVersion,
	).Scan(&version, &applied)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !applied {
		return fmt.Errorf("%w: session %s is at version %d, expected %d", domain.ErrStateConflict, sess.ID, version, expectedVersion)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM adaptive_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM adaptive_sessions WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func marshalState(state any) (pqtype.NullRawMessage, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal state: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}
