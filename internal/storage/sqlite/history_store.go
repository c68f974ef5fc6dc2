package sqlite

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

var _ selection.HistoryStore = (*HistoryStore)(nil)

// HistoryStore reads and appends answer attempts
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new SQLite-backed attempt history.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// GetAttempts returns the user's attempts at the given questions.
func (s *HistoryStore) GetAttempts(ctx context.Context, userID string, questionIDs []string) ([]domain.AttemptRecord, error) {
	var records []domain.AttemptRecord
	for _, chunk := range chunks(questionIDs) {
		args := append([]any{userID}, toArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx, `
			SELECT user_id, question_id, is_correct, answered_at, time_spent_seconds
			FROM attempts
			WHERE user_id = ? AND question_id IN (`+placeholders(len(chunk))+`)
			ORDER BY id`, args...)
		if err != nil {
			return nil, fmt.Errorf("query attempts: %w", err)
		}
		for rows.Next() {
			var r domain.AttemptRecord
			if err := rows.Scan(&r.UserID, &r.QuestionID, &r.IsCorrect, &r.AnsweredAt, &r.TimeSpentSeconds); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan attempt: %w", err)
			}
			records = append(records, r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// RecordAttempt appends an attempt.
func (s *HistoryStore) RecordAttempt(ctx context.Context, r domain.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (user_id, question_id, is_correct, answered_at, time_spent_seconds)
		VALUES (?, ?, ?, ?, ?)`,
		r.UserID, r.QuestionID, boolToInt(r.IsCorrect), r.AnsweredAt.UTC(), r.TimeSpentSeconds)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
