package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

var _ selection.HistoryStore = (*HistoryStore)(nil)

// HistoryStore reads and appends answer attempts
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new PostgreSQL attempt history
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{pool: db.Pool}
}

func (s *HistoryStore) GetAttempts(ctx context.Context, userID string, questionIDs []string) ([]domain.AttemptRecord, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, question_id, is_correct, answered_at, time_spent_seconds
		FROM attempts
		WHERE user_id = $1 AND question_id = ANY($2)
		ORDER BY id`, userID, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var records []domain.AttemptRecord
	for rows.Next() {
		var r domain.AttemptRecord
		if err := rows.Scan(&r.UserID, &r.QuestionID, &r.IsCorrect, &r.AnsweredAt, &r.TimeSpentSeconds); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordAttempt appends an attempt
func (s *HistoryStore) RecordAttempt(ctx context.Context, r domain.AttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attempts (user_id, question_id, is_correct, answered_at, time_spent_seconds)
		VALUES ($1, $2, $3, $4, $5)`,
		r.UserID, r.QuestionID, r.IsCorrect, r.AnsweredAt, r.TimeSpentSeconds)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
