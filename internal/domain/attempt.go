package domain

import "time"

// AttemptRecord is one answer a user gave to a question. Records are
// append-only and owned by the quiz-taking flow.
type AttemptRecord struct {
	UserID           string    `json:"user_id"`
	QuestionID       string    `json:"question_id"`
	IsCorrect        bool      `json:"is_correct"`
	AnsweredAt       time.Time `json:"answered_at"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
}

// QuestionStats are the facts derived from a user's attempts at one question
type QuestionStats struct {
	Attempts       int       `json:"attempts"`
	TimesFailed    int       `json:"times_failed"`
	LastAnsweredAt time.Time `json:"last_answered_at,omitempty"`
	FirstFailureAt time.Time `json:"first_failure_at,omitempty"`
	LastFailureAt  time.Time `json:"last_failure_at,omitempty"`
}

// NeverSeen reports whether the user has no attempts at the question
func (s QuestionStats) NeverSeen() bool {
	return s.Attempts == 0
}

// SummarizeAttempts folds attempt records into per-question stats
func SummarizeAttempts(records []AttemptRecord) map[string]QuestionStats {
	stats := make(map[string]QuestionStats)
	for _, r := range records {
		s := stats[r.QuestionID]
		s.Attempts++
		if r.AnsweredAt.After(s.LastAnsweredAt) {
			s.LastAnsweredAt = r.AnsweredAt
		}
		if !r.IsCorrect {
			s.TimesFailed++
			if s.FirstFailureAt.IsZero() || r.AnsweredAt.Before(s.FirstFailureAt) {
				s.FirstFailureAt = r.AnsweredAt
			}
			if r.AnsweredAt.After(s.LastFailureAt) {
				s.LastFailureAt = r.AnsweredAt
			}
		}
		stats[r.QuestionID] = s
	}
	return stats
}
