package selection

import (
	"context"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// ContentIndex is the read-only view over laws, articles, questions and the
// topic/section scope mappings. Implementations live in internal/storage.
type ContentIndex interface {
	// ResolveTopicScope returns the (law, article numbers) groups of a topic.
	// An unknown topic yields an empty slice.
	ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error)

	// ResolveSectionScope returns the article range of a named section.
	// It returns domain.ErrNotFound when the section is not configured.
	ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error)

	// ListArticles returns every article of a law, or an empty slice for an
	// unknown law.
	ListArticles(ctx context.Context, law string) ([]domain.Article, error)

	// QueryQuestions returns the active questions of the scoped articles that
	// match the filter.
	QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error)

	// EssentialArticleIDs returns the ids of the law's articles that have at
	// least one active official-exam question.
	EssentialArticleIDs(ctx context.Context, law string) ([]string, error)
}

// HistoryStore gives read access to a user's attempt history
type HistoryStore interface {
	GetAttempts(ctx context.Context, userID string, questionIDs []string) ([]domain.AttemptRecord, error)
}
