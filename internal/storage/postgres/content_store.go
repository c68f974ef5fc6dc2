package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

var _ selection.ContentIndex = (*ContentStore)(nil)

// ContentStore implements selection.ContentIndex over PostgreSQL
type ContentStore struct {
	pool *pgxpool.Pool
}

// NewContentStore creates a new PostgreSQL content index
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{pool: db.Pool}
}

func (s *ContentStore) ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT law, article_numbers FROM topic_scopes
		WHERE topic = $1 AND position_type = $2
		ORDER BY law`, topic, positionType)
	if err != nil {
		return nil, fmt.Errorf("query topic scope: %w", err)
	}
	defer rows.Close()

	groups := []domain.ScopeGroup{}
	for rows.Next() {
		var g domain.ScopeGroup
		if err := rows.Scan(&g.Law, &g.ArticleNumbers); err != nil {
			return nil, fmt.Errorf("scan topic scope: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *ContentStore) ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error) {
	var r domain.ArticleRange
	err := s.pool.QueryRow(ctx, `
		SELECT start_article, end_article FROM section_scopes
		WHERE law = $1 AND name = $2`, law, section).Scan(&r.Start, &r.End)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, domain.ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("query section scope: %w", err)
	}
	return r, nil
}

func (s *ContentStore) ListArticles(ctx context.Context, law string) ([]domain.Article, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.law_id, a.number, a.title
		FROM articles a JOIN laws l ON l.id = a.law_id
		WHERE l.short_name = $1
		ORDER BY a.id`, law)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := []domain.Article{}
	for rows.Next() {
		var a domain.Article
		if err := rows.Scan(&a.ID, &a.LawID, &a.Number, &a.Title); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *ContentStore) QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error) {
	var ids []string
	for _, scope := range scopes {
		ids = append(ids, scope.ArticleIDs()...)
	}
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, article_id, difficulty, is_official_exam, is_active
		FROM questions
		WHERE is_active
		  AND article_id = ANY($1)
		  AND (NOT $2 OR is_official_exam)
		  AND ($3 = '' OR difficulty = $3)
		ORDER BY id`, ids, filter.OnlyOfficial, string(filter.Difficulty))
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		var difficulty string
		if err := rows.Scan(&q.ID, &q.ArticleID, &difficulty, &q.IsOfficialExam, &q.IsActive); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Difficulty = domain.Difficulty(difficulty)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *ContentStore) EssentialArticleIDs(ctx context.Context, law string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT a.id
		FROM articles a
		JOIN laws l ON l.id = a.law_id
		JOIN questions q ON q.article_id = a.id
		WHERE l.short_name = $1 AND q.is_official_exam AND q.is_active
		ORDER BY a.id`, law)
	if err != nil {
		return nil, fmt.Errorf("query essential articles: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// -----------------------------------------------------------------------------
// Content loading
// -----------------------------------------------------------------------------

func (s *ContentStore) AddLaw(ctx context.Context, law domain.Law) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO laws (id, short_name, slug) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET short_name = EXCLUDED.short_name, slug = EXCLUDED.slug`,
		law.ID, law.ShortName, law.Slug)
	if err != nil {
		return fmt.Errorf("upsert law: %w", err)
	}
	return nil
}

func (s *ContentStore) AddArticle(ctx context.Context, a domain.Article) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles (id, law_id, number, title) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET law_id = EXCLUDED.law_id, number = EXCLUDED.number, title = EXCLUDED.title`,
		a.ID, a.LawID, a.Number, a.Title)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (s *ContentStore) AddQuestion(ctx context.Context, q domain.Question) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO questions (id, article_id, difficulty, is_official_exam, is_active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			article_id = EXCLUDED.article_id, difficulty = EXCLUDED.difficulty,
			is_official_exam = EXCLUDED.is_official_exam, is_active = EXCLUDED.is_active`,
		q.ID, q.ArticleID, string(q.Difficulty), q.IsOfficialExam, q.IsActive)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

// SetTopic replaces the scope groups of a topic in one transaction
func (s *ContentStore) SetTopic(ctx context.Context, topic int, positionType string, groups []domain.ScopeGroup) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM topic_scopes WHERE topic = $1 AND position_type = $2", topic, positionType); err != nil {
			return fmt.Errorf("clear topic scope: %w", err)
		}
		for _, g := range domain.MergeScopeGroups(groups) {
			numbers := g.ArticleNumbers
			if numbers == nil {
				numbers = []string{}
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO topic_scopes (topic, position_type, law, article_numbers) VALUES ($1, $2, $3, $4)`,
				topic, positionType, g.Law, numbers)
			if err != nil {
				return fmt.Errorf("insert topic scope: %w", err)
			}
		}
		return nil
	})
}

func (s *ContentStore) SetSection(ctx context.Context, law, section string, r domain.ArticleRange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO section_scopes (law, name, start_article, end_article) VALUES ($1, $2, $3, $4)
		ON CONFLICT (law, name) DO UPDATE SET start_article = EXCLUDED.start_article, end_article = EXCLUDED.end_article`,
		law, section, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("upsert section scope: %w", err)
	}
	return nil
}
