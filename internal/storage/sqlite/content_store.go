package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

var _ selection.ContentIndex = (*ContentStore)(nil)

// ContentStore is the SQLite content index. Laws are addressed by short name.
type ContentStore struct {
	db *DB
}

// NewContentStore creates a new SQLite-backed content index.
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

// ResolveTopicScope returns the scope groups of a topic ordered by law.
func (s *ContentStore) ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT law, article_numbers FROM topic_scopes
		WHERE topic = ? AND position_type = ?
		ORDER BY law`, topic, positionType)
	if err != nil {
		return nil, fmt.Errorf("query topic scope: %w", err)
	}
	defer rows.Close()

	groups := []domain.ScopeGroup{}
	for rows.Next() {
		var g domain.ScopeGroup
		var numbers string
		if err := rows.Scan(&g.Law, &numbers); err != nil {
			return nil, fmt.Errorf("scan topic scope: %w", err)
		}
		if err := json.Unmarshal([]byte(numbers), &g.ArticleNumbers); err != nil {
			return nil, fmt.Errorf("unmarshal article numbers: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ResolveSectionScope returns the article range of a section.
func (s *ContentStore) ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error) {
	var r domain.ArticleRange
	err := s.db.QueryRowContext(ctx, `
		SELECT start_article, end_article FROM section_scopes
		WHERE law = ? AND name = ?`, law, section).Scan(&r.Start, &r.End)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, domain.ErrNotFound
		}
		return r, fmt.Errorf("query section scope: %w", err)
	}
	return r, nil
}

// ListArticles returns the articles of a law ordered by id.
func (s *ContentStore) ListArticles(ctx context.Context, law string) ([]domain.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.law_id, a.number, a.title
		FROM articles a JOIN laws l ON l.id = a.law_id
		WHERE l.short_name = ?
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

// QueryQuestions returns the active questions of the scoped articles that
// match the filter, ordered by id.
func (s *ContentStore) QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error) {
	var ids []string
	for _, scope := range scopes {
		ids = append(ids, scope.ArticleIDs()...)
	}

	questions := []domain.Question{}
	for _, chunk := range chunks(ids) {
		query := `SELECT id, article_id, difficulty, is_official_exam, is_active
			FROM questions
			WHERE is_active = 1 AND article_id IN (` + placeholders(len(chunk)) + `)`
		args := toArgs(chunk)
		if filter.OnlyOfficial {
			query += " AND is_official_exam = 1"
		}
		if filter.Difficulty != "" {
			query += " AND difficulty = ?"
			args = append(args, string(filter.Difficulty))
		}
		query += " ORDER BY id"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query questions: %w", err)
		}
		for rows.Next() {
			var q domain.Question
			var difficulty string
			if err := rows.Scan(&q.ID, &q.ArticleID, &difficulty, &q.IsOfficialExam, &q.IsActive); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan question: %w", err)
			}
			q.Difficulty = domain.Difficulty(difficulty)
			questions = append(questions, q)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return questions, nil
}

// EssentialArticleIDs returns the articles of a law with at least one active
// official-exam question.
func (s *ContentStore) EssentialArticleIDs(ctx context.Context, law string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT a.id
		FROM articles a
		JOIN laws l ON l.id = a.law_id
		JOIN questions q ON q.article_id = a.id
		WHERE l.short_name = ? AND q.is_official_exam = 1 AND q.is_active = 1
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

// AddLaw inserts or updates a law.
func (s *ContentStore) AddLaw(ctx context.Context, law domain.Law) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO laws (id, short_name, slug) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET short_name=excluded.short_name, slug=excluded.slug`,
		law.ID, law.ShortName, law.Slug)
	if err != nil {
		return fmt.Errorf("upsert law: %w", err)
	}
	return nil
}

// AddArticle inserts or updates an article.
func (s *ContentStore) AddArticle(ctx context.Context, a domain.Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, law_id, number, title) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET law_id=excluded.law_id, number=excluded.number, title=excluded.title`,
		a.ID, a.LawID, a.Number, a.Title)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

// AddQuestion inserts or updates a question.
func (s *ContentStore) AddQuestion(ctx context.Context, q domain.Question) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, article_id, difficulty, is_official_exam, is_active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			article_id=excluded.article_id, difficulty=excluded.difficulty,
			is_official_exam=excluded.is_official_exam, is_active=excluded.is_active`,
		q.ID, q.ArticleID, string(q.Difficulty), boolToInt(q.IsOfficialExam), boolToInt(q.IsActive))
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	return nil
}

// SetTopic replaces the scope groups of a topic. Groups of the same law are
// merged; an empty article list keeps covering the whole law.
func (s *ContentStore) SetTopic(ctx context.Context, topic int, positionType string, groups []domain.ScopeGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM topic_scopes WHERE topic = ? AND position_type = ?", topic, positionType); err != nil {
		return fmt.Errorf("clear topic scope: %w", err)
	}
	for _, g := range domain.MergeScopeGroups(groups) {
		numbers := g.ArticleNumbers
		if numbers == nil {
			numbers = []string{}
		}
		encoded, err := json.Marshal(numbers)
		if err != nil {
			return fmt.Errorf("marshal article numbers: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO topic_scopes (topic, position_type, law, article_numbers) VALUES (?, ?, ?, ?)`,
			topic, positionType, g.Law, string(encoded))
		if err != nil {
			return fmt.Errorf("insert topic scope: %w", err)
		}
	}
	return tx.Commit()
}

// SetSection inserts or updates a section range.
func (s *ContentStore) SetSection(ctx context.Context, law, section string, r domain.ArticleRange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO section_scopes (law, name, start_article, end_article) VALUES (?, ?, ?, ?)
		ON CONFLICT(law, name) DO UPDATE SET start_article=excluded.start_article, end_article=excluded.end_article`,
		law, section, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("upsert section scope: %w", err)
	}
	return nil
}
