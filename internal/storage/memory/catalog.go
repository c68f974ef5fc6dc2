package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

// Ensure Catalog implements the selection collaborators
var (
	_ selection.ContentIndex = (*Catalog)(nil)
	_ selection.HistoryStore = (*Catalog)(nil)
)

type topicKey struct {
	topic        int
	positionType string
}

type sectionKey struct {
	law     string
	section string
}

// Catalog is an in-memory content index and attempt history. It backs the
// "memory" storage driver (loaded from a YAML fixture) and tests.
type Catalog struct {
	mu        sync.RWMutex
	laws      map[string]domain.Law // by short name
	lawByID   map[string]string     // id -> short name
	articles  map[string][]domain.Article
	questions map[string][]domain.Question // by article id
	topics    map[topicKey][]domain.ScopeGroup
	sections  map[sectionKey]domain.ArticleRange
	attempts  map[string][]domain.AttemptRecord // by user id
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		laws:      make(map[string]domain.Law),
		lawByID:   make(map[string]string),
		articles:  make(map[string][]domain.Article),
		questions: make(map[string][]domain.Question),
		topics:    make(map[topicKey][]domain.ScopeGroup),
		sections:  make(map[sectionKey]domain.ArticleRange),
		attempts:  make(map[string][]domain.AttemptRecord),
	}
}

// AddLaw registers a law
func (c *Catalog) AddLaw(law domain.Law) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.laws[law.ShortName] = law
	c.lawByID[law.ID] = law.ShortName
}

// AddArticle registers an article of an already registered law
func (c *Catalog) AddArticle(article domain.Article) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	short, ok := c.lawByID[article.LawID]
	if !ok {
		return fmt.Errorf("article %s: %w: law %s", article.ID, domain.ErrNotFound, article.LawID)
	}
	c.articles[short] = append(c.articles[short], article)
	return nil
}

// AddQuestion registers a question
func (c *Catalog) AddQuestion(q domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questions[q.ArticleID] = append(c.questions[q.ArticleID], q)
}

// SetTopic maps a topic to its scope groups
func (c *Catalog) SetTopic(topic int, positionType string, groups []domain.ScopeGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topicKey{topic, positionType}] = groups
}

// SetSection maps a named section of a law to an article range
func (c *Catalog) SetSection(law, section string, r domain.ArticleRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections[sectionKey{law, section}] = r
}

// RecordAttempt appends an attempt to the user's history
func (c *Catalog) RecordAttempt(a domain.AttemptRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[a.UserID] = append(c.attempts[a.UserID], a)
}

func (c *Catalog) ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := c.topics[topicKey{topic, positionType}]
	return append([]domain.ScopeGroup(nil), groups...), nil
}

func (c *Catalog) ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.sections[sectionKey{law, section}]
	if !ok {
		return domain.ArticleRange{}, domain.ErrNotFound
	}
	return r, nil
}

func (c *Catalog) ListArticles(ctx context.Context, law string) ([]domain.Article, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]domain.Article(nil), c.articles[law]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Question
	for _, scope := range scopes {
		for _, article := range scope.Articles {
			for _, q := range c.questions[article.ID] {
				if filter.Matches(q) {
					out = append(out, q)
				}
			}
		}
	}
	return out, nil
}

func (c *Catalog) EssentialArticleIDs(ctx context.Context, law string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for _, article := range c.articles[law] {
		for _, q := range c.questions[article.ID] {
			if q.IsActive && q.IsOfficialExam {
				ids = append(ids, article.ID)
				break
			}
		}
	}
	return ids, nil
}

func (c *Catalog) GetAttempts(ctx context.Context, userID string, questionIDs []string) ([]domain.AttemptRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wanted := make(map[string]bool, len(questionIDs))
	for _, id := range questionIDs {
		wanted[id] = true
	}

	var out []domain.AttemptRecord
	for _, a := range c.attempts[userID] {
		if wanted[a.QuestionID] {
			out = append(out, a)
		}
	}
	return out, nil
}
