package memory

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// Fixture is the YAML layout accepted by LoadFixture
type Fixture struct {
	Laws     []FixtureLaw     `yaml:"laws"`
	Topics   []FixtureTopic   `yaml:"topics"`
	Sections []FixtureSection `yaml:"sections"`
	Attempts []FixtureAttempt `yaml:"attempts"`
}

type FixtureLaw struct {
	ID        string           `yaml:"id"`
	ShortName string           `yaml:"short_name"`
	Slug      string           `yaml:"slug"`
	Articles  []FixtureArticle `yaml:"articles"`
}

type FixtureArticle struct {
	ID        string            `yaml:"id"`
	Number    string            `yaml:"number"`
	Title     string            `yaml:"title"`
	Questions []FixtureQuestion `yaml:"questions"`
}

type FixtureQuestion struct {
	ID         string `yaml:"id"`
	Difficulty string `yaml:"difficulty"`
	Official   bool   `yaml:"official"`
	Active     *bool  `yaml:"active"`
}

type FixtureTopic struct {
	Topic        int                 `yaml:"topic"`
	PositionType string              `yaml:"position_type"`
	Scope        []domain.ScopeGroup `yaml:"scope"`
}

type FixtureSection struct {
	Law   string `yaml:"law"`
	Name  string `yaml:"name"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

type FixtureAttempt struct {
	UserID     string    `yaml:"user_id"`
	QuestionID string    `yaml:"question_id"`
	Correct    bool      `yaml:"correct"`
	AnsweredAt time.Time `yaml:"answered_at"`
	TimeSpent  int       `yaml:"time_spent_seconds"`
}

// LoadFixture reads a YAML fixture file into a new catalog
func LoadFixture(path string) (*Catalog, error) {
	fx, err := LoadFixtureFile(path)
	if err != nil {
		return nil, err
	}
	return fx.Catalog()
}

// ContentWriter loads reference content into a store
type ContentWriter interface {
	AddLaw(ctx context.Context, law domain.Law) error
	AddArticle(ctx context.Context, article domain.Article) error
	AddQuestion(ctx context.Context, q domain.Question) error
	SetTopic(ctx context.Context, topic int, positionType string, groups []domain.ScopeGroup) error
	SetSection(ctx context.Context, law, section string, r domain.ArticleRange) error
}

// AttemptRecorder appends attempt history
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a domain.AttemptRecord) error
}

// Catalog builds a catalog from the fixture
func (fx Fixture) Catalog() (*Catalog, error) {
	c := NewCatalog()
	w := catalogWriter{c}
	if err := fx.Apply(context.Background(), w, w); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply writes the fixture through w. Attempts are skipped when h is nil.
func (fx Fixture) Apply(ctx context.Context, w ContentWriter, h AttemptRecorder) error {
	for _, l := range fx.Laws {
		if l.ShortName == "" {
			return fmt.Errorf("fixture law %q: short_name is required", l.ID)
		}
		lawID := l.ID
		if lawID == "" {
			lawID = l.ShortName
		}
		if err := w.AddLaw(ctx, domain.Law{ID: lawID, ShortName: l.ShortName, Slug: l.Slug}); err != nil {
			return err
		}

		for _, a := range l.Articles {
			articleID := a.ID
			if articleID == "" {
				articleID = lawID + ":" + a.Number
			}
			if err := w.AddArticle(ctx, domain.Article{ID: articleID, LawID: lawID, Number: a.Number, Title: a.Title}); err != nil {
				return err
			}

			for _, q := range a.Questions {
				difficulty, err := domain.ParseDifficulty(q.Difficulty)
				if err != nil {
					return fmt.Errorf("fixture question %s: %w", q.ID, err)
				}
				active := true
				if q.Active != nil {
					active = *q.Active
				}
				err = w.AddQuestion(ctx, domain.Question{
					ID:             q.ID,
					ArticleID:      articleID,
					Difficulty:     difficulty,
					IsOfficialExam: q.Official,
					IsActive:       active,
				})
				if err != nil {
					return err
				}
			}
		}
	}

	for _, t := range fx.Topics {
		if err := w.SetTopic(ctx, t.Topic, t.PositionType, t.Scope); err != nil {
			return err
		}
	}
	for _, s := range fx.Sections {
		if err := w.SetSection(ctx, s.Law, s.Name, domain.ArticleRange{Start: s.Start, End: s.End}); err != nil {
			return err
		}
	}
	if h == nil {
		return nil
	}
	for _, a := range fx.Attempts {
		err := h.RecordAttempt(ctx, domain.AttemptRecord{
			UserID:           a.UserID,
			QuestionID:       a.QuestionID,
			IsCorrect:        a.Correct,
			AnsweredAt:       a.AnsweredAt,
			TimeSpentSeconds: a.TimeSpent,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// catalogWriter adapts Catalog to the context-aware writer interfaces
type catalogWriter struct {
	c *Catalog
}

func (w catalogWriter) AddLaw(_ context.Context, law domain.Law) error {
	w.c.AddLaw(law)
	return nil
}

func (w catalogWriter) AddArticle(_ context.Context, a domain.Article) error {
	return w.c.AddArticle(a)
}

func (w catalogWriter) AddQuestion(_ context.Context, q domain.Question) error {
	w.c.AddQuestion(q)
	return nil
}

func (w catalogWriter) SetTopic(_ context.Context, topic int, positionType string, groups []domain.ScopeGroup) error {
	w.c.SetTopic(topic, positionType, groups)
	return nil
}

func (w catalogWriter) SetSection(_ context.Context, law, section string, r domain.ArticleRange) error {
	w.c.SetSection(law, section, r)
	return nil
}

func (w catalogWriter) RecordAttempt(_ context.Context, a domain.AttemptRecord) error {
	w.c.RecordAttempt(a)
	return nil
}

// LoadFixtureFile parses a YAML fixture without building a catalog
func LoadFixtureFile(path string) (Fixture, error) {
	var fx Fixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixture: %w", err)
	}
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fx, fmt.Errorf("parse fixture: %w", err)
	}
	return fx, nil
}
