package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/temario/internal/domain"
)

// maxParallelLaws bounds concurrent per-law queries for multi-law scopes
const maxParallelLaws = 4

// Resolver turns a normalized SelectionRequest into a CandidateSet
type Resolver struct {
	content ContentIndex
	history HistoryStore
	now     func() time.Time
}

// NewResolver creates a resolver over the given collaborators
func NewResolver(content ContentIndex, history HistoryStore) *Resolver {
	return &Resolver{
		content: content,
		history: history,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for recency exclusion
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// lawScope is the scope of a single law after step 1
type lawScope struct {
	law     string
	numbers []string // nil covers every article
	section *domain.ArticleRange
}

type lawResult struct {
	articles   int
	candidates []Candidate
}

// ResolveCandidates applies scope resolution, article filtering, question
// filtering, difficulty filtering and recency exclusion in that order.
// The request must already be normalized.
func (r *Resolver) ResolveCandidates(ctx context.Context, req domain.SelectionRequest) (*CandidateSet, error) {
	scopes, err := r.resolveScope(ctx, req)
	if err != nil {
		return nil, err
	}

	filter := domain.QuestionFilter{
		OnlyOfficial: req.OnlyOfficial && !req.OnlyEssentialArticles,
	}
	if !req.OnlyFailed {
		filter.Difficulty = req.Difficulty.Tier()
	}

	results := make([]lawResult, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLaws)
	for i, scope := range scopes {
		g.Go(func() error {
			res, err := r.resolveLaw(gctx, req, scope, filter)
			if err != nil {
				return fmt.Errorf("resolve law %s: %w", scope.law, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &CandidateSet{}
	seen := make(map[string]bool)
	articles := 0
	for i, res := range results {
		if res.articles == 0 {
			continue
		}
		articles += res.articles
		set.Laws = append(set.Laws, scopes[i].law)
		for _, c := range res.candidates {
			if seen[c.ID()] {
				continue
			}
			seen[c.ID()] = true
			set.Candidates = append(set.Candidates, c)
		}
	}
	if articles == 0 {
		return nil, fmt.Errorf("%w: no articles configured for the requested scope", domain.ErrInsufficientScope)
	}
	sortByID(set.Candidates)

	if err := r.attachHistory(ctx, req.UserID, set); err != nil {
		return nil, err
	}

	if req.OnlyFailed {
		set.Candidates = keep(set.Candidates, func(c Candidate) bool {
			return c.Stats.TimesFailed >= 1
		})
	}

	if req.ExcludeRecentDays != nil && *req.ExcludeRecentDays > 0 {
		cutoff := r.now().Add(-time.Duration(*req.ExcludeRecentDays) * 24 * time.Hour)
		set.Candidates = keep(set.Candidates, func(c Candidate) bool {
			return c.Stats.NeverSeen() || !c.Stats.LastAnsweredAt.After(cutoff)
		})
	}

	slog.Debug("resolved candidates",
		"laws", set.Laws,
		"articles", articles,
		"candidates", set.Len(),
	)

	return set, nil
}

// resolveScope is step 1: topic scope, or explicit laws with an optional section
func (r *Resolver) resolveScope(ctx context.Context, req domain.SelectionRequest) ([]lawScope, error) {
	if req.Topic > 0 {
		groups, err := r.content.ResolveTopicScope(ctx, req.Topic, req.PositionType)
		if err != nil {
			return nil, fmt.Errorf("resolve topic scope: %w", err)
		}
		if len(groups) == 0 {
			return nil, fmt.Errorf("%w: topic %d has no configured content", domain.ErrInsufficientScope, req.Topic)
		}
		return mergeGroups(groups), nil
	}

	laws := append([]string(nil), req.Laws...)
	listed := make(map[string]bool, len(laws))
	for _, law := range laws {
		listed[law] = true
	}
	extra := make([]string, 0, len(req.ArticlesByLaw))
	for law := range req.ArticlesByLaw {
		if !listed[law] {
			extra = append(extra, law)
		}
	}
	sort.Strings(extra)
	laws = append(laws, extra...)

	scopes := make([]lawScope, len(laws))
	for i, law := range laws {
		scopes[i] = lawScope{law: law}
	}

	if req.Section != "" && len(scopes) == 1 && len(req.ArticlesByLaw[scopes[0].law]) == 0 {
		rng, err := r.content.ResolveSectionScope(ctx, scopes[0].law, req.Section)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: section %q of %s is not configured", domain.ErrInsufficientScope, req.Section, scopes[0].law)
			}
			return nil, fmt.Errorf("resolve section scope: %w", err)
		}
		scopes[0].section = &rng
	}

	return scopes, nil
}

// resolveLaw runs steps 2 to 4 for one law
func (r *Resolver) resolveLaw(ctx context.Context, req domain.SelectionRequest, scope lawScope, filter domain.QuestionFilter) (lawResult, error) {
	all, err := r.content.ListArticles(ctx, scope.law)
	if err != nil {
		return lawResult{}, fmt.Errorf("list articles: %w", err)
	}

	articles := filterArticles(all, scope, req.ArticlesByLaw[scope.law])
	if len(articles) == 0 {
		return lawResult{}, nil
	}

	questions, err := r.content.QueryQuestions(ctx, []domain.ArticleScope{{Law: scope.law, Articles: articles}}, filter)
	if err != nil {
		return lawResult{}, fmt.Errorf("query questions: %w", err)
	}

	var essential map[string]bool
	if req.OnlyEssentialArticles {
		ids, err := r.content.EssentialArticleIDs(ctx, scope.law)
		if err != nil {
			return lawResult{}, fmt.Errorf("essential articles: %w", err)
		}
		essential = make(map[string]bool, len(ids))
		for _, id := range ids {
			essential[id] = true
		}
	}

	byID := make(map[string]domain.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	res := lawResult{articles: len(articles)}
	for _, q := range questions {
		article, ok := byID[q.ArticleID]
		if !ok || !filter.Matches(q) {
			continue
		}
		if essential != nil && !essential[q.ArticleID] {
			continue
		}
		res.candidates = append(res.candidates, Candidate{
			Question:      q,
			Law:           scope.law,
			ArticleNumber: article.Number,
		})
	}
	return res, nil
}

func (r *Resolver) attachHistory(ctx context.Context, userID string, set *CandidateSet) error {
	if userID == "" || set.Len() == 0 || r.history == nil {
		return nil
	}

	attempts, err := r.history.GetAttempts(ctx, userID, set.IDs())
	if err != nil {
		return fmt.Errorf("get attempts: %w", err)
	}

	stats := domain.SummarizeAttempts(attempts)
	for i := range set.Candidates {
		set.Candidates[i].Stats = stats[set.Candidates[i].ID()]
	}
	return nil
}

// filterArticles is step 2
func filterArticles(all []domain.Article, scope lawScope, requested []string) []domain.Article {
	var inScope, inRequest map[string]bool
	if scope.numbers != nil {
		inScope = toSet(scope.numbers)
	}
	if len(requested) > 0 {
		inRequest = toSet(requested)
	}

	out := make([]domain.Article, 0, len(all))
	for _, a := range all {
		if inScope != nil && !inScope[a.Number] {
			continue
		}
		if inRequest != nil && !inRequest[a.Number] {
			continue
		}
		if inRequest == nil && scope.section != nil && !scope.section.Contains(a.Number) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// mergeGroups folds topic groups of the same law. A group without article
// numbers covers the whole law.
func mergeGroups(groups []domain.ScopeGroup) []lawScope {
	merged := domain.MergeScopeGroups(groups)
	scopes := make([]lawScope, len(merged))
	for i, g := range merged {
		scopes[i] = lawScope{law: g.Law}
		if len(g.ArticleNumbers) > 0 {
			scopes[i].numbers = g.ArticleNumbers
		}
	}
	return scopes
}

func keep(cands []Candidate, pred func(Candidate) bool) []Candidate {
	out := cands[:0]
	for _, c := range cands {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
