package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/temario/internal/cache"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

var _ selection.ContentIndex = (*CachedContentIndex)(nil)

const keyPrefix = "temario:"

// CachedContentIndex caches the scope lookups of a ContentIndex: article
// lists, essential article ids, topic scopes and section ranges. Question
// queries always reach the underlying index. A non-positive TTL disables
// caching.
type CachedContentIndex struct {
	inner selection.ContentIndex
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedContentIndex wraps inner with c
func NewCachedContentIndex(inner selection.ContentIndex, c cache.Cache, ttl time.Duration) *CachedContentIndex {
	return &CachedContentIndex{
		inner: inner,
		cache: c,
		ttl:   ttl,
	}
}

func articlesKey(law string) string {
	return keyPrefix + "articles:" + law
}

func essentialKey(law string) string {
	return keyPrefix + "essential:" + law
}

func topicKey(topic int, positionType string) string {
	return fmt.Sprintf("%stopic:%d:%s", keyPrefix, topic, positionType)
}

func sectionKey(law, section string) string {
	return keyPrefix + "section:" + law + ":" + section
}

func (c *CachedContentIndex) ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error) {
	return cached(ctx, c, topicKey(topic, positionType), func(ctx context.Context) ([]domain.ScopeGroup, error) {
		return c.inner.ResolveTopicScope(ctx, topic, positionType)
	})
}

func (c *CachedContentIndex) ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error) {
	return cached(ctx, c, sectionKey(law, section), func(ctx context.Context) (domain.ArticleRange, error) {
		return c.inner.ResolveSectionScope(ctx, law, section)
	})
}

func (c *CachedContentIndex) ListArticles(ctx context.Context, law string) ([]domain.Article, error) {
	return cached(ctx, c, articlesKey(law), func(ctx context.Context) ([]domain.Article, error) {
		return c.inner.ListArticles(ctx, law)
	})
}

func (c *CachedContentIndex) QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error) {
	return c.inner.QueryQuestions(ctx, scopes, filter)
}

func (c *CachedContentIndex) EssentialArticleIDs(ctx context.Context, law string) ([]string, error) {
	return cached(ctx, c, essentialKey(law), func(ctx context.Context) ([]string, error) {
		return c.inner.EssentialArticleIDs(ctx, law)
	})
}

// Invalidate drops the cached entries of a law and every topic scope. An
// empty law drops everything under the temario prefix. Deletion goes by key
// prefix so entries written by other daemons sharing the cache go too.
func (c *CachedContentIndex) Invalidate(ctx context.Context, law string) error {
	if law == "" {
		if err := c.cache.DeletePrefix(ctx, keyPrefix); err != nil {
			return fmt.Errorf("invalidate all: %w", err)
		}
		slog.Debug("content cache invalidated", "law", "*")
		return nil
	}

	if err := c.cache.Delete(ctx, articlesKey(law), essentialKey(law)); err != nil {
		return fmt.Errorf("invalidate %q: %w", law, err)
	}
	// topic scopes may name any law
	for _, prefix := range []string{sectionKey(law, ""), keyPrefix + "topic:"} {
		if err := c.cache.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("invalidate %q: %w", law, err)
		}
	}
	slog.Debug("content cache invalidated", "law", law)
	return nil
}

// cached serves key from the cache or loads and stores it. Cache failures
// degrade to a direct load; errors from load are never cached.
func cached[T any](ctx context.Context, c *CachedContentIndex, key string, load func(context.Context) (T, error)) (T, error) {
	if c.ttl <= 0 {
		return load(ctx)
	}

	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("content cache read failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		slog.Warn("dropping undecodable cache entry", "key", key)
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.cache.Put(ctx, key, b, c.ttl); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("content cache write failed", "key", key, "error", err)
	}
	return v, nil
}
