package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// SourceCache decorates a RuleSource with snapshot caching per scope.
// Cache failures degrade to the underlying source; they never fail a
// rating call.
type SourceCache struct {
	source domain.RuleSource
	cache  domain.Cache
	ttl    time.Duration
}

// NewSourceCache wraps a rule source with caching.
func NewSourceCache(source domain.RuleSource, cache domain.Cache, ttl time.Duration) *SourceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SourceCache{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}
}

// scopeKey builds a deterministic cache key for a candidate lookup.
func scopeKey(prefix string, scope domain.Scope, extra string) string {
	data, _ := json.Marshal(scope)
	key := prefix + ":" + string(data)
	if extra != "" {
		key += ":" + extra
	}
	return key
}

// getOr looks the key up in cache, falling back to load on miss, and
// writes the loaded snapshot back. dest must be a pointer to the slice
// being cached.
func (s *SourceCache) getOr(ctx context.Context, carrierID, key string, dest any, load func() (any, error)) error {
	if data, err := s.cache.Get(ctx, carrierID, key); err == nil && data != nil {
		if err := json.Unmarshal(data, dest); err == nil {
			return nil
		}
		// Unreadable entry: drop it and fall through to the source.
		_ = s.cache.Delete(ctx, carrierID, key)
	}

	fresh, err := load()
	if err != nil {
		return err
	}

	data, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("failed to encode rule snapshot: %w", err)
	}
	_ = s.cache.Set(ctx, carrierID, key, data, s.ttl)

	return json.Unmarshal(data, dest)
}

// AcceptanceRules returns the cached acceptance candidates for the scope.
func (s *SourceCache) AcceptanceRules(ctx context.Context, scope domain.Scope) ([]*domain.AcceptanceRule, error) {
	var rules []*domain.AcceptanceRule
	err := s.getOr(ctx, scope.CarrierID, scopeKey("acceptance", scope, ""), &rules, func() (any, error) {
		return s.source.AcceptanceRules(ctx, scope)
	})
	return rules, err
}

// ClassificationBands returns the cached classification candidates for
// the scope.
func (s *SourceCache) ClassificationBands(ctx context.Context, scope domain.Scope) ([]*domain.ClassificationBand, error) {
	var bands []*domain.ClassificationBand
	err := s.getOr(ctx, scope.CarrierID, scopeKey("classification", scope, ""), &bands, func() (any, error) {
		return s.source.ClassificationBands(ctx, scope)
	})
	return bands, err
}

// TransformRules returns the cached transform candidates for the scope.
func (s *SourceCache) TransformRules(ctx context.Context, scope domain.Scope) ([]*domain.TransformRule, error) {
	var rules []*domain.TransformRule
	err := s.getOr(ctx, scope.CarrierID, scopeKey("transform", scope, ""), &rules, func() (any, error) {
		return s.source.TransformRules(ctx, scope)
	})
	return rules, err
}

// SurchargeRules returns the cached surcharge candidates for the scope.
// Calculation params are not serialized with the snapshot, so they are
// re-decoded on every cache hit.
func (s *SourceCache) SurchargeRules(ctx context.Context, scope domain.Scope) ([]*domain.SurchargeRule, error) {
	var rules []*domain.SurchargeRule
	err := s.getOr(ctx, scope.CarrierID, scopeKey("surcharge", scope, ""), &rules, func() (any, error) {
		return s.source.SurchargeRules(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if rule.Params == nil {
			if err := rule.DecodeParams(); err != nil {
				return nil, err
			}
		}
	}
	return rules, nil
}

// ArticleMaps returns the cached article-map candidates for the scope
// and event code.
func (s *SourceCache) ArticleMaps(ctx context.Context, scope domain.Scope, eventCode string) ([]*domain.SurchargeArticleMap, error) {
	var maps []*domain.SurchargeArticleMap
	err := s.getOr(ctx, scope.CarrierID, scopeKey("articlemap", scope, eventCode), &maps, func() (any, error) {
		return s.source.ArticleMaps(ctx, scope, eventCode)
	})
	return maps, err
}

// CategoryGroupByCategory passes through to the source; group lookups
// carry their own cache in the grouping service.
func (s *SourceCache) CategoryGroupByCategory(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error) {
	return s.source.CategoryGroupByCategory(ctx, carrierID, category)
}
