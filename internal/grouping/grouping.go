// Package grouping resolves cargo categories to carrier category groups.
package grouping

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// Service looks up the category group a cargo category belongs to,
// with a cache in front of the rule store.
type Service struct {
	source domain.RuleSource
	cache  domain.Cache
	ttl    time.Duration
}

// NewService creates a new grouping service. cache may be nil, in
// which case every lookup hits the store.
func NewService(source domain.RuleSource, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		source: source,
		cache:  cache,
		ttl:    ttl,
	}
}

// GroupForCategory returns the category group that contains the given
// category, or nil when the carrier defines none. This is the
// GroupGetter function signature expected by the rule engine.
func (s *Service) GroupForCategory(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error) {
	if carrierID == "" || category == "" {
		return nil, fmt.Errorf("carrierID and category are required")
	}

	key := "group:" + category

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, carrierID, key); err == nil && data != nil {
			var group domain.CategoryGroup
			if err := json.Unmarshal(data, &group); err == nil {
				if group.ID == 0 {
					return nil, nil
				}
				return &group, nil
			}
		}
	}

	group, err := s.source.CategoryGroupByCategory(ctx, carrierID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category group: %w", err)
	}

	if s.cache != nil {
		// A zero-ID group marks a negative entry so unknown categories
		// do not hit the store on every rating.
		cached := group
		if cached == nil {
			cached = &domain.CategoryGroup{}
		}
		if data, err := json.Marshal(cached); err == nil {
			_ = s.cache.Set(ctx, carrierID, key, data, s.ttl)
		}
	}

	return group, nil
}

// Getter returns a GroupGetter function for the rule engine.
func (s *Service) Getter() func(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error) {
	return s.GroupForCategory
}
