// Package domain defines the core interfaces and types for Lanemeter.
package domain

import (
	"context"
)

// RuleSource is the read port the engine resolves rule candidates
// through. Implementations are responsible for carrier match, the
// active flag, effective-date-window containment, and wildcard scope
// matching: a rule is returned if each of its populated scope
// dimensions equals the corresponding filter value; an unpopulated
// dimension always matches. The resolver performs no further
// filtering, only scoring and ordering.
//
// A failed lookup must surface as an error; it is never represented as
// an empty candidate set.
type RuleSource interface {
	AcceptanceRules(ctx context.Context, scope Scope) ([]*AcceptanceRule, error)
	ClassificationBands(ctx context.Context, scope Scope) ([]*ClassificationBand, error)
	TransformRules(ctx context.Context, scope Scope) ([]*TransformRule, error)
	SurchargeRules(ctx context.Context, scope Scope) ([]*SurchargeRule, error)
	ArticleMaps(ctx context.Context, scope Scope, eventCode string) ([]*SurchargeArticleMap, error)

	// CategoryGroupByCategory returns the active group whose
	// carrier-scoped membership list contains the category, or nil when
	// no group claims it.
	CategoryGroupByCategory(ctx context.Context, carrierID, category string) (*CategoryGroup, error)
}

// RuleStore extends the read port with the authoring operations the
// admin API and fixtures use. The engine itself only ever sees
// RuleSource.
type RuleStore interface {
	RuleSource

	SaveAcceptanceRule(ctx context.Context, rule *AcceptanceRule) error
	SaveClassificationBand(ctx context.Context, band *ClassificationBand) error
	SaveTransformRule(ctx context.Context, rule *TransformRule) error
	SaveSurchargeRule(ctx context.Context, rule *SurchargeRule) error
	SaveArticleMap(ctx context.Context, m *SurchargeArticleMap) error
	SaveCategoryGroup(ctx context.Context, group *CategoryGroup) error

	ListAcceptanceRules(ctx context.Context, carrierID string) ([]*AcceptanceRule, error)
	ListClassificationBands(ctx context.Context, carrierID string) ([]*ClassificationBand, error)
	ListTransformRules(ctx context.Context, carrierID string) ([]*TransformRule, error)
	ListSurchargeRules(ctx context.Context, carrierID string) ([]*SurchargeRule, error)
	ListArticleMaps(ctx context.Context, carrierID string) ([]*SurchargeArticleMap, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig holds configuration for rule-store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns int
	MaxIdleConns int
}
