// Package rules implements the carrier rules engine: rule resolution,
// acceptance validation, chargeable-measure and surcharge calculation.
package rules

import (
	"sort"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// Specificity weights per scope dimension. A dimension contributes its
// weight only when the rule itself constrains it; an unset dimension
// contributes nothing, matched or not.
const (
	weightVesselName  = 10
	weightPort        = 8
	weightVesselClass = 6
	weightCategory    = 2
	weightGroup       = 1
)

// Scoped is the candidate constraint: anything embedding
// domain.RuleMeta satisfies it.
type Scoped interface {
	Meta() domain.RuleMeta
}

// scopeMatch records which scope dimensions a rule both constrains and
// matches against the input.
type scopeMatch struct {
	vesselName  bool
	port        bool
	vesselClass bool
	category    bool
	group       bool
}

func matchFlags(m domain.RuleMeta, s domain.Scope) scopeMatch {
	return scopeMatch{
		vesselName:  m.VesselName != nil && s.VesselName != nil && *m.VesselName == *s.VesselName,
		port:        m.PortID != nil && s.PortID != nil && *m.PortID == *s.PortID,
		vesselClass: m.VesselClass != nil && s.VesselClass != nil && *m.VesselClass == *s.VesselClass,
		category:    m.Category != nil && s.Category != nil && *m.Category == *s.Category,
		group:       m.CategoryGroupID != nil && s.CategoryGroupID != nil && *m.CategoryGroupID == *s.CategoryGroupID,
	}
}

func specificity(m scopeMatch) int {
	score := 0
	if m.vesselName {
		score += weightVesselName
	}
	if m.port {
		score += weightPort
	}
	if m.vesselClass {
		score += weightVesselClass
	}
	if m.category {
		score += weightCategory
	}
	if m.group {
		score += weightGroup
	}
	return score
}

// Score returns the specificity score of one rule against a scope.
// Exposed for callers that only need the acceptance-resolution half.
func Score(m domain.RuleMeta, s domain.Scope) int {
	return specificity(matchFlags(m, s))
}

// before reports whether rule a sorts ahead of rule b for the scope:
// higher score first, ties broken by higher priority, then later
// effective_from (rules with none sort last), then higher id.
func before(a, b domain.RuleMeta, scope domain.Scope) bool {
	sa, sb := Score(a, scope), Score(b, scope)
	if sa != sb {
		return sa > sb
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.EffectiveFrom != nil && b.EffectiveFrom == nil:
		return true
	case a.EffectiveFrom == nil && b.EffectiveFrom != nil:
		return false
	case a.EffectiveFrom != nil && b.EffectiveFrom != nil && !a.EffectiveFrom.Equal(*b.EffectiveFrom):
		return a.EffectiveFrom.After(*b.EffectiveFrom)
	}
	return a.ID > b.ID
}

// Best returns the single winning rule from a candidate set, or false
// when the set is empty. A single candidate short-circuits scoring.
func Best[T Scoped](candidates []T, scope domain.Scope) (T, bool) {
	var zero T
	switch len(candidates) {
	case 0:
		return zero, false
	case 1:
		return candidates[0], true
	}
	return Ordered(candidates, scope)[0], true
}

// Ordered returns the candidates in their deterministic, total
// resolution order. The input slice is not mutated.
func Ordered[T Scoped](candidates []T, scope domain.Scope) []T {
	out := make([]T, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return before(out[i].Meta(), out[j].Meta(), scope)
	})
	return out
}
