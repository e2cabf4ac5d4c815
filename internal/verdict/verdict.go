// Package verdict assembles the final rating result for one cargo
// unit from the individual pipeline stage outputs.
package verdict

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// EngineVersion identifies the rating engine in result metadata.
const EngineVersion = "lanemeter-1.0"

// Input contains all stage outputs needed to assemble a result.
type Input struct {
	Cargo      *domain.CargoInput
	Group      string
	Acceptance domain.AcceptanceResult
	Measure    domain.ChargeableMeasure
	Surcharges []domain.SurchargeEvent
	Drafts     []domain.QuoteLineDraft
	TraceID    string
	StartTime  time.Time
}

// Assemble resolves the acceptance status and builds the RuleResult.
// Violations force NOT_ALLOWED; pending approvals force
// ALLOWED_UPON_REQUEST; otherwise the cargo is ALLOWED.
func Assemble(input *Input) *domain.RuleResult {
	acceptance := input.Acceptance
	switch {
	case len(acceptance.Violations) > 0:
		acceptance.Status = domain.StatusNotAllowed
	case len(acceptance.ApprovalsRequired) > 0:
		acceptance.Status = domain.StatusAllowedUponRequest
	default:
		acceptance.Status = domain.StatusAllowed
	}

	return &domain.RuleResult{
		ID:            uuid.New().String(),
		CommodityRef:  input.Cargo.CommodityRef,
		Category:      input.Cargo.Category,
		CategoryGroup: input.Group,
		Acceptance:    acceptance,
		Measure:       input.Measure,
		Surcharges:    input.Surcharges,
		Drafts:        input.Drafts,
		Metadata: domain.ResultMetadata{
			RatedAt:       time.Now().UTC(),
			TotalMs:       time.Since(input.StartTime).Milliseconds(),
			EngineVersion: EngineVersion,
			TraceID:       input.TraceID,
		},
	}
}

// Blocked reports whether the result blocks the cargo outright.
func Blocked(result *domain.RuleResult) bool {
	return result.Acceptance.Status == domain.StatusNotAllowed
}

// Reasons collects the human-readable reasons a result was not plainly
// allowed, violations first.
func Reasons(result *domain.RuleResult) []string {
	reasons := append([]string{}, result.Acceptance.Violations...)
	reasons = append(reasons, result.Acceptance.ApprovalsRequired...)
	return lo.Uniq(reasons)
}
