package rules

import (
	"github.com/opensource-freight/lanemeter/internal/domain"
)

// Acceptance check codes recorded in violations, warnings and
// approvals-required lists.
const (
	CheckMinLength = "min_length_not_met"
	CheckMinWidth  = "min_width_not_met"
	CheckMinHeight = "min_height_not_met"
	CheckMinCBM    = "min_cbm_not_met"
	CheckMinWeight = "min_weight_not_met"

	CheckMaxLength = "max_length_exceeded"
	CheckMaxWidth  = "max_width_exceeded"
	CheckMaxCBM    = "max_cbm_exceeded"
	CheckMaxHeight = "max_height_exceeded"
	CheckMaxWeight = "max_weight_exceeded"

	CheckSoftHeight = "soft_height_approval"
	CheckSoftWeight = "soft_weight_approval"

	CheckMustBeEmpty         = "must_be_empty"
	CheckMustBeSelfPropelled = "must_be_self_propelled"
)

// EvaluateAcceptance runs the acceptance checks of one rule against a
// cargo unit in fixed order, accumulating violations, warnings and
// approval requirements. Thresholds violate only on strict comparison:
// cargo exactly at a bound passes. The final status is left for the
// verdict layer to derive from the accumulated lists.
func EvaluateAcceptance(rule *domain.AcceptanceRule, cargo *domain.CargoInput) domain.AcceptanceResult {
	res := domain.AcceptanceResult{RuleID: &rule.ID}

	checkMin(&res, rule.MinLengthCm, cargo.LengthCm, CheckMinLength)
	checkMin(&res, rule.MinWidthCm, cargo.WidthCm, CheckMinWidth)
	checkMin(&res, rule.MinHeightCm, cargo.HeightCm, CheckMinHeight)
	checkMin(&res, rule.MinCBM, cargo.CBM, CheckMinCBM)
	checkMin(&res, rule.MinWeightKg, cargo.WeightKg, CheckMinWeight)

	checkMax(&res, rule.MaxLengthCm, cargo.LengthCm, CheckMaxLength)
	checkMax(&res, rule.MaxWidthCm, cargo.WidthCm, CheckMaxWidth)
	checkMax(&res, rule.MaxCBM, cargo.CBM, CheckMaxCBM)

	checkSoftMax(&res, rule.MaxHeightCm, rule.SoftMaxHeightCm, rule.SoftHeightRequiresApproval,
		cargo.HeightCm, CheckMaxHeight, CheckSoftHeight)
	checkSoftMax(&res, rule.MaxWeightKg, rule.SoftMaxWeightKg, rule.SoftWeightRequiresApproval,
		cargo.WeightKg, CheckMaxWeight, CheckSoftWeight)

	if rule.RequireEmpty && !cargo.HasFlag(domain.FlagEmpty) {
		res.Violations = append(res.Violations, CheckMustBeEmpty)
	}
	if rule.RequireSelfPropelled && cargo.HasFlag(domain.FlagNonSelfPropelled) {
		res.Violations = append(res.Violations, CheckMustBeSelfPropelled)
	}

	return res
}

func checkMin(res *domain.AcceptanceResult, min *domain.MinThreshold, value float64, code string) {
	if min == nil || value >= min.Value {
		return
	}
	if min.Soft {
		res.Warnings = append(res.Warnings, code)
		return
	}
	res.Violations = append(res.Violations, code)
}

func checkMax(res *domain.AcceptanceResult, max *float64, value float64, code string) {
	if max != nil && value > *max {
		res.Violations = append(res.Violations, code)
	}
}

// checkSoftMax handles the height/weight maxima: exceeding the max but
// staying within an approval-bearing soft max records an approval
// requirement instead of a violation.
func checkSoftMax(res *domain.AcceptanceResult, max, softMax *float64, requiresApproval bool, value float64, hardCode, softCode string) {
	if max == nil || value <= *max {
		return
	}
	if softMax != nil && *softMax >= value && requiresApproval {
		res.ApprovalsRequired = append(res.ApprovalsRequired, softCode)
		return
	}
	res.Violations = append(res.Violations, hardCode)
}
