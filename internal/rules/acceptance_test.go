package rules

import (
	"testing"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

func TestAcceptanceNoConstraints(t *testing.T) {
	rule := &domain.AcceptanceRule{RuleMeta: domain.RuleMeta{ID: 1}}
	cargo := &domain.CargoInput{LengthCm: 450, WidthCm: 180, HeightCm: 150, WeightKg: 1500, UnitCount: 1}

	res := EvaluateAcceptance(rule, cargo)

	if len(res.Violations) != 0 || len(res.Warnings) != 0 || len(res.ApprovalsRequired) != 0 {
		t.Errorf("expected clean result, got %+v", res)
	}
	if res.RuleID == nil || *res.RuleID != 1 {
		t.Error("expected the evaluated rule's id on the result")
	}
}

func TestAcceptanceBoundaryEqualityPasses(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MinLengthCm: &domain.MinThreshold{Value: 300},
			MaxLengthCm: f64Ptr(700),
			MaxWeightKg: f64Ptr(3500),
		},
	}

	// Exactly at both bounds: strict comparison means no violation.
	cargo := &domain.CargoInput{LengthCm: 300, WidthCm: 180, WeightKg: 3500, UnitCount: 1}
	res := EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 0 {
		t.Errorf("boundary values must pass, got violations %v", res.Violations)
	}

	cargo.LengthCm = 700
	res = EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 0 {
		t.Errorf("max boundary must pass, got violations %v", res.Violations)
	}
}

func TestAcceptanceHardViolations(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MinLengthCm: &domain.MinThreshold{Value: 300},
			MaxWidthCm:  f64Ptr(300),
			MaxCBM:      f64Ptr(80),
		},
	}
	cargo := &domain.CargoInput{LengthCm: 250, WidthCm: 320, CBM: 90, UnitCount: 1}

	res := EvaluateAcceptance(rule, cargo)

	want := []string{CheckMinLength, CheckMaxWidth, CheckMaxCBM}
	if len(res.Violations) != len(want) {
		t.Fatalf("expected %d violations, got %v", len(want), res.Violations)
	}
	for i, code := range want {
		if res.Violations[i] != code {
			t.Errorf("violation %d: expected %s, got %s", i, code, res.Violations[i])
		}
	}
}

func TestAcceptanceSoftMinWarns(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MinWeightKg: &domain.MinThreshold{Value: 500, Soft: true},
		},
	}
	cargo := &domain.CargoInput{LengthCm: 400, WidthCm: 180, WeightKg: 200, UnitCount: 1}

	res := EvaluateAcceptance(rule, cargo)

	if len(res.Violations) != 0 {
		t.Errorf("soft minimum must not violate, got %v", res.Violations)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != CheckMinWeight {
		t.Errorf("expected warning %s, got %v", CheckMinWeight, res.Warnings)
	}
}

func TestAcceptanceSoftHeightApproval(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MaxHeightCm:                f64Ptr(270),
			SoftMaxHeightCm:            f64Ptr(300),
			SoftHeightRequiresApproval: true,
		},
	}

	// Within the soft band: approval required, no violation.
	cargo := &domain.CargoInput{LengthCm: 450, WidthCm: 180, HeightCm: 285, UnitCount: 1}
	res := EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 0 {
		t.Errorf("soft band must not violate, got %v", res.Violations)
	}
	if len(res.ApprovalsRequired) != 1 || res.ApprovalsRequired[0] != CheckSoftHeight {
		t.Errorf("expected approval %s, got %v", CheckSoftHeight, res.ApprovalsRequired)
	}

	// Above the soft max: hard violation.
	cargo.HeightCm = 310
	res = EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 1 || res.Violations[0] != CheckMaxHeight {
		t.Errorf("expected violation %s, got %v", CheckMaxHeight, res.Violations)
	}
	if len(res.ApprovalsRequired) != 0 {
		t.Errorf("expected no approvals above soft max, got %v", res.ApprovalsRequired)
	}

	// At or below the hard max: clean.
	cargo.HeightCm = 270
	res = EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 0 || len(res.ApprovalsRequired) != 0 {
		t.Errorf("at hard max must be clean, got %+v", res)
	}
}

func TestAcceptanceSoftHeightWithoutApprovalFlag(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MaxHeightCm:     f64Ptr(270),
			SoftMaxHeightCm: f64Ptr(300),
			// SoftHeightRequiresApproval left false: the soft band does
			// not apply and the hard max governs.
		},
	}
	cargo := &domain.CargoInput{LengthCm: 450, WidthCm: 180, HeightCm: 285, UnitCount: 1}

	res := EvaluateAcceptance(rule, cargo)

	if len(res.Violations) != 1 || res.Violations[0] != CheckMaxHeight {
		t.Errorf("expected hard violation without approval flag, got %+v", res)
	}
}

func TestAcceptanceSoftWeightApproval(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			MaxWeightKg:                f64Ptr(40000),
			SoftMaxWeightKg:            f64Ptr(45000),
			SoftWeightRequiresApproval: true,
		},
	}
	cargo := &domain.CargoInput{LengthCm: 1200, WidthCm: 250, WeightKg: 42000, UnitCount: 1}

	res := EvaluateAcceptance(rule, cargo)

	if len(res.ApprovalsRequired) != 1 || res.ApprovalsRequired[0] != CheckSoftWeight {
		t.Errorf("expected approval %s, got %+v", CheckSoftWeight, res)
	}
}

func TestAcceptanceFlagRequirements(t *testing.T) {
	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{ID: 1},
		AcceptanceSpec: domain.AcceptanceSpec{
			RequireEmpty:         true,
			RequireSelfPropelled: true,
		},
	}

	cargo := &domain.CargoInput{LengthCm: 450, WidthCm: 180, UnitCount: 1,
		Flags: []string{domain.FlagNonSelfPropelled}}
	res := EvaluateAcceptance(rule, cargo)

	if len(res.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %v", res.Violations)
	}
	if res.Violations[0] != CheckMustBeEmpty || res.Violations[1] != CheckMustBeSelfPropelled {
		t.Errorf("unexpected violation codes: %v", res.Violations)
	}

	cargo.Flags = []string{domain.FlagEmpty}
	res = EvaluateAcceptance(rule, cargo)
	if len(res.Violations) != 0 {
		t.Errorf("empty self-propelled cargo must pass, got %v", res.Violations)
	}
}
