package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

var (
	cm250    = decimal.NewFromInt(250)
	cmDivide = decimal.NewFromInt(25000) // 2.5 m lane width × 100 cm/m
	hundred  = decimal.NewFromInt(100)
)

// MeasureService computes the base and carrier-adjusted billable
// linear-meter value for one cargo unit.
type MeasureService struct {
	source domain.RuleSource
}

// NewMeasureService creates a measure service over the given rule
// source.
func NewMeasureService(source domain.RuleSource) *MeasureService {
	return &MeasureService{source: source}
}

// BaseLM is the ISO-style base measure: (length_m × max(width_m, 2.5))
// / 2.5, computed in centimeters. Cargo narrower than 2.5 m floors at
// one LM unit per meter of length.
func BaseLM(lengthCm, widthCm float64) decimal.Decimal {
	width := decimal.NewFromFloat(widthCm)
	if width.LessThan(cm250) {
		width = cm250
	}
	return decimal.NewFromFloat(lengthCm).Mul(width).Div(cmDivide)
}

// OverwidthLM is the transformed measure: (length_cm × width_cm) /
// (divisor_cm × 100).
func OverwidthLM(lengthCm, widthCm, divisorCm float64) decimal.Decimal {
	return decimal.NewFromFloat(lengthCm).
		Mul(decimal.NewFromFloat(widthCm)).
		Div(decimal.NewFromFloat(divisorCm).Mul(hundred))
}

// Compute returns the cargo's chargeable measure, applying at most one
// matching transform rule: the first trigger in resolution order wins.
// With no transform configured or triggered, chargeable LM equals base
// LM.
func (s *MeasureService) Compute(ctx context.Context, cargo *domain.CargoInput, scope domain.Scope) (domain.ChargeableMeasure, error) {
	base := BaseLM(cargo.LengthCm, cargo.WidthCm)
	measure := domain.ChargeableMeasure{
		BaseLM:       base,
		ChargeableLM: base,
	}

	candidates, err := s.source.TransformRules(ctx, scope)
	if err != nil {
		return measure, fmt.Errorf("fetch transform rules: %w", err)
	}

	for _, rule := range Ordered(candidates, scope) {
		if rule.Code != domain.TransformOverwidthLM {
			return measure, fmt.Errorf("transform rule %d: %w: %q", rule.ID, domain.ErrUnknownTransform, rule.Code)
		}

		trigger := rule.TriggerWidthGtCm
		if trigger <= 0 {
			trigger = domain.DefaultTriggerWidthCm
		}
		if cargo.WidthCm <= trigger {
			continue
		}

		divisor := rule.DivisorCm
		if divisor <= 0 {
			divisor = domain.DefaultDivisorCm
		}

		measure.ChargeableLM = OverwidthLM(cargo.LengthCm, cargo.WidthCm, divisor)
		measure.TransformRuleID = &rule.ID
		measure.Notes = append(measure.Notes, fmt.Sprintf(
			"overwidth recalculation: width %.0f cm over %.0f cm, divisor %.0f cm",
			cargo.WidthCm, trigger, divisor,
		))
		break
	}

	return measure, nil
}
