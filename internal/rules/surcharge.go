package rules

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// Amount-basis labels recorded on surcharge events.
const (
	BasisFlat         = "flat"
	BasisPerUnit      = "per_unit"
	BasisBasicFreight = "pct_basic_freight"
	BasisWeightTier   = "weight_tier"
	BasisPerTon       = "per_ton"
	BasisPerTank      = "per_tank"
	BasisPerLM        = "per_lm"
	BasisWidthLM      = "width_lm"
	BasisWidthBlock   = "width_block"
)

var thousand = decimal.NewFromInt(1000)

// Charge is one candidate surcharge's computed quantity and unit
// amount. NeedsBasicFreight marks a percentage charge that could not
// be computed because no basic-freight figure was supplied; the engine
// drops such events.
type Charge struct {
	Quantity          decimal.Decimal
	Basis             string
	UnitAmount        decimal.Decimal
	NeedsBasicFreight bool
}

// Calculator computes (quantity, unit amount) pairs from a surcharge
// rule's decoded parameters and the cargo/measure context.
type Calculator struct{}

// NewCalculator creates a surcharge calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate evaluates one surcharge rule. The rule's parameters must
// already be decoded; a rule whose mode has no decoded parameter type
// is a configuration error, never a silent no-charge.
func (c *Calculator) Calculate(rule *domain.SurchargeRule, cargo *domain.CargoInput, measure domain.ChargeableMeasure) (Charge, error) {
	units := decimal.NewFromInt(int64(cargo.UnitCount))

	switch p := rule.Params.(type) {
	case *domain.FlatParams:
		return Charge{Quantity: decimal.NewFromInt(1), Basis: BasisFlat, UnitAmount: p.Amount}, nil

	case *domain.PerUnitParams:
		return Charge{Quantity: units, Basis: BasisPerUnit, UnitAmount: p.Amount}, nil

	case *domain.PercentParams:
		if cargo.BasicFreight == nil {
			return Charge{Basis: BasisBasicFreight, NeedsBasicFreight: true}, nil
		}
		amount := cargo.BasicFreight.Mul(p.Percentage).Div(hundred)
		return Charge{Quantity: decimal.NewFromInt(1), Basis: BasisBasicFreight, UnitAmount: amount}, nil

	case *domain.WeightTierParams:
		return weightTierCharge(p, cargo.WeightKg), nil

	case *domain.PerTonAboveParams:
		overKg := cargo.WeightKg - p.ThresholdKg
		if overKg <= 0 {
			return Charge{Basis: BasisPerTon}, nil
		}
		tons := decimal.NewFromFloat(overKg).Div(thousand)
		return Charge{Quantity: tons, Basis: BasisPerTon, UnitAmount: p.AmountPerTon}, nil

	case *domain.PerTankParams:
		return Charge{Quantity: units, Basis: BasisPerTank, UnitAmount: p.Amount}, nil

	case *domain.PerLMParams:
		return Charge{Quantity: measure.ChargeableLM, Basis: BasisPerLM, UnitAmount: p.AmountPerLM}, nil

	case *domain.WidthLMBasisParams:
		if cargo.WidthCm <= p.TriggerWidthGtCm {
			return Charge{Basis: BasisWidthLM}, nil
		}
		qty := measure.BaseLM
		if p.UseChargeableLM {
			qty = measure.ChargeableLM
		}
		return Charge{Quantity: qty, Basis: BasisWidthLM, UnitAmount: p.AmountPerLM}, nil

	case *domain.WidthStepBlocksParams:
		if cargo.WidthCm <= p.TriggerWidthGtCm {
			return Charge{Basis: BasisWidthBlock}, nil
		}
		blocks := math.Ceil((cargo.WidthCm - p.TriggerWidthGtCm) / p.BlockCm)
		basisQty := measure.BaseLM
		if p.QtyBasis == domain.QtyBasisUnit {
			basisQty = units
		}
		qty := decimal.NewFromFloat(blocks).Mul(basisQty)
		return Charge{Quantity: qty, Basis: BasisWidthBlock, UnitAmount: p.AmountPerBlock}, nil

	default:
		return Charge{}, fmt.Errorf("surcharge rule %d (%s): %w: %q", rule.ID, rule.EventCode, domain.ErrUnknownCalcMode, rule.Mode)
	}
}

// weightTierCharge matches the cargo weight against the ordered tier
// table. A tier with no upper bound is a catch-all; no matching tier
// means no charge.
func weightTierCharge(p *domain.WeightTierParams, weightKg float64) Charge {
	for _, tier := range p.Tiers {
		if weightKg < tier.MinKg {
			continue
		}
		if tier.MaxKg != nil && weightKg > *tier.MaxKg {
			continue
		}

		amount := tier.Amount
		if tier.PerTonOver != nil {
			overTons := decimal.NewFromFloat(weightKg - tier.MinKg).Div(thousand)
			amount = amount.Add(overTons.Mul(*tier.PerTonOver))
		}
		return Charge{Quantity: decimal.NewFromInt(1), Basis: BasisWeightTier, UnitAmount: amount}
	}
	return Charge{Basis: BasisWeightTier}
}
