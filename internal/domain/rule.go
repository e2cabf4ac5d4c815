package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Configuration errors. Rules carrying an unknown calculation mode or
// malformed parameters must fail fast, never be silently defaulted.
var (
	ErrUnknownCalcMode   = errors.New("unknown calculation mode")
	ErrUnknownTransform  = errors.New("unknown transform code")
	ErrInvalidRuleParams = errors.New("invalid rule parameters")
)

// Scope is the lookup filter for rule candidates. CarrierID is
// mandatory; every other dimension is optional and nil means the input
// carries no value for it.
type Scope struct {
	CarrierID       string  `json:"carrierId"`
	PortID          *string `json:"portId,omitempty"`
	Category        *string `json:"category,omitempty"`
	CategoryGroupID *int64  `json:"categoryGroupId,omitempty"`
	VesselName      *string `json:"vesselName,omitempty"`
	VesselClass     *string `json:"vesselClass,omitempty"`
}

// RuleMeta is the scoping shape shared by all rule variants. A nil
// scope dimension is a wildcard: the rule applies regardless of the
// input's value for that dimension.
type RuleMeta struct {
	ID              int64      `json:"id"`
	CarrierID       string     `json:"carrierId"`
	PortID          *string    `json:"portId,omitempty"`
	Category        *string    `json:"category,omitempty"`
	CategoryGroupID *int64     `json:"categoryGroupId,omitempty"`
	VesselName      *string    `json:"vesselName,omitempty"`
	VesselClass     *string    `json:"vesselClass,omitempty"`
	Priority        int        `json:"priority"`
	EffectiveFrom   *time.Time `json:"effectiveFrom,omitempty"`
	EffectiveTo     *time.Time `json:"effectiveTo,omitempty"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Meta returns the shared scoping fields. Satisfies the resolver's
// candidate constraint through embedding.
func (m RuleMeta) Meta() RuleMeta { return m }

// MinThreshold is a lower bound on a cargo dimension. A hard threshold
// rejects cargo below it; a soft one only warns.
type MinThreshold struct {
	Value float64 `json:"value"`
	Soft  bool    `json:"soft,omitempty"`
}

// AcceptanceSpec holds the variant-specific fields of an AcceptanceRule.
type AcceptanceSpec struct {
	MinLengthCm *MinThreshold `json:"minLengthCm,omitempty"`
	MinWidthCm  *MinThreshold `json:"minWidthCm,omitempty"`
	MinHeightCm *MinThreshold `json:"minHeightCm,omitempty"`
	MinCBM      *MinThreshold `json:"minCbm,omitempty"`
	MinWeightKg *MinThreshold `json:"minWeightKg,omitempty"`

	MaxLengthCm *float64 `json:"maxLengthCm,omitempty"`
	MaxWidthCm  *float64 `json:"maxWidthCm,omitempty"`
	MaxCBM      *float64 `json:"maxCbm,omitempty"`

	// Height and weight maxima have a soft path: exceeding the max but
	// staying within the soft max converts a rejection into an
	// approval-required state.
	MaxHeightCm                *float64 `json:"maxHeightCm,omitempty"`
	SoftMaxHeightCm            *float64 `json:"softMaxHeightCm,omitempty"`
	SoftHeightRequiresApproval bool     `json:"softHeightRequiresApproval,omitempty"`

	MaxWeightKg                *float64 `json:"maxWeightKg,omitempty"`
	SoftMaxWeightKg            *float64 `json:"softMaxWeightKg,omitempty"`
	SoftWeightRequiresApproval bool     `json:"softWeightRequiresApproval,omitempty"`

	RequireEmpty         bool `json:"requireEmpty,omitempty"`
	RequireSelfPropelled bool `json:"requireSelfPropelled,omitempty"`
}

// AcceptanceRule decides whether a carrier accepts a cargo unit.
type AcceptanceRule struct {
	RuleMeta
	AcceptanceSpec
}

// Band combination logic for classification bands.
const (
	BandLogicAnd = "AND"
	BandLogicOr  = "OR"
)

// ClassificationSpec holds the variant-specific fields of a
// ClassificationBand.
type ClassificationSpec struct {
	MinCBM          *float64 `json:"minCbm,omitempty"`
	MaxCBM          *float64 `json:"maxCbm,omitempty"`
	MaxHeightCm     *float64 `json:"maxHeightCm,omitempty"`
	OutcomeCategory string   `json:"outcomeCategory"`
	Logic           string   `json:"logic"` // "AND" or "OR"
}

// ClassificationBand reclassifies cargo into an outcome category when
// its populated constraints hold, combined per the band's logic.
type ClassificationBand struct {
	RuleMeta
	ClassificationSpec
}

// TransformOverwidthLM is the only transform code currently defined:
// overwidth cargo has its chargeable LM recomputed from raw area.
const TransformOverwidthLM = "OVERWIDTH_LM_RECALC"

// Defaults for the overwidth transform.
const (
	DefaultTriggerWidthCm = 250
	DefaultDivisorCm      = 250
)

// TransformSpec holds the variant-specific fields of a TransformRule.
type TransformSpec struct {
	Code             string  `json:"code"`
	TriggerWidthGtCm float64 `json:"triggerWidthGtCm"`
	DivisorCm        float64 `json:"divisorCm"`
}

// TransformRule adjusts the chargeable measure of a cargo unit.
type TransformRule struct {
	RuleMeta
	TransformSpec
}

// CalcMode enumerates surcharge calculation modes.
type CalcMode string

const (
	CalcFlat                  CalcMode = "FLAT"
	CalcPerUnit               CalcMode = "PER_UNIT"
	CalcPercentOfBasicFreight CalcMode = "PERCENT_OF_BASIC_FREIGHT"
	CalcWeightTier            CalcMode = "WEIGHT_TIER"
	CalcPerTonAbove           CalcMode = "PER_TON_ABOVE"
	CalcPerTank               CalcMode = "PER_TANK"
	CalcPerLM                 CalcMode = "PER_LM"
	CalcWidthLMBasis          CalcMode = "WIDTH_LM_BASIS"
	CalcWidthStepBlocks       CalcMode = "WIDTH_STEP_BLOCKS"
)

// Quantity bases for WIDTH_STEP_BLOCKS.
const (
	QtyBasisLM   = "lm"
	QtyBasisUnit = "unit"
)

// CalcParams is the decoded, typed parameter set of one calculation
// mode. Decoding happens at rule-load time so the calculator never
// probes an untyped map at evaluation time.
type CalcParams interface {
	CalcMode() CalcMode
	Validate() error
}

// FlatParams: quantity 1, fixed amount.
type FlatParams struct {
	Amount decimal.Decimal `json:"amount"`
}

func (p FlatParams) CalcMode() CalcMode { return CalcFlat }

func (p FlatParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.By(decimalNotNegative)),
	)
}

// PerUnitParams: quantity = cargo unit count, fixed amount per unit.
type PerUnitParams struct {
	Amount decimal.Decimal `json:"amount"`
}

func (p PerUnitParams) CalcMode() CalcMode { return CalcPerUnit }

func (p PerUnitParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.By(decimalNotNegative)),
	)
}

// PercentParams: unit amount = percentage of the basic freight figure.
type PercentParams struct {
	Percentage decimal.Decimal `json:"percentage"`
}

func (p PercentParams) CalcMode() CalcMode { return CalcPercentOfBasicFreight }

func (p PercentParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Percentage, validation.By(decimalPositive)),
	)
}

// WeightTier is one band of a WEIGHT_TIER table. A nil MaxKg makes the
// tier a catch-all. PerTonOver, when set, adds a per-ton overage above
// the tier's lower bound.
type WeightTier struct {
	MinKg      float64          `json:"minKg"`
	MaxKg      *float64         `json:"maxKg,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	PerTonOver *decimal.Decimal `json:"perTonOver,omitempty"`
}

// WeightTierParams: unit amount looked up from an ordered tier table.
type WeightTierParams struct {
	Tiers []WeightTier `json:"tiers"`
}

func (p WeightTierParams) CalcMode() CalcMode { return CalcWeightTier }

func (p WeightTierParams) Validate() error {
	if len(p.Tiers) == 0 {
		return errors.New("tiers: cannot be empty")
	}
	for i, t := range p.Tiers {
		if t.MinKg < 0 {
			return fmt.Errorf("tiers[%d]: minKg must not be negative", i)
		}
		if t.MaxKg != nil && *t.MaxKg < t.MinKg {
			return fmt.Errorf("tiers[%d]: maxKg below minKg", i)
		}
		if t.Amount.IsNegative() {
			return fmt.Errorf("tiers[%d]: amount must not be negative", i)
		}
	}
	return nil
}

// PerTonAboveParams: quantity = tons above the threshold.
type PerTonAboveParams struct {
	ThresholdKg  float64         `json:"thresholdKg"`
	AmountPerTon decimal.Decimal `json:"amountPerTon"`
}

func (p PerTonAboveParams) CalcMode() CalcMode { return CalcPerTonAbove }

func (p PerTonAboveParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ThresholdKg, validation.Min(0.0)),
		validation.Field(&p.AmountPerTon, validation.By(decimalNotNegative)),
	)
}

// PerTankParams: quantity = cargo unit count, fixed amount.
type PerTankParams struct {
	Amount decimal.Decimal `json:"amount"`
}

func (p PerTankParams) CalcMode() CalcMode { return CalcPerTank }

func (p PerTankParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.By(decimalNotNegative)),
	)
}

// PerLMParams: quantity = chargeable LM, fixed amount per LM.
type PerLMParams struct {
	AmountPerLM decimal.Decimal `json:"amountPerLm"`
}

func (p PerLMParams) CalcMode() CalcMode { return CalcPerLM }

func (p PerLMParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AmountPerLM, validation.By(decimalNotNegative)),
	)
}

// WidthLMBasisParams: charged per LM once width exceeds the trigger.
type WidthLMBasisParams struct {
	TriggerWidthGtCm float64         `json:"triggerWidthGtCm"`
	UseChargeableLM  bool            `json:"useChargeableLm"`
	AmountPerLM      decimal.Decimal `json:"amountPerLm"`
}

func (p WidthLMBasisParams) CalcMode() CalcMode { return CalcWidthLMBasis }

func (p WidthLMBasisParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TriggerWidthGtCm, validation.Min(0.0)),
		validation.Field(&p.AmountPerLM, validation.By(decimalNotNegative)),
	)
}

// WidthStepBlocksParams: charged per overwidth block once width exceeds
// the trigger; block count multiplies either base LM or unit count.
type WidthStepBlocksParams struct {
	TriggerWidthGtCm float64         `json:"triggerWidthGtCm"`
	BlockCm          float64         `json:"blockCm"`
	QtyBasis         string          `json:"qtyBasis"` // "lm" or "unit"
	AmountPerBlock   decimal.Decimal `json:"amountPerBlock"`
}

func (p WidthStepBlocksParams) CalcMode() CalcMode { return CalcWidthStepBlocks }

func (p WidthStepBlocksParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TriggerWidthGtCm, validation.Min(0.0)),
		validation.Field(&p.BlockCm, validation.Required, validation.Min(0.000001)),
		validation.Field(&p.QtyBasis, validation.Required, validation.In(QtyBasisLM, QtyBasisUnit)),
		validation.Field(&p.AmountPerBlock, validation.By(decimalNotNegative)),
	)
}

func decimalNotNegative(v interface{}) error {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func decimalPositive(v interface{}) error {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return errors.New("must be a decimal")
	}
	if d.Sign() <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

// DecodeCalcParams decodes and validates a parameter bag for the given
// calculation mode. An unknown mode is a configuration error.
func DecodeCalcParams(mode CalcMode, raw json.RawMessage) (CalcParams, error) {
	var params CalcParams
	switch mode {
	case CalcFlat:
		params = &FlatParams{}
	case CalcPerUnit:
		params = &PerUnitParams{}
	case CalcPercentOfBasicFreight:
		params = &PercentParams{}
	case CalcWeightTier:
		params = &WeightTierParams{}
	case CalcPerTonAbove:
		params = &PerTonAboveParams{}
	case CalcPerTank:
		params = &PerTankParams{}
	case CalcPerLM:
		params = &PerLMParams{}
	case CalcWidthLMBasis:
		params = &WidthLMBasisParams{}
	case CalcWidthStepBlocks:
		params = &WidthStepBlocksParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCalcMode, mode)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, params); err != nil {
			return nil, fmt.Errorf("%w: mode %s: %v", ErrInvalidRuleParams, mode, err)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: mode %s: %v", ErrInvalidRuleParams, mode, err)
	}
	return params, nil
}

// SurchargeSpec holds the variant-specific fields of a SurchargeRule.
type SurchargeSpec struct {
	EventCode string   `json:"eventCode"`
	Name      string   `json:"name"`
	Mode      CalcMode `json:"mode"`

	// RawParams is the stored parameter bag; Params is its decoded,
	// typed form, populated at load time via DecodeParams.
	RawParams json.RawMessage `json:"params,omitempty"`
	Params    CalcParams      `json:"-"`

	// ExclusiveGroup prevents two rules sharing the label from both
	// firing on one cargo unit.
	ExclusiveGroup *string `json:"exclusiveGroup,omitempty"`

	// Condition is an optional CEL guard expression; the rule only
	// fires when it evaluates to true against the cargo input.
	Condition string `json:"condition,omitempty"`
}

// SurchargeRule derives one billable surcharge event.
type SurchargeRule struct {
	RuleMeta
	SurchargeSpec
}

// DecodeParams populates the typed Params from the raw parameter bag.
func (r *SurchargeRule) DecodeParams() error {
	p, err := DecodeCalcParams(r.Mode, r.RawParams)
	if err != nil {
		return fmt.Errorf("surcharge rule %d (%s): %w", r.ID, r.EventCode, err)
	}
	r.Params = p
	return nil
}

// Quantity-interpretation modes for article maps.
const (
	QuantityModeEvent = "event" // use the surcharge event's computed quantity
	QuantityModeUnit  = "unit"  // use the cargo unit count
	QuantityModeOne   = "one"   // fixed quantity of 1
)

// ArticleMapSpec holds the variant-specific fields of a
// SurchargeArticleMap.
type ArticleMapSpec struct {
	EventCode    string `json:"eventCode"`
	ArticleID    int64  `json:"articleId"`
	QuantityMode string `json:"quantityMode"`
}

// SurchargeArticleMap binds a surcharge event code to a priced catalog
// item.
type SurchargeArticleMap struct {
	RuleMeta
	ArticleMapSpec
}

// CategoryGroup is an administrator-defined bucket of vehicle
// categories, used to scope rules more coarsely than per-category.
type CategoryGroup struct {
	ID         int64    `json:"id"`
	CarrierID  string   `json:"carrierId"`
	Code       string   `json:"code"`
	Categories []string `json:"categories"`
	Active     bool     `json:"active"`
}
