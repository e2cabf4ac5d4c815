package domain

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Cargo flag names recognized by the engine.
const (
	FlagEmpty            = "empty"
	FlagNonSelfPropelled = "non_self_propelled"
)

// CargoInput describes one cargo unit to be rated. It is immutable once
// constructed; one instance per rating call.
type CargoInput struct {
	// Shipping context
	CarrierID       string  `json:"carrierId"`
	PortID          *string `json:"portId,omitempty"`
	Category        string  `json:"category"`
	CategoryGroupID *int64  `json:"categoryGroupId,omitempty"`
	VesselName      *string `json:"vesselName,omitempty"`
	VesselClass     *string `json:"vesselClass,omitempty"`

	// Dimensions and weight
	LengthCm  float64 `json:"lengthCm"`
	WidthCm   float64 `json:"widthCm"`
	HeightCm  float64 `json:"heightCm"`
	WeightKg  float64 `json:"weightKg"`
	CBM       float64 `json:"cbm"`
	UnitCount int     `json:"unitCount"`

	// Operational flags, e.g. "empty", "non_self_propelled".
	Flags []string `json:"flags,omitempty"`

	// BasicFreight is the basic-freight figure percentage surcharges are
	// computed from. Nil when the caller has no figure available.
	BasicFreight *decimal.Decimal `json:"basicFreight,omitempty"`

	// CommodityRef is an opaque reference to the originating commodity
	// line, carried through for downstream linkage.
	CommodityRef string `json:"commodityRef,omitempty"`
}

// Validate checks the input is complete enough to rate.
func (c *CargoInput) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CarrierID, validation.Required),
		validation.Field(&c.Category, validation.Required),
		validation.Field(&c.LengthCm, validation.Required, validation.Min(0.000001)),
		validation.Field(&c.WidthCm, validation.Required, validation.Min(0.000001)),
		validation.Field(&c.HeightCm, validation.Min(0.0)),
		validation.Field(&c.WeightKg, validation.Min(0.0)),
		validation.Field(&c.CBM, validation.Min(0.0)),
		validation.Field(&c.UnitCount, validation.Required, validation.Min(1)),
	)
}

// HasFlag reports whether the cargo carries the given operational flag.
func (c *CargoInput) HasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Scope builds the rule-lookup scope for this cargo unit.
func (c *CargoInput) Scope() Scope {
	s := Scope{
		CarrierID:       c.CarrierID,
		PortID:          c.PortID,
		CategoryGroupID: c.CategoryGroupID,
		VesselName:      c.VesselName,
		VesselClass:     c.VesselClass,
	}
	if c.Category != "" {
		cat := c.Category
		s.Category = &cat
	}
	return s
}
