package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AcceptanceStatus is the engine's verdict on whether the carrier
// takes the cargo.
type AcceptanceStatus string

const (
	StatusAllowed            AcceptanceStatus = "ALLOWED"
	StatusAllowedUponRequest AcceptanceStatus = "ALLOWED_UPON_REQUEST"
	StatusNotAllowed         AcceptanceStatus = "NOT_ALLOWED"
)

// AcceptanceResult accumulates the outcome of the acceptance checks.
// Violations force NOT_ALLOWED; approvals force ALLOWED_UPON_REQUEST
// unless a violation is also present; warnings never affect status.
type AcceptanceResult struct {
	Status            AcceptanceStatus `json:"status"`
	Violations        []string         `json:"violations,omitempty"`
	Warnings          []string         `json:"warnings,omitempty"`
	ApprovalsRequired []string         `json:"approvalsRequired,omitempty"`
	RuleID            *int64           `json:"ruleId,omitempty"`
}

// ChargeableMeasure is the billable linear-meter measure of one cargo
// unit, before and after carrier-specific transforms.
type ChargeableMeasure struct {
	BaseLM          decimal.Decimal `json:"baseLm"`
	ChargeableLM    decimal.Decimal `json:"chargeableLm"`
	TransformRuleID *int64          `json:"transformRuleId,omitempty"`

	// Notes is the audit trail explaining why a transform applied.
	Notes []string `json:"notes,omitempty"`
}

// SurchargeEvent is one surcharge that fired for a cargo unit.
type SurchargeEvent struct {
	EventCode  string          `json:"eventCode"`
	Quantity   decimal.Decimal `json:"quantity"`
	Basis      string          `json:"basis"`
	UnitAmount decimal.Decimal `json:"unitAmount"`
	RuleID     int64           `json:"ruleId"`
	Reason     string          `json:"reason"`
}

// QuoteLineDraft is the engine's final output unit: a surcharge event
// mapped to a priced catalog item, ready for the quotation layer to
// persist as a billed line item.
type QuoteLineDraft struct {
	ArticleID      int64            `json:"articleId"`
	Quantity       decimal.Decimal  `json:"quantity"`
	AmountOverride *decimal.Decimal `json:"amountOverride,omitempty"`
	EventCode      string           `json:"eventCode"`
	QuantityMode   string           `json:"quantityMode"`
	Reason         string           `json:"reason"`
	RuleID         int64            `json:"ruleId"`
}

// RuleResult is the complete outcome of rating one cargo unit.
type RuleResult struct {
	ID           string `json:"id"`
	CommodityRef string `json:"commodityRef,omitempty"`

	// Category after classification; CategoryGroup is the matched
	// group's code, empty when the carrier defines none.
	Category      string `json:"category"`
	CategoryGroup string `json:"categoryGroup,omitempty"`

	Acceptance AcceptanceResult  `json:"acceptance"`
	Measure    ChargeableMeasure `json:"measure"`
	Surcharges []SurchargeEvent  `json:"surcharges,omitempty"`
	Drafts     []QuoteLineDraft  `json:"drafts,omitempty"`

	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata carries processing information.
type ResultMetadata struct {
	RatedAt       time.Time `json:"ratedAt"`
	TotalMs       int64     `json:"totalMs"`
	EngineVersion string    `json:"engineVersion"`
	TraceID       string    `json:"traceId,omitempty"`
}
