package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-freight/lanemeter/internal/domain"
	"github.com/opensource-freight/lanemeter/internal/verdict"
)

// GroupGetter resolves the category group a cargo category belongs to.
// It returns nil without error when the carrier defines no group for
// the category.
type GroupGetter func(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error)

// Engine runs the full rating pipeline for one cargo unit: group
// derivation, classification, acceptance, chargeable measure,
// surcharges and article mapping.
type Engine struct {
	source      domain.RuleSource
	measure     *MeasureService
	calc        *Calculator
	conditions  *ConditionEvaluator
	groupGetter GroupGetter
	tracer      trace.Tracer
	bfMissing   metric.Int64Counter
}

// NewEngine creates a new rating engine. groupGetter may be nil when
// the deployment has no category groups configured.
func NewEngine(source domain.RuleSource, groupGetter GroupGetter) (*Engine, error) {
	conditions, err := NewConditionEvaluator()
	if err != nil {
		return nil, err
	}

	meter := otel.Meter("lanemeter-engine")
	bfMissing, err := meter.Int64Counter("lanemeter.surcharge.basic_freight_missing",
		metric.WithDescription("Percentage surcharges dropped because the input carried no basic freight figure"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &Engine{
		source:      source,
		measure:     NewMeasureService(source),
		calc:        NewCalculator(),
		conditions:  conditions,
		groupGetter: groupGetter,
		tracer:      otel.Tracer("lanemeter-engine"),
		bfMissing:   bfMissing,
	}, nil
}

// ValidateCondition checks a surcharge guard expression at authoring
// time.
func (e *Engine) ValidateCondition(expr string) error {
	return e.conditions.ValidateExpression(expr)
}

// ProcessCargo rates one cargo unit and returns the complete result.
// Rule lookup failures surface as errors; they are never treated as an
// empty rule set.
func (e *Engine) ProcessCargo(ctx context.Context, input *domain.CargoInput) (*domain.RuleResult, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.ProcessCargo",
		trace.WithAttributes(
			attribute.String("carrier_id", input.CarrierID),
			attribute.String("category", input.Category),
		))
	defer span.End()

	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cargo input: %w", err)
	}

	// Work on a copy so classification and group derivation never leak
	// back into the caller's input.
	cargo := *input

	groupCode := ""
	if cargo.CategoryGroupID == nil && e.groupGetter != nil {
		group, err := e.groupGetter(ctx, cargo.CarrierID, cargo.Category)
		if err != nil {
			return nil, fmt.Errorf("derive category group: %w", err)
		}
		if group != nil {
			id := group.ID
			cargo.CategoryGroupID = &id
			groupCode = group.Code
		}
	}

	scope := cargo.Scope()

	bands, err := e.source.ClassificationBands(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("fetch classification bands: %w", err)
	}
	if band, ok := Best(bands, scope); ok && bandMatches(band, &cargo) {
		cargo.Category = band.OutcomeCategory
		scope = cargo.Scope()
	}

	acceptRules, err := e.source.AcceptanceRules(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("fetch acceptance rules: %w", err)
	}
	var acceptance domain.AcceptanceResult
	if rule, ok := Best(acceptRules, scope); ok {
		acceptance = EvaluateAcceptance(rule, &cargo)
	}

	measure, err := e.measure.Compute(ctx, &cargo, scope)
	if err != nil {
		return nil, err
	}

	events, drafts, err := e.surcharges(ctx, &cargo, scope, measure)
	if err != nil {
		return nil, err
	}

	traceID := ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	return verdict.Assemble(&verdict.Input{
		Cargo:      &cargo,
		Group:      groupCode,
		Acceptance: acceptance,
		Measure:    measure,
		Surcharges: events,
		Drafts:     drafts,
		TraceID:    traceID,
		StartTime:  start,
	}), nil
}

// bandMatches evaluates a classification band's populated constraints
// against the cargo, combined per the band's logic. A band with no
// constraints matches unconditionally.
func bandMatches(band *domain.ClassificationBand, cargo *domain.CargoInput) bool {
	var checks []bool
	if band.MinCBM != nil {
		checks = append(checks, cargo.CBM >= *band.MinCBM)
	}
	if band.MaxCBM != nil {
		checks = append(checks, cargo.CBM <= *band.MaxCBM)
	}
	if band.MaxHeightCm != nil {
		checks = append(checks, cargo.HeightCm <= *band.MaxHeightCm)
	}
	if len(checks) == 0 {
		return true
	}

	if band.Logic == domain.BandLogicOr {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// surcharges walks the surcharge candidates in resolution order and
// derives events and quote-line drafts. A rule in an already-claimed
// exclusive group is skipped, as is any rule whose guard does not hold
// or whose computed quantity is not positive.
func (e *Engine) surcharges(ctx context.Context, cargo *domain.CargoInput, scope domain.Scope, measure domain.ChargeableMeasure) ([]domain.SurchargeEvent, []domain.QuoteLineDraft, error) {
	candidates, err := e.source.SurchargeRules(ctx, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch surcharge rules: %w", err)
	}

	var events []domain.SurchargeEvent
	var drafts []domain.QuoteLineDraft
	claimed := make(map[string]bool)

	for _, rule := range Ordered(candidates, scope) {
		if rule.ExclusiveGroup != nil && claimed[*rule.ExclusiveGroup] {
			continue
		}

		hold, err := e.conditions.Matches(rule, cargo)
		if err != nil {
			return nil, nil, err
		}
		if !hold {
			continue
		}

		charge, err := e.calc.Calculate(rule, cargo, measure)
		if err != nil {
			return nil, nil, err
		}

		if charge.NeedsBasicFreight {
			slog.Warn("dropping percentage surcharge, input has no basic freight figure",
				"carrier_id", cargo.CarrierID,
				"event_code", rule.EventCode,
				"rule_id", rule.ID)
			e.bfMissing.Add(ctx, 1, metric.WithAttributes(
				attribute.String("carrier_id", cargo.CarrierID),
				attribute.String("event_code", rule.EventCode)))
			continue
		}
		if charge.Quantity.Sign() <= 0 {
			continue
		}

		if rule.ExclusiveGroup != nil {
			claimed[*rule.ExclusiveGroup] = true
		}

		event := domain.SurchargeEvent{
			EventCode:  rule.EventCode,
			Quantity:   charge.Quantity,
			Basis:      charge.Basis,
			UnitAmount: charge.UnitAmount,
			RuleID:     rule.ID,
			Reason:     rule.Name,
		}
		events = append(events, event)

		draft, err := e.draftFor(ctx, cargo, scope, event)
		if err != nil {
			return nil, nil, err
		}
		if draft != nil {
			drafts = append(drafts, *draft)
		}
	}

	return events, drafts, nil
}

// draftFor maps a surcharge event to a quote-line draft. An event with
// no article map for its code produces no draft.
func (e *Engine) draftFor(ctx context.Context, cargo *domain.CargoInput, scope domain.Scope, event domain.SurchargeEvent) (*domain.QuoteLineDraft, error) {
	maps, err := e.source.ArticleMaps(ctx, scope, event.EventCode)
	if err != nil {
		return nil, fmt.Errorf("fetch article maps: %w", err)
	}
	m, ok := Best(maps, scope)
	if !ok {
		return nil, nil
	}

	qty := event.Quantity
	switch m.QuantityMode {
	case domain.QuantityModeUnit:
		qty = decimal.NewFromInt(int64(cargo.UnitCount))
	case domain.QuantityModeOne:
		qty = decimal.NewFromInt(1)
	}

	amount := event.UnitAmount
	return &domain.QuoteLineDraft{
		ArticleID:      m.ArticleID,
		Quantity:       qty,
		AmountOverride: &amount,
		EventCode:      event.EventCode,
		QuantityMode:   m.QuantityMode,
		Reason:         event.Reason,
		RuleID:         event.RuleID,
	}, nil
}
