package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

func testStore(t *testing.T) domain.RuleStore {
	t.Helper()

	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func TestSaveAndQueryAcceptanceRule(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{
			CarrierID: "carrier-1",
			Category:  strPtr("car"),
			Active:    true,
		},
		AcceptanceSpec: domain.AcceptanceSpec{
			MaxHeightCm:                f64Ptr(270),
			SoftMaxHeightCm:            f64Ptr(300),
			SoftHeightRequiresApproval: true,
		},
	}
	if err := store.SaveAcceptanceRule(ctx, rule); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	cat := "car"
	rules, err := store.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1", Category: &cat})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	got := rules[0]
	if got.ID != rule.ID {
		t.Errorf("expected id %d, got %d", rule.ID, got.ID)
	}
	if got.MaxHeightCm == nil || *got.MaxHeightCm != 270 {
		t.Errorf("expected MaxHeightCm 270, got %v", got.MaxHeightCm)
	}
	if !got.SoftHeightRequiresApproval {
		t.Error("expected SoftHeightRequiresApproval to survive the round trip")
	}
}

func TestWildcardScopeMatching(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	wildcard := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
	}
	portScoped := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", PortID: strPtr("NOOSL"), Active: true},
	}
	otherPort := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", PortID: strPtr("DEHAM"), Active: true},
	}
	for _, r := range []*domain.AcceptanceRule{wildcard, portScoped, otherPort} {
		if err := store.SaveAcceptanceRule(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	// Scope with the port: wildcard plus the matching port rule.
	port := "NOOSL"
	rules, err := store.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1", PortID: &port})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("expected 2 candidates with port scope, got %d", len(rules))
	}

	// Scope without a port: only the wildcard rule.
	rules, err = store.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != wildcard.ID {
		t.Errorf("expected only the wildcard rule without port scope, got %d candidates", len(rules))
	}
}

func TestCarrierIsolation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	store.SaveAcceptanceRule(ctx, &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
	})
	store.SaveAcceptanceRule(ctx, &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-2", Active: true},
	})

	rules, err := store.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 || rules[0].CarrierID != "carrier-1" {
		t.Errorf("expected only carrier-1 rules, got %d", len(rules))
	}
}

func TestInactiveAndExpiredRulesExcluded(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-48 * time.Hour)
	future := time.Now().UTC().Add(48 * time.Hour)

	inactive := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: false},
	}
	expired := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true, EffectiveTo: &past},
	}
	notYet := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true, EffectiveFrom: &future},
	}
	current := &domain.AcceptanceRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true, EffectiveFrom: &past, EffectiveTo: &future},
	}
	for _, r := range []*domain.AcceptanceRule{inactive, expired, notYet, current} {
		if err := store.SaveAcceptanceRule(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	rules, err := store.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != current.ID {
		t.Errorf("expected only the current rule, got %d candidates", len(rules))
	}

	// Listing shows everything, active or not.
	all, err := store.ListAcceptanceRules(ctx, "carrier-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 listed rules, got %d", len(all))
	}
}

func TestSurchargeRuleRoundTripDecodesParams(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := &domain.SurchargeRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		SurchargeSpec: domain.SurchargeSpec{
			EventCode: "OVERWEIGHT",
			Name:      "Overweight surcharge",
			Mode:      domain.CalcPerTonAbove,
			RawParams: json.RawMessage(`{"thresholdKg": 30000, "amountPerTon": "40"}`),
			Condition: "weight_kg > 30000.0",
		},
	}
	if err := store.SaveSurchargeRule(ctx, rule); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rules, err := store.SurchargeRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	got := rules[0]
	params, ok := got.Params.(*domain.PerTonAboveParams)
	if !ok {
		t.Fatalf("expected decoded *PerTonAboveParams, got %T", got.Params)
	}
	if params.ThresholdKg != 30000 || !params.AmountPerTon.Equal(decimal.NewFromInt(40)) {
		t.Errorf("unexpected params: %+v", params)
	}
	if got.Condition != "weight_kg > 30000.0" {
		t.Errorf("expected the condition to survive, got %q", got.Condition)
	}
}

func TestSaveSurchargeRuleRejectsBadParams(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := &domain.SurchargeRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		SurchargeSpec: domain.SurchargeSpec{
			EventCode: "BROKEN",
			Mode:      "PER_MOON_PHASE",
		},
	}

	err := store.SaveSurchargeRule(ctx, rule)
	if !errors.Is(err, domain.ErrUnknownCalcMode) {
		t.Errorf("expected ErrUnknownCalcMode, got %v", err)
	}
}

func TestArticleMapsFilteredByEventCode(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	handling := &domain.SurchargeArticleMap{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		ArticleMapSpec: domain.ArticleMapSpec{
			EventCode: "HANDLING", ArticleID: 4711, QuantityMode: domain.QuantityModeEvent,
		},
	}
	docs := &domain.SurchargeArticleMap{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		ArticleMapSpec: domain.ArticleMapSpec{
			EventCode: "DOCS", ArticleID: 4712, QuantityMode: domain.QuantityModeOne,
		},
	}
	for _, m := range []*domain.SurchargeArticleMap{handling, docs} {
		if err := store.SaveArticleMap(ctx, m); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	maps, err := store.ArticleMaps(ctx, domain.Scope{CarrierID: "carrier-1"}, "HANDLING")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(maps) != 1 || maps[0].ArticleID != 4711 {
		t.Errorf("expected only the HANDLING map, got %v", maps)
	}
}

func TestSaveArticleMapRequiresEventCode(t *testing.T) {
	store := testStore(t)

	err := store.SaveArticleMap(context.Background(), &domain.SurchargeArticleMap{
		RuleMeta:       domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		ArticleMapSpec: domain.ArticleMapSpec{ArticleID: 4711},
	})
	if err == nil {
		t.Fatal("expected an error without an event code")
	}
}

func TestUpsertUpdatesExistingRule(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := &domain.TransformRule{
		RuleMeta: domain.RuleMeta{CarrierID: "carrier-1", Active: true},
		TransformSpec: domain.TransformSpec{
			Code: domain.TransformOverwidthLM, TriggerWidthGtCm: 250, DivisorCm: 250,
		},
	}
	if err := store.SaveTransformRule(ctx, rule); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	rule.DivisorCm = 200
	if err := store.SaveTransformRule(ctx, rule); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rules, err := store.TransformRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule after upsert, got %d", len(rules))
	}
	if rules[0].DivisorCm != 200 {
		t.Errorf("expected updated divisor 200, got %f", rules[0].DivisorCm)
	}
}

func TestCategoryGroupLookup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	group := &domain.CategoryGroup{
		CarrierID:  "carrier-1",
		Code:       "rolling",
		Categories: []string{"car", "van", "truck"},
		Active:     true,
	}
	if err := store.SaveCategoryGroup(ctx, group); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if group.ID == 0 {
		t.Fatal("expected an assigned group id")
	}

	got, err := store.CategoryGroupByCategory(ctx, "carrier-1", "van")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got == nil || got.Code != "rolling" {
		t.Fatalf("expected the rolling group, got %v", got)
	}
	if len(got.Categories) != 3 {
		t.Errorf("expected 3 members, got %v", got.Categories)
	}

	// Unknown category: nil, nil.
	got, err = store.CategoryGroupByCategory(ctx, "carrier-1", "hovercraft")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no group, got %v", got)
	}
}

func TestCategoryGroupMembershipReplaced(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	group := &domain.CategoryGroup{
		CarrierID:  "carrier-1",
		Code:       "rolling",
		Categories: []string{"car", "van"},
		Active:     true,
	}
	if err := store.SaveCategoryGroup(ctx, group); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	group.Categories = []string{"truck"}
	if err := store.SaveCategoryGroup(ctx, group); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if got, _ := store.CategoryGroupByCategory(ctx, "carrier-1", "car"); got != nil {
		t.Error("expected car to be removed from the group")
	}
	got, err := store.CategoryGroupByCategory(ctx, "carrier-1", "truck")
	if err != nil || got == nil {
		t.Fatalf("expected truck in the group, got %v, %v", got, err)
	}
}

func TestSaveRequiresCarrier(t *testing.T) {
	store := testStore(t)

	err := store.SaveAcceptanceRule(context.Background(), &domain.AcceptanceRule{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPing(t *testing.T) {
	store := testStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}
