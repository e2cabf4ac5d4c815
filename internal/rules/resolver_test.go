package rules

import (
	"testing"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

func strPtr(s string) *string    { return &s }
func i64Ptr(v int64) *int64      { return &v }
func f64Ptr(v float64) *float64  { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func testScope() domain.Scope {
	return domain.Scope{
		CarrierID:       "carrier-1",
		PortID:          strPtr("NOOSL"),
		Category:        strPtr("car"),
		CategoryGroupID: i64Ptr(7),
		VesselName:      strPtr("MV Aurora"),
		VesselClass:     strPtr("PCTC"),
	}
}

func TestScoreWeights(t *testing.T) {
	scope := testScope()

	cases := []struct {
		name string
		meta domain.RuleMeta
		want int
	}{
		{"wildcard", domain.RuleMeta{CarrierID: "carrier-1"}, 0},
		{"group only", domain.RuleMeta{CarrierID: "carrier-1", CategoryGroupID: i64Ptr(7)}, 1},
		{"category only", domain.RuleMeta{CarrierID: "carrier-1", Category: strPtr("car")}, 2},
		{"vessel class only", domain.RuleMeta{CarrierID: "carrier-1", VesselClass: strPtr("PCTC")}, 6},
		{"port only", domain.RuleMeta{CarrierID: "carrier-1", PortID: strPtr("NOOSL")}, 8},
		{"vessel name only", domain.RuleMeta{CarrierID: "carrier-1", VesselName: strPtr("MV Aurora")}, 10},
		{"all dimensions", domain.RuleMeta{
			CarrierID:       "carrier-1",
			PortID:          strPtr("NOOSL"),
			Category:        strPtr("car"),
			CategoryGroupID: i64Ptr(7),
			VesselName:      strPtr("MV Aurora"),
			VesselClass:     strPtr("PCTC"),
		}, 27},
	}

	for _, tc := range cases {
		if got := Score(tc.meta, scope); got != tc.want {
			t.Errorf("%s: expected score %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestScoreUnmatchedDimensionContributesNothing(t *testing.T) {
	scope := testScope()

	// Rule constrains the port to a different value: it would not have
	// been returned by the source, but its score must not count the
	// dimension either way.
	meta := domain.RuleMeta{
		CarrierID: "carrier-1",
		PortID:    strPtr("DEHAM"),
		Category:  strPtr("car"),
	}
	if got := Score(meta, scope); got != 2 {
		t.Errorf("expected score 2 (category only), got %d", got)
	}

	// Scope carries no vessel name: a rule constraining it scores zero
	// for that dimension.
	noVessel := scope
	noVessel.VesselName = nil
	meta = domain.RuleMeta{CarrierID: "carrier-1", VesselName: strPtr("MV Aurora")}
	if got := Score(meta, noVessel); got != 0 {
		t.Errorf("expected score 0 without vessel in scope, got %d", got)
	}
}

func TestVesselNameBeatsPortPlusCategory(t *testing.T) {
	scope := testScope()

	byVessel := &domain.AcceptanceRule{RuleMeta: domain.RuleMeta{
		ID: 1, CarrierID: "carrier-1", VesselName: strPtr("MV Aurora"),
	}}
	byPortAndCategory := &domain.AcceptanceRule{RuleMeta: domain.RuleMeta{
		ID: 2, CarrierID: "carrier-1", PortID: strPtr("NOOSL"), Category: strPtr("car"),
	}}

	// Port (8) + category (2) = 10 ties vessel name (10); the tie breaks
	// on id, so flip the priority to make vessel name win outright.
	byVessel.Priority = 1

	best, ok := Best([]*domain.AcceptanceRule{byPortAndCategory, byVessel}, scope)
	if !ok {
		t.Fatal("expected a winner")
	}
	if best.ID != 1 {
		t.Errorf("expected vessel-name rule to win, got rule %d", best.ID)
	}
}

func TestOrderingTieBreakers(t *testing.T) {
	scope := testScope()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rules := []*domain.SurchargeRule{
		{RuleMeta: domain.RuleMeta{ID: 1, CarrierID: "carrier-1", Priority: 0}},
		{RuleMeta: domain.RuleMeta{ID: 2, CarrierID: "carrier-1", Priority: 5}},
		{RuleMeta: domain.RuleMeta{ID: 3, CarrierID: "carrier-1", Priority: 5, EffectiveFrom: timePtr(older)}},
		{RuleMeta: domain.RuleMeta{ID: 4, CarrierID: "carrier-1", Priority: 5, EffectiveFrom: timePtr(newer)}},
		{RuleMeta: domain.RuleMeta{ID: 5, CarrierID: "carrier-1", Priority: 0}},
	}

	ordered := Ordered(rules, scope)

	// Same score everywhere (all wildcard): priority desc, then later
	// effective_from before none, then higher id.
	wantIDs := []int64{4, 3, 2, 5, 1}
	for i, want := range wantIDs {
		if ordered[i].ID != want {
			t.Errorf("position %d: expected rule %d, got %d", i, want, ordered[i].ID)
		}
	}
}

func TestOrderedDoesNotMutateInput(t *testing.T) {
	scope := testScope()
	rules := []*domain.SurchargeRule{
		{RuleMeta: domain.RuleMeta{ID: 1, CarrierID: "carrier-1", Priority: 0}},
		{RuleMeta: domain.RuleMeta{ID: 2, CarrierID: "carrier-1", Priority: 9}},
	}

	Ordered(rules, scope)

	if rules[0].ID != 1 || rules[1].ID != 2 {
		t.Error("Ordered mutated the input slice")
	}
}

func TestBestEmptyAndSingle(t *testing.T) {
	scope := testScope()

	if _, ok := Best([]*domain.AcceptanceRule{}, scope); ok {
		t.Error("expected no winner from an empty candidate set")
	}

	only := &domain.AcceptanceRule{RuleMeta: domain.RuleMeta{ID: 42, CarrierID: "carrier-1"}}
	best, ok := Best([]*domain.AcceptanceRule{only}, scope)
	if !ok || best.ID != 42 {
		t.Errorf("expected the single candidate to win, got ok=%v", ok)
	}
}

func TestPriorityBeatsNothingButScore(t *testing.T) {
	scope := testScope()

	specific := &domain.ClassificationBand{RuleMeta: domain.RuleMeta{
		ID: 1, CarrierID: "carrier-1", Category: strPtr("car"), Priority: 0,
	}}
	wildcardHighPriority := &domain.ClassificationBand{RuleMeta: domain.RuleMeta{
		ID: 2, CarrierID: "carrier-1", Priority: 100,
	}}

	best, _ := Best([]*domain.ClassificationBand{wildcardHighPriority, specific}, scope)
	if best.ID != 1 {
		t.Errorf("specificity must beat priority, got rule %d", best.ID)
	}
}
