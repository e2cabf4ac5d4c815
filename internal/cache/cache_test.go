package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	err := c.Set(ctx, "carrier-1", "key1", []byte("value1"), time.Minute)
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := c.Get(ctx, "carrier-1", "key1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}

	// Missing key returns nil, nil.
	val, err = c.Get(ctx, "carrier-1", "missing")
	if err != nil || val != nil {
		t.Errorf("expected nil, nil for missing key, got %v, %v", val, err)
	}

	if err := c.Delete(ctx, "carrier-1", "key1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	val, _ = c.Get(ctx, "carrier-1", "key1")
	if val != nil {
		t.Error("expected key to be deleted")
	}
}

func TestLRUCarrierIsolation(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	c.Set(ctx, "carrier-1", "rules", []byte("a"), time.Minute)
	c.Set(ctx, "carrier-2", "rules", []byte("b"), time.Minute)

	val, _ := c.Get(ctx, "carrier-1", "rules")
	if string(val) != "a" {
		t.Errorf("carrier-1: expected a, got %s", val)
	}
	val, _ = c.Get(ctx, "carrier-2", "rules")
	if string(val) != "b" {
		t.Errorf("carrier-2: expected b, got %s", val)
	}
}

func TestLRURequiresCarrier(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	if _, err := c.Get(ctx, "", "key"); err == nil {
		t.Error("expected error for empty carrierID on Get")
	}
	if err := c.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
		t.Error("expected error for empty carrierID on Set")
	}
}

func TestLRUExpiration(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	c.Set(ctx, "carrier-1", "ephemeral", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "carrier-1", "ephemeral")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != nil {
		t.Error("expected expired entry to be gone")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	c.Set(ctx, "carrier-1", "k1", []byte("1"), time.Minute)
	c.Set(ctx, "carrier-1", "k2", []byte("2"), time.Minute)
	c.Set(ctx, "carrier-1", "k3", []byte("3"), time.Minute)

	// Touch k1 so k2 becomes the oldest.
	c.Get(ctx, "carrier-1", "k1")

	c.Set(ctx, "carrier-1", "k4", []byte("4"), time.Minute)

	if val, _ := c.Get(ctx, "carrier-1", "k2"); val != nil {
		t.Error("expected k2 to be evicted")
	}
	if val, _ := c.Get(ctx, "carrier-1", "k1"); val == nil {
		t.Error("expected recently used k1 to survive")
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size 3 of 3, got %d of %d", size, capacity)
	}
}

func TestLRUFlush(t *testing.T) {
	c := NewLRUCache(100)
	ctx := context.Background()

	c.Set(ctx, "carrier-1", "k1", []byte("1"), time.Minute)
	c.Set(ctx, "carrier-2", "k2", []byte("2"), time.Minute)

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if val, _ := c.Get(ctx, "carrier-1", "k1"); val != nil {
		t.Error("expected flush to drop carrier-1 entries")
	}
	if val, _ := c.Get(ctx, "carrier-2", "k2"); val != nil {
		t.Error("expected flush to drop carrier-2 entries")
	}
}

// countingSource records how often each lookup reaches the store.
type countingSource struct {
	acceptanceCalls int
	surchargeCalls  int
	surcharges      []*domain.SurchargeRule
}

func (s *countingSource) AcceptanceRules(ctx context.Context, scope domain.Scope) ([]*domain.AcceptanceRule, error) {
	s.acceptanceCalls++
	return []*domain.AcceptanceRule{
		{RuleMeta: domain.RuleMeta{ID: 1, CarrierID: scope.CarrierID, Active: true}},
	}, nil
}

func (s *countingSource) ClassificationBands(ctx context.Context, scope domain.Scope) ([]*domain.ClassificationBand, error) {
	return nil, nil
}

func (s *countingSource) TransformRules(ctx context.Context, scope domain.Scope) ([]*domain.TransformRule, error) {
	return nil, nil
}

func (s *countingSource) SurchargeRules(ctx context.Context, scope domain.Scope) ([]*domain.SurchargeRule, error) {
	s.surchargeCalls++
	return s.surcharges, nil
}

func (s *countingSource) ArticleMaps(ctx context.Context, scope domain.Scope, eventCode string) ([]*domain.SurchargeArticleMap, error) {
	return nil, nil
}

func (s *countingSource) CategoryGroupByCategory(ctx context.Context, carrierID, category string) (*domain.CategoryGroup, error) {
	return nil, nil
}

func TestSourceCacheHit(t *testing.T) {
	source := &countingSource{}
	sc := NewSourceCache(source, NewLRUCache(100), time.Minute)
	ctx := context.Background()
	scope := domain.Scope{CarrierID: "carrier-1"}

	for i := 0; i < 3; i++ {
		rules, err := sc.AcceptanceRules(ctx, scope)
		if err != nil {
			t.Fatalf("lookup %d failed: %v", i, err)
		}
		if len(rules) != 1 || rules[0].ID != 1 {
			t.Fatalf("lookup %d: unexpected rules %v", i, rules)
		}
	}

	if source.acceptanceCalls != 1 {
		t.Errorf("expected 1 store call, got %d", source.acceptanceCalls)
	}
}

func TestSourceCacheScopeSeparation(t *testing.T) {
	source := &countingSource{}
	sc := NewSourceCache(source, NewLRUCache(100), time.Minute)
	ctx := context.Background()

	cat := "car"
	sc.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1"})
	sc.AcceptanceRules(ctx, domain.Scope{CarrierID: "carrier-1", Category: &cat})

	if source.acceptanceCalls != 2 {
		t.Errorf("different scopes must not share an entry, got %d calls", source.acceptanceCalls)
	}
}

func TestSourceCacheRedecodesSurchargeParams(t *testing.T) {
	raw := json.RawMessage(`{"amount": "50"}`)
	rule := &domain.SurchargeRule{
		RuleMeta: domain.RuleMeta{ID: 5, CarrierID: "carrier-1", Active: true},
		SurchargeSpec: domain.SurchargeSpec{
			EventCode: "HANDLING",
			Mode:      domain.CalcFlat,
			RawParams: raw,
		},
	}
	if err := rule.DecodeParams(); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	source := &countingSource{surcharges: []*domain.SurchargeRule{rule}}
	sc := NewSourceCache(source, NewLRUCache(100), time.Minute)
	ctx := context.Background()
	scope := domain.Scope{CarrierID: "carrier-1"}

	// First call populates the cache, second reads the JSON snapshot
	// where Params is not serialized.
	for i := 0; i < 2; i++ {
		rules, err := sc.SurchargeRules(ctx, scope)
		if err != nil {
			t.Fatalf("lookup %d failed: %v", i, err)
		}
		if len(rules) != 1 {
			t.Fatalf("lookup %d: expected 1 rule, got %d", i, len(rules))
		}
		if rules[0].Params == nil {
			t.Fatalf("lookup %d: params must be decoded after the round trip", i)
		}
		if _, ok := rules[0].Params.(*domain.FlatParams); !ok {
			t.Errorf("lookup %d: expected *FlatParams, got %T", i, rules[0].Params)
		}
	}

	if source.surchargeCalls != 1 {
		t.Errorf("expected 1 store call, got %d", source.surchargeCalls)
	}
}

func TestSourceCacheCorruptEntryFallsThrough(t *testing.T) {
	source := &countingSource{}
	lru := NewLRUCache(100)
	sc := NewSourceCache(source, lru, time.Minute)
	ctx := context.Background()
	scope := domain.Scope{CarrierID: "carrier-1"}

	// Poison the exact key the source cache will use.
	lru.Set(ctx, "carrier-1", scopeKey("acceptance", scope, ""), []byte("{not json"), time.Minute)

	rules, err := sc.AcceptanceRules(ctx, scope)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("expected the store to serve past the corrupt entry, got %v", rules)
	}
	if source.acceptanceCalls != 1 {
		t.Errorf("expected 1 store call, got %d", source.acceptanceCalls)
	}
}
