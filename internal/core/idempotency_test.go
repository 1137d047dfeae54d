package core_test

import (
	"SparkLedger/internal/core"
	"errors"
	"testing"
)

type fakeDB struct {
	applied map[string]bool
	err     error
	calls   int
}

func (f *fakeDB) IsDuplicate(kind, commandID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.applied[core.CompositeKey(kind, commandID)], nil
}

// ============================================================================
// Test: Two-Tier Deduplication
// ============================================================================

func TestIdempotencyChecker_Tiers(t *testing.T) {
	db := &fakeDB{applied: map[string]bool{"earn:old": true}}
	ic := core.NewIdempotencyChecker(10, db, nil)

	if ic.IsDuplicate("earn", "new") {
		t.Error("unseen command reported as duplicate")
	}
	ic.MarkProcessed("earn", "new")
	if !ic.IsDuplicate("earn", "new") {
		t.Error("processed command not found in LRU")
	}

	if !ic.IsDuplicate("earn", "old") {
		t.Error("postgres tier missed an applied command")
	}
	calls := db.calls
	if !ic.IsDuplicate("earn", "old") {
		t.Error("second lookup of postgres hit should be a duplicate")
	}
	if db.calls != calls {
		t.Errorf("postgres hit should be cached: got %d calls, want %d", db.calls, calls)
	}

	lru, pg := ic.GetMetrics().GetDuplicates("earn")
	if lru != 2 || pg != 1 {
		t.Errorf("duplicates: got lru=%d postgres=%d, want 2 and 1", lru, pg)
	}
}

func TestIdempotencyChecker_KindScopesKey(t *testing.T) {
	ic := core.NewIdempotencyChecker(10, nil, nil)
	ic.MarkProcessed("earn", "c1")
	if ic.IsDuplicate("spend", "c1") {
		t.Error("same id under another kind must not be a duplicate")
	}
}

func TestIdempotencyChecker_DBErrorIsNotDuplicate(t *testing.T) {
	ic := core.NewIdempotencyChecker(10, &fakeDB{err: errors.New("down")}, nil)
	if ic.IsDuplicate("earn", "c1") {
		t.Error("db error should fall through as not duplicate")
	}
	if got := ic.GetMetrics().GetTier2Errors(); got != 1 {
		t.Errorf("tier2 errors: got %d, want 1", got)
	}
}

func TestIdempotencyLRU_EvictsOldestAndRoundTrips(t *testing.T) {
	lru := core.NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Contains("a") // a is now most recent
	lru.Add("c")

	if lru.Contains("b") {
		t.Error("b should have been evicted")
	}
	if got := lru.Evictions(); got != 1 {
		t.Errorf("evictions: got %d, want 1", got)
	}

	keys := lru.GetAllKeys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Fatalf("keys: got %v, want [a c]", keys)
	}

	warmed := core.NewIdempotencyLRU(2)
	warmed.WarmFromKeys(keys)
	if got := warmed.GetAllKeys(); got[0] != "a" || got[1] != "c" {
		t.Errorf("warm order: got %v, want [a c]", got)
	}
}

// ============================================================================
// Test: Timeline
// ============================================================================

func TestTimeline_ClampsRegressions(t *testing.T) {
	tl := core.NewTimeline(1_000)

	if got := tl.Peek(500); got != 1_000 {
		t.Errorf("peek earlier: got %d, want 1000", got)
	}
	tl.Commit(500, tl.Peek(500))
	if got := tl.Regressions(); got != 1 {
		t.Errorf("regressions: got %d, want 1", got)
	}

	tl.Commit(2_000, tl.Peek(2_000))
	if got := tl.Last(); got != 2_000 {
		t.Errorf("last: got %d, want 2000", got)
	}
	if got := tl.Regressions(); got != 1 {
		t.Errorf("forward commit counted as regression: got %d", got)
	}
}
