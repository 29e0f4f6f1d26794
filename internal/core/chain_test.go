package core

import "testing"

func TestCanonicalIndex(t *testing.T) {
	if CanonicalIndex("ideate") != 0 {
		t.Fatalf("expected ideate at index 0")
	}
	if CanonicalIndex("ship") != len(CanonicalOrder)-1 {
		t.Fatalf("expected ship to be last")
	}
	if CanonicalIndex("not-a-command") != -1 {
		t.Fatalf("expected unknown command to return -1")
	}
}

func TestIronLaws_PassedAndGet(t *testing.T) {
	laws := IronLaws{TDD: true, BehaviorTests: true, NoLoops: false}
	if laws.Passed() != 2 {
		t.Fatalf("expected 2 passed laws, got %d", laws.Passed())
	}
	if !laws.Get(LawTDD) {
		t.Fatalf("expected law1_tdd to be true")
	}
	if laws.Get(LawDocsSynced) {
		t.Fatalf("expected law6_docs_synced to default false")
	}
}
