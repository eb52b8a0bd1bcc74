package swarm

import (
	"reflect"
	"testing"
	"time"
)

func TestBuildCandidatesRarestFirstDeterministic(t *testing.T) {
	snapshot := map[string][]int{
		"A": {0, 1, 2, 3},
		"B": {3},
		"C": {0, 3},
	}

	got := BuildCandidates(snapshot, map[int]struct{}{}, map[int]struct{}{}, 4)
	want := []int{1, 2, 0, 3}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildCandidates() = %v, want %v", got, want)
	}
}

func TestBuildCandidatesExcludesOwnedAndInflight(t *testing.T) {
	snapshot := map[string][]int{"A": {0, 1, 2}}
	owned := map[int]struct{}{0: {}}
	inflight := map[int]struct{}{1: {}}

	got := BuildCandidates(snapshot, owned, inflight, 3)
	want := []int{2}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildCandidates() = %v, want %v", got, want)
	}
}

func TestBuildCandidatesSkipsPiecesWithNoProvider(t *testing.T) {
	snapshot := map[string][]int{"A": {0}}
	got := BuildCandidates(snapshot, map[int]struct{}{}, map[int]struct{}{}, 3)
	want := []int{0}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildCandidates() = %v, want %v", got, want)
	}
}

func TestPickProviderPrefersSeeds(t *testing.T) {
	snapshot := map[string][]int{
		"seed":    {0, 1, 2},
		"leecher": {0},
	}

	got, ok := PickProvider(snapshot, 0, 3, func(n int) int { return 0 })
	if !ok {
		t.Fatal("PickProvider() ok = false, want true")
	}
	if got != "seed" {
		t.Fatalf("PickProvider() = %q, want seed preferred over leecher", got)
	}
}

func TestPickProviderFallsBackToNonSeeds(t *testing.T) {
	snapshot := map[string][]int{"leecher": {0}}

	got, ok := PickProvider(snapshot, 0, 10, func(n int) int { return 0 })
	if !ok || got != "leecher" {
		t.Fatalf("PickProvider() = (%q, %v), want (leecher, true)", got, ok)
	}
}

func TestPickProviderNoOwnerReturnsFalse(t *testing.T) {
	snapshot := map[string][]int{"A": {1, 2}}

	_, ok := PickProvider(snapshot, 0, 2, func(n int) int { return 0 })
	if ok {
		t.Fatal("PickProvider() ok = true, want false for unowned piece")
	}
}

func TestParallelismControllerEmptySnapshotYieldsBase(t *testing.T) {
	c := NewParallelismController(5, 5, 2, 100, 5*time.Second)
	now := time.Now()

	target := c.Target(map[string][]int{}, "self", 10, now)
	if target != 5 {
		t.Fatalf("Target() = %d, want 5 (BASE)", target)
	}
}

func TestParallelismControllerFormulaAndCap(t *testing.T) {
	c := NewParallelismController(5, 5, 2, 100, 5*time.Second)
	now := time.Now()

	snapshot := map[string][]int{
		"self":   {0, 1},
		"seed1":  {0, 1, 2, 3},
		"seed2":  {0, 1, 2, 3},
		"leech1": {0},
	}
	// pieceCount = 4: seed1, seed2 are seeds; leech1 is a leecher; self excluded.
	target := c.Target(snapshot, "self", 4, now)
	want := 5 + 2*5 + 1*2 // 17
	if target != want {
		t.Fatalf("Target() = %d, want %d", target, want)
	}

	// The same snapshot against a cap of 10 is clamped to the cap.
	capped := NewParallelismController(5, 5, 2, 10, 5*time.Second)
	if got := capped.Target(snapshot, "self", 4, now); got != 10 {
		t.Fatalf("Target() with cap 10 = %d, want 10", got)
	}
}

func TestParallelismControllerRecomputesAtMostOncePerInterval(t *testing.T) {
	c := NewParallelismController(5, 5, 2, 100, 5*time.Second)
	now := time.Now()

	first := c.Target(map[string][]int{}, "self", 4, now)
	snapshot := map[string][]int{
		"seed1": {0, 1, 2, 3},
	}
	// Within the recompute interval, the stale target still governs.
	second := c.Target(snapshot, "self", 4, now.Add(1*time.Second))
	if second != first {
		t.Fatalf("Target() recomputed early: got %d, want stale %d", second, first)
	}

	third := c.Target(snapshot, "self", 4, now.Add(6*time.Second))
	if third == first {
		t.Fatal("Target() did not recompute after interval elapsed")
	}
}
