package upload

import "testing"

func setContains(sets [][]string, members ...string) bool {
	for _, s := range sets {
		if len(s) != len(members) {
			continue
		}
		seen := make(map[string]bool, len(s))
		for _, m := range s {
			seen[m] = true
		}
		all := true
		for _, m := range members {
			if !seen[m] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func TestDisjointSetUnionGroupsTransitively(t *testing.T) {
	d := newDisjointSet()
	d.union("a", "b")
	d.union("b", "c")
	d.union("x", "y")

	sets := d.sets()
	if len(sets) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(sets), sets)
	}
	if !setContains(sets, "a", "b", "c") {
		t.Errorf("expected a group {a,b,c}, got %v", sets)
	}
	if !setContains(sets, "x", "y") {
		t.Errorf("expected a group {x,y}, got %v", sets)
	}
}

func TestDisjointSetEmpty(t *testing.T) {
	d := newDisjointSet()
	if sets := d.sets(); len(sets) != 0 {
		t.Errorf("expected no groups, got %v", sets)
	}
}
