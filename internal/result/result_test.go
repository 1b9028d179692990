package result

import "testing"

func TestExitCode(t *testing.T) {
	cases := []struct {
		errors       uint64
		ignoreErrors bool
		want         int
	}{
		{0, false, 0},
		{1, false, 1},
		{1, true, 0},
		{0, true, 0},
	}
	for _, c := range cases {
		s := Summary{ErrorCount: c.errors}
		if got := s.ExitCode(c.ignoreErrors); got != c.want {
			t.Errorf("ExitCode(errors=%d, ignore=%v) = %d, want %d", c.errors, c.ignoreErrors, got, c.want)
		}
	}
}

func TestStringIncludesErrorCountOnlyWhenNonzero(t *testing.T) {
	clean := Summary{TotalSize: 100, TotalFiles: 1}
	if got := clean.String(); containsSubstring(got, "error") {
		t.Errorf("expected clean summary to omit error mention, got %q", got)
	}

	dirty := Summary{ErrorCount: 3}
	if got := dirty.String(); !containsSubstring(got, "3 error") {
		t.Errorf("expected dirty summary to mention error count, got %q", got)
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
