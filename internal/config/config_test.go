package config

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"100", 100 * 1024, false},
		{"100b", 100, false},
		{"10K", 10 * 1024, false},
		{"10k", 10 * 1024, false},
		{"5M", 5 * 1024 * 1024, false},
		{"1G", 1024 * 1024 * 1024, false},
		{"1T", 1024 * 1024 * 1024 * 1024, false},
		{"1.5M", uint64(1.5 * 1024 * 1024), false},
		{"", 0, true},
		{"10x", 0, true},
		{"-5", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDeduceCompressionSuffix(t *testing.T) {
	cases := []struct {
		compression string
		wantSuffix  string
		wantOK      bool
	}{
		{"gzip", ".gz", true},
		{"pigz -9", ".gz", true},
		{"zstd", ".zst", true},
		{"xz", ".xz", true},
		{"none", "", true},
		{"", "", true},
		{"lz4", "", false},
	}
	for _, c := range cases {
		cfg := NewUploadConfig()
		cfg.Compression = c.compression
		ok := cfg.DeduceCompressionSuffix()
		if ok != c.wantOK {
			t.Errorf("DeduceCompressionSuffix(%q) ok = %v, want %v", c.compression, ok, c.wantOK)
			continue
		}
		if ok && cfg.CompressionSuffix != c.wantSuffix {
			t.Errorf("DeduceCompressionSuffix(%q) suffix = %q, want %q", c.compression, cfg.CompressionSuffix, c.wantSuffix)
		}
	}
}

func TestSetIncludeListAddsAllAncestors(t *testing.T) {
	cfg := NewUploadConfig()
	cfg.SetIncludeList("/root/data", []string{"a/b/c"})

	if !cfg.IncludeList["/root/data/a/b/c"] {
		t.Errorf("expected the included path to be recorded as an include root")
	}
	for _, w := range []string{"/root/data/a/b", "/root/data/a", "/root/data"} {
		isRoot, ok := cfg.IncludeList[w]
		if !ok {
			t.Errorf("expected include list to contain ancestor %q", w)
		} else if isRoot {
			t.Errorf("expected ancestor %q to not be an include root", w)
		}
	}
}

func TestSetIncludeListKeepsRootOnOverlap(t *testing.T) {
	cfg := NewUploadConfig()
	cfg.SetIncludeList("/root/data", []string{"a/b", "a"})
	if !cfg.IncludeList["/root/data/a"] {
		t.Error("expected a path that is both included and an ancestor to stay an include root")
	}
}

func TestSetGroupingOrder(t *testing.T) {
	cfg := NewUploadConfig()
	for _, order := range []string{"size", "name", "mtime", "ctime"} {
		if err := cfg.SetGroupingOrder(order); err != nil {
			t.Errorf("expected grouping order %q to be accepted: %v", order, err)
		}
	}
	if err := cfg.SetGroupingOrder("inode"); err == nil {
		t.Error("expected an unknown grouping order to be rejected")
	}
}

func TestSetExcludeListDoesNotAddAncestors(t *testing.T) {
	cfg := NewUploadConfig()
	cfg.SetExcludeList("/root/data", []string{"a/b/c"})

	if len(cfg.ExcludeList) != 1 {
		t.Fatalf("expected exactly one excluded path, got %d", len(cfg.ExcludeList))
	}
	if _, ok := cfg.ExcludeList["/root/data/a/b/c"]; !ok {
		t.Errorf("expected exclude list to contain the full path")
	}
}

func TestSetReservedPrefixRejectsLowercase(t *testing.T) {
	var c SyncConfig
	if err := c.SetReservedPrefix("abc"); err == nil {
		t.Error("expected lowercase prefix to be rejected")
	}
	if err := c.SetReservedPrefix("ABC_1"); err != nil {
		t.Errorf("expected valid prefix to be accepted: %v", err)
	}
}

func TestSetHashFunctionUnknown(t *testing.T) {
	var c SyncConfig
	if err := c.SetHashFunction("md7"); err == nil {
		t.Error("expected unknown hash name to be rejected")
	}
	if err := c.SetHashFunction("sha256"); err != nil {
		t.Errorf("expected sha256 to be accepted: %v", err)
	}
}

func TestUploadConfigValidate(t *testing.T) {
	cfg := NewUploadConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	cfg.CompressionSuffix = "bad/suffix"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid compression suffix to fail validation")
	}
}
