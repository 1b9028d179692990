package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrien1018/metarclone/internal/mlog"
)

type fakeRawStore struct {
	store   map[string][]byte
	failPut bool
}

func newFakeRawStore() *fakeRawStore {
	return &fakeRawStore{store: make(map[string][]byte)}
}

func (f *fakeRawStore) PutRaw(uri string, data []byte) bool {
	if f.failPut {
		return false
	}
	f.store[uri] = append([]byte(nil), data...)
	return true
}

func (f *fakeRawStore) GetRaw(uri string) ([]byte, bool) {
	d, ok := f.store[uri]
	return d, ok
}

func TestPathDefaultsToRemoteMetaFile(t *testing.T) {
	isRemote, loc := Path("remote:bucket/dir", "_METARCLONE_", "")
	if !isRemote {
		t.Error("expected default metadata location to be remote")
	}
	if loc != "remote:bucket/dir/_METARCLONE_META.json.gz" {
		t.Errorf("unexpected location: %q", loc)
	}
}

func TestPathOverrideRemoteDetection(t *testing.T) {
	cases := []struct {
		override string
		remote   bool
	}{
		{"remote:path/to/meta.json.gz", true},
		{"C:/Users/foo/meta.json.gz", false},
		{"C:\\Users\\foo\\meta.json.gz", false},
		{"/local/path/meta.json.gz", false},
	}
	for _, c := range cases {
		isRemote, loc := Path("remote:bucket", "_METARCLONE_", c.override)
		if isRemote != c.remote {
			t.Errorf("Path override %q: isRemote = %v, want %v", c.override, isRemote, c.remote)
		}
		if loc != c.override {
			t.Errorf("Path override %q: location = %q, want unchanged", c.override, loc)
		}
	}
}

func TestSaveLoadRoundTripRemote(t *testing.T) {
	store := newFakeRawStore()
	doc := &Document{
		Version:  1,
		Meta:     NewDirNode(),
		RootName: "_METARCLONE_ROOT.tar.gz",
		Checksum: ChecksumConfigRecord{HashFunction: "sha1"},
	}
	log := mlog.New(0)
	if err := Save(store, doc, "remote:bucket/dir", "_METARCLONE_", "", false, log); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(store, "remote:bucket/dir", "_METARCLONE_", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded document, got nil")
	}
	if loaded.RootName != doc.RootName {
		t.Errorf("RootName = %q, want %q", loaded.RootName, doc.RootName)
	}
}

func TestLoadMissingRemoteReturnsAbsent(t *testing.T) {
	store := newFakeRawStore()
	doc, err := Load(store, "remote:bucket/dir", "_METARCLONE_", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Fatal("expected nil document for a missing remote object")
	}
}

func TestSaveLoadRoundTripLocal(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "meta.json.gz")
	store := newFakeRawStore()
	doc := &Document{
		Version:  1,
		Meta:     NewDirNode(),
		RootName: "_METARCLONE_ROOT.tar.gz",
	}
	log := mlog.New(0)
	if err := Save(store, doc, "", "_METARCLONE_", override, false, log); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(override); err != nil {
		t.Fatalf("expected metadata file to exist: %v", err)
	}

	loaded, err := Load(store, "", "_METARCLONE_", override)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.RootName != doc.RootName {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadMissingLocalReturnsAbsent(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "does-not-exist.json.gz")
	store := newFakeRawStore()
	doc, err := Load(store, "", "_METARCLONE_", override)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Fatal("expected nil document for a missing local file")
	}
}

func TestLoadCorruptDataReturnsAbsent(t *testing.T) {
	store := newFakeRawStore()
	store.store["remote:bucket/dir/_METARCLONE_META.json.gz"] = []byte("not gzip data")
	doc, err := Load(store, "remote:bucket/dir", "_METARCLONE_", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Fatal("expected nil document for corrupt data")
	}
}

func TestSaveFallsBackToTempFileOnRemoteFailure(t *testing.T) {
	store := newFakeRawStore()
	store.failPut = true
	doc := &Document{Version: 1, Meta: NewDirNode(), RootName: "_METARCLONE_ROOT.tar.gz"}
	log := mlog.New(0)
	if err := Save(store, doc, "remote:bucket/dir", "_METARCLONE_", "", false, log); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "metarclone-metadata-*.json.gz"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a fallback metadata file to be written")
	}
	for _, m := range matches {
		os.Remove(m)
	}
}

func TestSaveDryRunWritesNothing(t *testing.T) {
	store := newFakeRawStore()
	doc := &Document{Version: 1, Meta: NewDirNode(), RootName: "_METARCLONE_ROOT.tar.gz"}
	log := mlog.New(0)
	if err := Save(store, doc, "remote:bucket/dir", "_METARCLONE_", "", true, log); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if len(store.store) != 0 {
		t.Fatalf("expected no remote writes during a dry run, got %v", store.store)
	}
}
