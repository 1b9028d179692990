package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrien1018/metarclone/internal/codec"
	"github.com/adrien1018/metarclone/internal/config"
	"github.com/adrien1018/metarclone/internal/metadata"
	"github.com/adrien1018/metarclone/internal/mlog"
)

type fakeTransport struct {
	unpacked []string
	onUnpack func(destDir string)
}

func (f *fakeTransport) PackAndUpload(string, []string, string, uint64) (uint64, bool) {
	return 0, true
}

func (f *fakeTransport) DownloadAndUnpack(src, destDir string) (uint64, bool) {
	f.unpacked = append(f.unpacked, src)
	if f.onUnpack != nil {
		f.onUnpack(destDir)
	}
	return 10, true
}

func (f *fakeTransport) PutRaw(string, []byte) bool   { return true }
func (f *fakeTransport) GetRaw(string) ([]byte, bool) { return nil, false }
func (f *fakeTransport) Delete(string, bool) bool     { return true }

func TestRunEmptyTreeCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	local := filepath.Join(root, "out")
	doc := &metadata.Document{Meta: metadata.NewDirNode(), RootName: "_METARCLONE_ROOT.tar.gz"}
	tr := &fakeTransport{}
	log := mlog.New(0)
	cfg := config.NewDownloadConfig()

	res := Run(local, "remote:bucket", doc, &cfg, tr, log)
	if res.ErrorCount != 0 {
		t.Fatalf("expected no errors, got %d", res.ErrorCount)
	}
	if _, err := os.Stat(local); err != nil {
		t.Fatalf("expected directory to be created: %v", err)
	}
	if len(tr.unpacked) != 1 || tr.unpacked[0] != "remote:bucket/_METARCLONE_ROOT.tar.gz" {
		t.Errorf("expected exactly one skeleton unpack, got %v", tr.unpacked)
	}
}

func TestRunRecursesIntoChildren(t *testing.T) {
	root := t.TempDir()
	local := filepath.Join(root, "out")

	child := metadata.NewDirNode()
	child.Files["_METARCLONE_00000.tar.gz"] = &metadata.PackEntry{List: []string{"ME"}}
	doc := &metadata.Document{Meta: metadata.NewDirNode(), RootName: "_METARCLONE_ROOT.tar.gz"}
	doc.Meta.Children[codec.EncodeChild([]byte("sub"))] = child

	tr := &fakeTransport{}
	log := mlog.New(0)
	cfg := config.NewDownloadConfig()

	res := Run(local, "remote:bucket", doc, &cfg, tr, log)
	if res.ErrorCount != 0 {
		t.Fatalf("expected no errors, got %d", res.ErrorCount)
	}
	if res.TransferFiles != 2 {
		t.Errorf("expected 2 pack transfers (child pack + skeleton), got %d", res.TransferFiles)
	}
	wantSubDir := filepath.Join(local, "sub")
	found := false
	for _, u := range tr.unpacked {
		if u == "remote:bucket/"+codec.EncodeChild([]byte("sub"))+"/_METARCLONE_00000.tar.gz" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected child pack to be unpacked under %s, got %v", wantSubDir, tr.unpacked)
	}
}

func TestRestoreHardLinksRelinksMembers(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "x"), []byte("shared"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "y"), []byte("different-copy"), 0o644); err != nil {
		t.Fatal(err)
	}

	doc := &metadata.Document{
		Meta:     metadata.NewDirNode(),
		RootName: "_METARCLONE_ROOT.tar.gz",
		HardLinks: [][]string{
			{codec.EncodeChild([]byte("x")), codec.EncodeChild([]byte("y"))},
		},
	}
	tr := &fakeTransport{}
	log := mlog.New(0)
	res := &Result{}
	planner := &Planner{Transport: tr, Log: log}
	planner.restoreHardLinks(root, doc, res)

	if res.ErrorCount != 0 {
		t.Fatalf("expected no errors, got %d", res.ErrorCount)
	}
	xInfo, err := os.Stat(filepath.Join(root, "x"))
	if err != nil {
		t.Fatal(err)
	}
	yInfo, err := os.Stat(filepath.Join(root, "y"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(xInfo, yInfo) {
		t.Error("expected x and y to share an inode after hard-link restoration")
	}
}
