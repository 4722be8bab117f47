package beetsconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"tagflow/internal/beetsconfig"
	"tagflow/internal/config"
)

func TestImportDefaultsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `directory: ~/Music
import:
  group_albums: yes
  duplicate_action: Merge
match:
  strong_rec_thresh: 0.04
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	file, err := beetsconfig.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	base := config.Import{GroupAlbums: false, Autotag: true, ImportThreshold: 0.2, DuplicateAction: "skip"}
	got := file.ImportDefaults(base)

	if !got.GroupAlbums || !got.Autotag || got.ImportThreshold != 0.04 || got.DuplicateAction != "merge" {
		t.Fatalf("unexpected overlay: %+v", got)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	cases := []string{"", filepath.Join(t.TempDir(), "absent.yaml")}
	for _, path := range cases {
		file, err := beetsconfig.Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		base := config.Import{ImportThreshold: 0.3, DuplicateAction: "keep"}
		if got := file.ImportDefaults(base); got != base {
			t.Fatalf("Load(%q) changed defaults: %+v", path, got)
		}
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("import: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := beetsconfig.Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
