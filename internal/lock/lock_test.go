package lock

import (
	"os"
	"path/filepath"
	"testing"

	"bman/internal/pack"
)

func newTestPack(t *testing.T) *pack.Pack {
	t.Helper()
	root := t.TempDir()
	p, err := pack.Open(root)
	if err != nil {
		t.Fatalf("pack.Open: %v", err)
	}
	if err := pack.EnsureDirs(p); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	write := func(rel, content string) {
		full, err := pack.Resolve(p, rel)
		if err != nil {
			t.Fatalf("resolve %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	write(pack.ConfigPath, `{"requirements":["surface"],"verification_tier":"accepted","usage_lens_template":"t"}`)
	write(pack.ScenarioPlanPath, `{"defaults":{"timeout_seconds":3,"snippet_max_lines":10,"snippet_max_bytes":100},"verification":{"policy":{"kinds":[],"max_new_runs_per_apply":5}},"scenarios":[]}`)
	write(pack.SemanticsPath, `{"verification":{"accepted":[],"rejected":[]},"normalization":{"strip_ansi":false,"normalize_whitespace":false}}`)
	return p
}

func TestComputeAndStale(t *testing.T) {
	p := newTestPack(t)
	files, err := InputFiles(p)
	if err != nil {
		t.Fatalf("InputFiles: %v", err)
	}

	l, err := Compute(p, files, 1000)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := Write(p, l); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stale, changed, err := Stale(p, loaded, files)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if stale {
		t.Fatalf("expected fresh lock, got stale files: %v", changed)
	}

	// Mutate config.json; lock should now be stale.
	full, _ := pack.Resolve(p, pack.ConfigPath)
	if err := os.WriteFile(full, []byte(`{"requirements":["man"],"verification_tier":"accepted","usage_lens_template":"t"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	stale, changed, err = Stale(p, loaded, files)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if !stale {
		t.Fatal("expected stale after config mutation")
	}
	if len(changed) != 1 || changed[0] != pack.ConfigPath {
		t.Fatalf("expected config.json flagged changed, got %v", changed)
	}
}

func TestStaleWithNoLock(t *testing.T) {
	p := newTestPack(t)
	files, _ := InputFiles(p)
	stale, changed, err := Stale(p, nil, files)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if !stale || len(changed) != len(files) {
		t.Fatalf("expected all files stale with no lock, got stale=%v changed=%v", stale, changed)
	}
}

func TestInputFilesIncludesQueries(t *testing.T) {
	p := newTestPack(t)
	qdir, _ := pack.Resolve(p, pack.QueriesDir)
	if err := os.WriteFile(filepath.Join(qdir, "usage.sql"), []byte("select 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := InputFiles(p)
	if err != nil {
		t.Fatalf("InputFiles: %v", err)
	}
	found := false
	for _, f := range files {
		if f == "queries/usage.sql" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected queries/usage.sql in %v", files)
	}
}
