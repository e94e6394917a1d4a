// Package pack implements the canonical doc-pack directory contract: path
// resolution, the subpath table every other component uses, and the small
// amount of file I/O that doesn't belong to a specific schema (existence
// checks, directory creation for init).
package pack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned by Open when the root directory does not exist.
var ErrNotExist = errors.New("pack: doc-pack root does not exist")

// Pack is a rooted doc-pack directory. Its identity is its absolute path.
type Pack struct {
	root string
}

// Open resolves root to an absolute path and verifies it exists and is a
// directory. It does not create anything; use EnsureDirs for that.
func Open(root string) (*Pack, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("pack: resolve root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("pack: stat root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pack: root %q is not a directory", abs)
	}
	return &Pack{root: abs}, nil
}

// Root returns the pack's absolute root path.
func (p *Pack) Root() string { return p.root }

// Canonical subpaths, relative to the pack root. These are the only path
// strings any other package should hardcode; everything else derives a path
// by calling Resolve with one of these (or a value built from one, such as
// a scenario id under ScenarioEvidenceDir).
const (
	ConfigPath        = "enrich/config.json"
	SemanticsPath     = "enrich/semantics.json"
	ScenarioPlanPath  = "scenarios/plan.json"
	QueriesDir        = "queries"
	ScenarioEvidenceDir = "inventory/scenarios"
	EvidenceIndexPath = "inventory/evidence_index.json"
	SurfaceInventoryPath = "inventory/surface.json"
	LedgerPath        = "verification_ledger.json"
	ManDir            = "derived/man"
	LockPath          = "enrich/lock.json"
	PlanOutPath       = "enrich/plan.out.json"
	ReportPath        = "enrich/report.json"
	HistoryPath       = "enrich/history.jsonl"
	TxnDir            = "enrich/txns"
	LogsDir           = "enrich/logs"

	// LMPromptPath is an optional pack file: when present, it customizes the
	// preamble and guidance bullets apply --lm sends ahead of a next
	// action's own reason/content. Its absence is not an error — the
	// authoring prompt falls back to the reason/content alone.
	LMPromptPath = "enrich/lm_prompt.yaml"
)

// Resolve turns a pack-relative path into an absolute path, rejecting any
// input that is absolute or contains a ".." component. Callers must pass the
// uncleaned relative path — cleaning happens only after the rejection check,
// so "a/../../etc/passwd" cannot sneak past by relying on filepath.Clean to
// normalize it first.
func Resolve(p *Pack, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("pack: empty relative path")
	}
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("pack: path %q contains a NUL byte", rel)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("pack: path %q must be relative", rel)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return "", fmt.Errorf("pack: path %q escapes the pack root", rel)
		}
	}
	return filepath.Join(p.root, filepath.FromSlash(rel)), nil
}

// EnsureDirs creates the directory skeleton a fresh doc-pack needs, used by
// `bman init`. It is idempotent.
func EnsureDirs(p *Pack) error {
	dirs := []string{
		"enrich",
		"enrich/logs",
		"enrich/txns",
		"scenarios",
		"queries",
		"inventory",
		ScenarioEvidenceDir,
		"derived",
		ManDir,
	}
	for _, d := range dirs {
		full, err := Resolve(p, d)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("pack: create %s: %w", d, err)
		}
	}
	return nil
}

// Exists reports whether a pack-relative path exists.
func Exists(p *Pack, rel string) (bool, error) {
	full, err := Resolve(p, rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ScenarioEvidencePath returns the canonical evidence file path for a
// scenario id.
func ScenarioEvidencePath(id string) string {
	return filepath.ToSlash(filepath.Join(ScenarioEvidenceDir, sanitizeID(id)+".json"))
}

// sanitizeID defends the evidence-file naming scheme against a scenario id
// that was validated only as a non-empty string upstream; it does not change
// the id stored in evidence, only the filename derived from it.
func sanitizeID(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "__")
	return replacer.Replace(id)
}
