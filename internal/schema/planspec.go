package schema

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SeedKind enumerates the four seed entry types the runner understands.
type SeedKind string

const (
	SeedFile       SeedKind = "file"
	SeedDir        SeedKind = "dir"
	SeedSymlink    SeedKind = "symlink"
	SeedExecutable SeedKind = "executable"
)

// SeedEntry describes one filesystem object to materialize in a scenario's
// run directory before the binary executes.
type SeedEntry struct {
	Path     string   `json:"path"`
	Type     SeedKind `json:"type"`
	Contents string   `json:"contents,omitempty"` // file, executable
	Target   string   `json:"target,omitempty"`   // symlink
	Mode     string   `json:"mode,omitempty"`      // executable, octal string e.g. "0755"
}

// Validate rejects absolute paths and ".." components — the same rule
// pack.Resolve enforces for pack-relative paths, applied here to run-relative
// seed paths.
func (e SeedEntry) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("seed entry: empty path")
	}
	if filepath.IsAbs(e.Path) {
		return fmt.Errorf("seed entry %q: absolute path not allowed", e.Path)
	}
	for _, part := range strings.Split(filepath.ToSlash(e.Path), "/") {
		if part == ".." {
			return fmt.Errorf("seed entry %q: path escapes run directory", e.Path)
		}
	}
	switch e.Type {
	case SeedFile, SeedDir, SeedSymlink, SeedExecutable:
	default:
		return fmt.Errorf("seed entry %q: unknown type %q", e.Path, e.Type)
	}
	if e.Type == SeedSymlink && e.Target == "" {
		return fmt.Errorf("seed entry %q: symlink missing target", e.Path)
	}
	return nil
}

// SeedSpec is a named bundle of seed entries, referenced by scenarios and by
// prereq definitions.
type SeedSpec struct {
	Entries []SeedEntry `json:"entries"`
}

// Defaults are the scenario plan's pack-wide defaults, applied to every
// scenario unless overridden per-scenario.
type Defaults struct {
	TimeoutSeconds   float64           `json:"timeout_seconds"`
	Env              map[string]string `json:"env,omitempty"`
	Seed             *SeedSpec         `json:"seed,omitempty"`
	SnippetMaxLines  int               `json:"snippet_max_lines"`
	SnippetMaxBytes  int               `json:"snippet_max_bytes"`
	NoSandbox        bool              `json:"no_sandbox,omitempty"`
	NoStrace         bool              `json:"no_strace,omitempty"`
	NetMode          string            `json:"net_mode,omitempty"`
}

// DefaultDefaults returns the spec-mandated fallback defaults, used when a
// scenario plan omits a defaults field entirely.
func DefaultDefaults() Defaults {
	return Defaults{
		TimeoutSeconds:  3,
		SnippetMaxLines: 200,
		SnippetMaxBytes: 64 * 1024,
	}
}

// VerificationPolicy configures auto-verification expansion (C9).
type VerificationPolicy struct {
	Kinds              []string `json:"kinds"`
	MaxNewRunsPerApply int      `json:"max_new_runs_per_apply"`
	// ArgvPrefix/ArgvSuffix are spliced around context_argv++[surface.id] when
	// building a synthetic auto-verify scenario's argv (spec.md §4.4). The
	// engine never hardcodes CLI shape; an ArgvSuffix absent from plan.json
	// (nil) defaults to ["--help"] at expansion time, not here, while an
	// explicitly empty list decodes as non-nil and means no suffix. Encoding
	// drops an empty list (omitempty), so after a re-encode it reads back as
	// unset.
	ArgvPrefix []string `json:"argv_prefix,omitempty"`
	ArgvSuffix []string `json:"argv_suffix,omitempty"`
}

// QueueEntry excludes a surface item from auto-verification.
type QueueEntry struct {
	SurfaceID string   `json:"surface_id"`
	Intent    string   `json:"intent"` // always "exclude" today
	Prereqs   []string `json:"prereqs"`
	Reason    string   `json:"reason,omitempty"`
}

// Verification is the scenario plan's verification sub-object.
type Verification struct {
	Policy VerificationPolicy `json:"policy"`
	Queue  []QueueEntry       `json:"queue,omitempty"`
}

// Expectation is an optional structural assertion on a scenario's outcome,
// used by simple accept/reject checks that don't need the full rule
// language in semantics.json.
type Expectation struct {
	ExitCode *int `json:"exit_code,omitempty"`
}

// Scenario is one authored or auto-generated (argv, env, seed) recipe.
type Scenario struct {
	ID                 string            `json:"id"`
	CoverageTier       string            `json:"coverage_tier,omitempty"`
	Covers             []string          `json:"covers,omitempty"`
	Argv               []string          `json:"argv"`
	Scope              string            `json:"scope,omitempty"`
	BaselineScenarioID string            `json:"baseline_scenario_id,omitempty"`
	Assertions         []string          `json:"assertions,omitempty"`
	Seed               *SeedSpec         `json:"seed,omitempty"`
	Expect             *Expectation      `json:"expect,omitempty"`
	Stdin              string            `json:"stdin,omitempty"`
	Env                map[string]string `json:"env,omitempty"`
	TimeoutSeconds     *float64          `json:"timeout_seconds,omitempty"`
}

// IsHelpScenario reports whether this scenario's id marks it as a help
// scenario per the spec's naming convention (§3 invariants).
func (s Scenario) IsHelpScenario() bool {
	return hasPrefix(s.ID, "help::") || hasPrefix(s.ID, "help--")
}

// IsBehaviorScenario reports whether this scenario is a behavior-tier
// scenario requiring a baseline and assertions.
func (s Scenario) IsBehaviorScenario() bool {
	return s.CoverageTier == "behavior"
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Validate checks a scenario against the behavior-tier invariant from
// spec.md §3: behavior scenarios require a baseline id and non-empty
// assertions.
func (s Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario: empty id")
	}
	if s.IsBehaviorScenario() {
		if s.BaselineScenarioID == "" {
			return fmt.Errorf("scenario %q: behavior tier requires baseline_scenario_id", s.ID)
		}
		if len(s.Assertions) == 0 {
			return fmt.Errorf("scenario %q: behavior tier requires non-empty assertions", s.ID)
		}
	}
	if s.Seed != nil {
		for _, e := range s.Seed.Entries {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("scenario %q: %w", s.ID, err)
			}
		}
	}
	return nil
}

// ScenarioPlan is scenarios/plan.json.
type ScenarioPlan struct {
	Defaults     Defaults     `json:"defaults"`
	Verification Verification `json:"verification"`
	Scenarios    []Scenario   `json:"scenarios"`
}

// Validate runs per-scenario validation and rejects duplicate ids.
func (p *ScenarioPlan) Validate() error {
	seen := make(map[string]bool, len(p.Scenarios))
	for _, s := range p.Scenarios {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("scenario plan: duplicate scenario id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// ByID returns the scenario with the given id, if present.
func (p *ScenarioPlan) ByID(id string) (Scenario, bool) {
	for _, s := range p.Scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}

// LoadScenarioPlan reads and validates scenarios/plan.json.
func LoadScenarioPlan(path string) (*ScenarioPlan, error) {
	var p ScenarioPlan
	if err := LoadFile(path, &p); err != nil {
		return nil, err
	}
	if p.Defaults.TimeoutSeconds == 0 {
		d := DefaultDefaults()
		p.Defaults.TimeoutSeconds = d.TimeoutSeconds
	}
	if p.Defaults.SnippetMaxLines == 0 {
		p.Defaults.SnippetMaxLines = DefaultDefaults().SnippetMaxLines
	}
	if p.Defaults.SnippetMaxBytes == 0 {
		p.Defaults.SnippetMaxBytes = DefaultDefaults().SnippetMaxBytes
	}
	if err := p.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &p, nil
}
