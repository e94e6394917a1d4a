package schema

import "fmt"

// Rule is one conjunction of predicates over a scenario's outcome, used in
// both verification.accepted[] and verification.rejected[]. Every field
// present must hold for the rule to match; absent fields are not checked.
type Rule struct {
	Name           string   `json:"name,omitempty"`
	ExitCode       *int     `json:"exit_code,omitempty"`
	ExitSignal     *string  `json:"exit_signal,omitempty"`
	StdoutContains []string `json:"stdout_contains,omitempty"`
	StdoutRegex    []string `json:"stdout_regex,omitempty"`
	StderrContains []string `json:"stderr_contains,omitempty"`
	StderrRegex    []string `json:"stderr_regex,omitempty"`
}

// Normalization controls whitespace/ANSI handling when comparing baseline
// and variant output for behavior assertions.
type Normalization struct {
	StripANSI           bool `json:"strip_ansi"`
	NormalizeWhitespace bool `json:"normalize_whitespace"`
}

// PrereqDef names a category of precondition a surface item can carry
// (interactive, network, privilege, ...) along with the seed to apply when
// a scenario declares it and whether it should be skipped by auto-verify.
type PrereqDef struct {
	Category              string    `json:"category"`
	Description            string    `json:"description,omitempty"`
	Seed                   *SeedSpec `json:"seed,omitempty"`
	ExcludeFromAutoVerify  bool      `json:"exclude_from_auto_verify"`
}

// InvocationOverlay supplements a surface item's invocation hints with
// pack-authored knowledge the binary's help text didn't make explicit.
type InvocationOverlay struct {
	ValueExamples []string `json:"value_examples,omitempty"`
}

// SurfaceOverlay augments one surface item by id.
type SurfaceOverlay struct {
	Prereqs      []string           `json:"prereqs,omitempty"`
	Invocation   InvocationOverlay  `json:"invocation,omitempty"`
	RequiresArgv []string           `json:"requires_argv,omitempty"`
}

// Semantics is enrich/semantics.json: the pack-owned rules governing
// verification outcome classification, output normalization, and surface
// prerequisites. None of this is hardcoded in the engine (spec.md §9).
type Semantics struct {
	Verification struct {
		Accepted []Rule `json:"accepted"`
		Rejected []Rule `json:"rejected"`
	} `json:"verification"`
	Normalization   Normalization             `json:"normalization"`
	Prereqs         map[string]PrereqDef      `json:"prereqs,omitempty"`
	SurfaceOverlays map[string]SurfaceOverlay `json:"surface_overlays,omitempty"`
}

// OverlayFor returns the overlay for a surface id, or a zero value if none
// is defined.
func (s *Semantics) OverlayFor(surfaceID string) SurfaceOverlay {
	if s.SurfaceOverlays == nil {
		return SurfaceOverlay{}
	}
	return s.SurfaceOverlays[surfaceID]
}

// PrereqCategories resolves the categories of every prereq tag attached to a
// surface item (via its overlay), for the "interactive/network/privilege"
// auto-verify exclusion check in spec.md §4.4.
func (s *Semantics) PrereqCategories(tags []string) []string {
	var cats []string
	for _, tag := range tags {
		if def, ok := s.Prereqs[tag]; ok {
			cats = append(cats, def.Category)
		}
	}
	return cats
}

func (r Rule) empty() bool {
	return r.ExitCode == nil && r.ExitSignal == nil &&
		len(r.StdoutContains) == 0 && len(r.StdoutRegex) == 0 &&
		len(r.StderrContains) == 0 && len(r.StderrRegex) == 0
}

// Validate rejects a rule with no predicates at all (it would match
// everything, silently, which is never an author's intent).
func (s *Semantics) Validate() error {
	for i, r := range s.Verification.Accepted {
		if r.empty() {
			return fmt.Errorf("semantics.json: accepted rule %d has no predicates", i)
		}
	}
	for i, r := range s.Verification.Rejected {
		if r.empty() {
			return fmt.Errorf("semantics.json: rejected rule %d has no predicates", i)
		}
	}
	return nil
}

// LoadSemantics reads and validates enrich/semantics.json.
func LoadSemantics(path string) (*Semantics, error) {
	var s Semantics
	if err := LoadFile(path, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &s, nil
}
