package schema

import "fmt"

// VerificationTier is the target depth of verification a pack commits to.
type VerificationTier string

const (
	TierAccepted VerificationTier = "accepted"
	TierBehavior VerificationTier = "behavior"
)

// Requirement names a class of deliverable the pack must produce before
// decision=complete. Subset of {"surface", "man", "verification"}.
type Requirement string

const (
	RequireSurface      Requirement = "surface"
	RequireMan          Requirement = "man"
	RequireVerification Requirement = "verification"
)

// Config is enrich/config.json.
type Config struct {
	Requirements      []Requirement    `json:"requirements"`
	VerificationTier  VerificationTier `json:"verification_tier"`
	UsageLensTemplate string           `json:"usage_lens_template"`
	StuckCycleLimit   int              `json:"stuck_cycle_limit,omitempty"`

	// BinaryPath is the target binary `bman init --binary` recorded. It is
	// not part of spec.md's authoritative field list, but render_surface
	// needs a path to re-invoke internal/binarylens.Inspect on every apply
	// cycle, and nothing else in the pack persists it past init time.
	BinaryPath string `json:"binary_path"`
}

// Validate checks the invariants strict decoding can't express: a non-empty
// binary_path, requirements drawn from the closed set, and a recognized (or
// empty) tier. UsageLensTemplate is not checked here; path traversal in it
// is caught later by pack.Resolve.
func (c *Config) Validate() error {
	if c.BinaryPath == "" {
		return fmt.Errorf("config.json: binary_path is required")
	}
	for _, r := range c.Requirements {
		switch r {
		case RequireSurface, RequireMan, RequireVerification:
		default:
			return fmt.Errorf("config.json: unknown requirement %q", r)
		}
	}
	switch c.VerificationTier {
	case TierAccepted, TierBehavior, "":
	default:
		return fmt.Errorf("config.json: unknown verification_tier %q", c.VerificationTier)
	}
	return nil
}

// Requires reports whether r is in the requirement set.
func (c *Config) Requires(r Requirement) bool {
	for _, x := range c.Requirements {
		if x == r {
			return true
		}
	}
	return false
}

// EffectiveStuckCycleLimit returns the configured limit or the pack-owned
// default of 3 consecutive no-progress applies.
func (c *Config) EffectiveStuckCycleLimit() int {
	if c.StuckCycleLimit > 0 {
		return c.StuckCycleLimit
	}
	return 3
}

// LoadConfig reads and validates enrich/config.json from an absolute path.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if err := LoadFile(path, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &c, nil
}
