package schema

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var c Config
	err := Decode(strings.NewReader(`{"requirements":["surface"],"verification_tier":"accepted","usage_lens_template":"x","bogus":1}`), &c)
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	c := Config{
		Requirements:      []Requirement{RequireSurface, RequireMan},
		VerificationTier:  TierBehavior,
		UsageLensTemplate: "templates/usage.tmpl",
	}
	data, err := Canonical(c)
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	var decoded Config
	if err := Decode(bytes.NewReader(data), &decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data2, err := Canonical(decoded)
	if err != nil {
		t.Fatalf("Canonical(2): %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("round trip not byte-stable:\n%s\nvs\n%s", data, data2)
	}
}

func TestLoadFileWrapsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	var c Config
	err := LoadFile(path, &c)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	se, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if se.Path != path {
		t.Fatalf("expected path %q, got %q", path, se.Path)
	}
}

func TestConfigValidateRejectsUnknownRequirement(t *testing.T) {
	c := Config{BinaryPath: "/bin/true", Requirements: []Requirement{"bogus"}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error")
	}
}

func TestScenarioValidateBehaviorTierInvariant(t *testing.T) {
	s := Scenario{ID: "variant-d", CoverageTier: "behavior", Argv: []string{"-d", "a"}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected missing baseline/assertions to fail")
	}
	s.BaselineScenarioID = "baseline"
	s.Assertions = []string{"outputs_differ"}
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid scenario, got %v", err)
	}
}

func TestScenarioIsHelpScenario(t *testing.T) {
	for _, id := range []string{"help::root", "help--root"} {
		if !(Scenario{ID: id}).IsHelpScenario() {
			t.Errorf("expected %q to be a help scenario", id)
		}
	}
	if (Scenario{ID: "auto_verify::foo"}).IsHelpScenario() {
		t.Error("expected auto_verify scenario to not be a help scenario")
	}
}

func TestSeedEntryValidate(t *testing.T) {
	bad := SeedEntry{Path: "a", Type: SeedSymlink}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected symlink without target to fail")
	}
	good := SeedEntry{Path: "a", Type: SeedSymlink, Target: "b"}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSemanticsValidateRejectsEmptyRule(t *testing.T) {
	s := Semantics{}
	s.Verification.Accepted = []Rule{{}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected empty rule to fail validation")
	}
}
