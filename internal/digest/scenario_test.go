package digest

import (
	"testing"

	"bman/internal/schema"
)

func TestScenarioStableUnderSeedReorder(t *testing.T) {
	defaults := schema.DefaultDefaults()
	s1 := schema.Scenario{
		ID:   "s",
		Argv: []string{"--flag"},
		Seed: &schema.SeedSpec{Entries: []schema.SeedEntry{
			{Path: "a.txt", Type: schema.SeedFile, Contents: "A"},
			{Path: "b.txt", Type: schema.SeedFile, Contents: "B"},
		}},
	}
	s2 := s1
	s2.Seed = &schema.SeedSpec{Entries: []schema.SeedEntry{
		{Path: "b.txt", Type: schema.SeedFile, Contents: "B"},
		{Path: "a.txt", Type: schema.SeedFile, Contents: "A"},
	}}

	if Scenario(s1, defaults) != Scenario(s2, defaults) {
		t.Fatal("digest changed when seed entries were reordered")
	}
}

func TestScenarioChangesWithArgv(t *testing.T) {
	defaults := schema.DefaultDefaults()
	s1 := schema.Scenario{ID: "s", Argv: []string{"--flag"}}
	s2 := schema.Scenario{ID: "s", Argv: []string{"--other"}}
	if Scenario(s1, defaults) == Scenario(s2, defaults) {
		t.Fatal("expected different digests for different argv")
	}
}

func TestScenarioChangesWithEnvOverride(t *testing.T) {
	defaults := schema.DefaultDefaults()
	defaults.Env = map[string]string{"LC_ALL": "C"}
	s1 := schema.Scenario{ID: "s", Argv: []string{"x"}}
	s2 := schema.Scenario{ID: "s", Argv: []string{"x"}, Env: map[string]string{"LC_ALL": "C.UTF-8"}}
	if Scenario(s1, defaults) == Scenario(s2, defaults) {
		t.Fatal("expected env override to change digest")
	}
}

func TestScenarioDeterministic(t *testing.T) {
	defaults := schema.DefaultDefaults()
	s := schema.Scenario{ID: "s", Argv: []string{"--help"}}
	if Scenario(s, defaults) != Scenario(s, defaults) {
		t.Fatal("digest not deterministic across calls")
	}
}
