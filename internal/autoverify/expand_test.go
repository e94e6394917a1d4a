package autoverify

import (
	"testing"

	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestExpandBuildsArgvWithDefaultSuffix(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "--verbose", ContextArgv: nil, Forms: []string{"-v, --verbose"}},
	}}
	scenarios := Expand(surface, nil, schema.VerificationPolicy{}, nil)
	require.Len(t, scenarios, 1)
	require.Equal(t, "auto_verify::--verbose", scenarios[0].ID)
	require.Equal(t, []string{"--verbose", "--help"}, scenarios[0].Argv)
	require.Equal(t, []string{"--verbose"}, scenarios[0].Covers)
}

func TestExpandHonorsExplicitPrefixAndSuffix(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "push", ContextArgv: []string{"remote"}},
	}}
	policy := schema.VerificationPolicy{ArgvPrefix: []string{"git"}, ArgvSuffix: []string{"-h"}}
	scenarios := Expand(surface, nil, policy, nil)
	require.Equal(t, []string{"git", "remote", "push", "-h"}, scenarios[0].Argv)
}

func TestExpandSkipsExcludedQueueEntries(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "--danger"},
		{ID: "--safe"},
	}}
	queue := []schema.QueueEntry{
		{SurfaceID: "--danger", Intent: "exclude", Prereqs: []string{"destructive"}},
	}
	scenarios := Expand(surface, nil, schema.VerificationPolicy{}, queue)
	require.Len(t, scenarios, 1)
	require.Equal(t, "auto_verify::--safe", scenarios[0].ID)
}

func TestExpandSkipsPrereqExcludedFromAutoVerify(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "shell"},
	}}
	semantics := &schema.Semantics{
		Prereqs: map[string]schema.PrereqDef{
			"interactive": {Category: "interactive", ExcludeFromAutoVerify: true},
		},
		SurfaceOverlays: map[string]schema.SurfaceOverlay{
			"shell": {Prereqs: []string{"interactive"}},
		},
	}
	scenarios := Expand(surface, semantics, schema.VerificationPolicy{}, nil)
	require.Empty(t, scenarios)
}

func TestExpandAppliesPrereqSeed(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "load"}}}
	seed := &schema.SeedSpec{Entries: []schema.SeedEntry{{Path: "f.txt", Type: schema.SeedFile, Contents: "x"}}}
	semantics := &schema.Semantics{
		Prereqs: map[string]schema.PrereqDef{
			"needs_file": {Category: "fixture", Seed: seed},
		},
		SurfaceOverlays: map[string]schema.SurfaceOverlay{
			"load": {Prereqs: []string{"needs_file"}},
		},
	}
	scenarios := Expand(surface, semantics, schema.VerificationPolicy{}, nil)
	require.Len(t, scenarios, 1)
	require.Equal(t, seed, scenarios[0].Seed)
}

func TestExpandFiltersByKind(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "--flag", Forms: []string{"--flag"}},
		{ID: "subcmd", Forms: []string{"subcmd"}},
	}}
	onlyOptions := Expand(surface, nil, schema.VerificationPolicy{Kinds: []string{"option"}}, nil)
	require.Len(t, onlyOptions, 1)
	require.Equal(t, "auto_verify::--flag", onlyOptions[0].ID)
}

func TestExpandStableOrderBySurfaceID(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{
		{ID: "zeta"}, {ID: "alpha"}, {ID: "mid"},
	}}
	scenarios := Expand(surface, nil, schema.VerificationPolicy{}, nil)
	require.Equal(t, []string{"auto_verify::alpha", "auto_verify::mid", "auto_verify::zeta"},
		[]string{scenarios[0].ID, scenarios[1].ID, scenarios[2].ID})
}

func TestExcludedIncludesPrereqExclusions(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "shell"}, {ID: "normal"}}}
	semantics := &schema.Semantics{
		Prereqs: map[string]schema.PrereqDef{
			"interactive": {Category: "interactive", ExcludeFromAutoVerify: true},
		},
		SurfaceOverlays: map[string]schema.SurfaceOverlay{
			"shell": {Prereqs: []string{"interactive"}},
		},
	}
	excluded := Excluded(surface, semantics, schema.VerificationPolicy{}, nil)
	require.True(t, excluded["shell"])
	require.False(t, excluded["normal"])
}
