package ledgerfold

import (
	"context"
	"testing"

	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func planWithScenarios(scenarios ...schema.Scenario) *schema.ScenarioPlan {
	return &schema.ScenarioPlan{Scenarios: scenarios}
}

func TestFoldAcceptedVerifiedFromRuleMatch(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--verbose"}}}
	plan := planWithScenarios(schema.Scenario{ID: "help::root", Covers: []string{"--verbose"}})
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}

	evidence := map[string]*schema.ScenarioResult{
		"help::root": {ScenarioID: "help::root", ExitCode: 0},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: sem, Evidence: evidence,
	})
	require.NoError(t, err)
	require.Len(t, ledger.Rows, 1)
	require.Equal(t, schema.AcceptedVerified, ledger.Rows[0].Accepted)
}

func TestFoldAcceptedRejectedOverridesRun(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--danger"}}}
	plan := planWithScenarios(schema.Scenario{ID: "help::danger", Covers: []string{"--danger"}})
	sem := &schema.Semantics{}
	sem.Verification.Rejected = []schema.Rule{{StderrContains: []string{"unknown option"}}}

	evidence := map[string]*schema.ScenarioResult{
		"help::danger": {ScenarioID: "help::danger", ExitCode: 1, Stderr: "unknown option: --danger"},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: sem, Evidence: evidence,
	})
	require.NoError(t, err)
	require.Equal(t, schema.AcceptedRejected, ledger.Rows[0].Accepted)
}

func TestFoldAcceptedRecognizedWhenCoveredButNotRun(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--quiet"}}}
	plan := planWithScenarios(schema.Scenario{ID: "help::quiet", Covers: []string{"--quiet"}})

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: nil,
	})
	require.NoError(t, err)
	require.Equal(t, schema.AcceptedRecognized, ledger.Rows[0].Accepted)
}

func TestFoldAcceptedUnknownWhenUncovered(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--mystery"}}}
	plan := planWithScenarios()

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: nil,
	})
	require.NoError(t, err)
	require.Equal(t, schema.AcceptedUnknown, ledger.Rows[0].Accepted)
	require.Equal(t, schema.BehaviorUnknown, ledger.Rows[0].Behavior)
	require.Equal(t, schema.ReasonNoScenario, ledger.Rows[0].ReasonCode)
}

func TestFoldBehaviorVerifiedWithDeltaAndSemanticPredicate(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--format"}}}
	plan := planWithScenarios(
		schema.Scenario{ID: "base::format", Covers: []string{"--format"}, Argv: []string{"cmd"}},
		schema.Scenario{
			ID: "behavior::format", Covers: []string{"--format"}, CoverageTier: "behavior",
			BaselineScenarioID: "base::format",
			Assertions:         []string{"outputs_differ", "stdout_contains:json"},
		},
	)
	evidence := map[string]*schema.ScenarioResult{
		"base::format":     {ScenarioID: "base::format", ExitCode: 0, Stdout: "plain text"},
		"behavior::format": {ScenarioID: "behavior::format", ExitCode: 0, Stdout: `{"ok":true} json`},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: evidence,
	})
	require.NoError(t, err)
	row := ledger.Rows[0]
	require.Equal(t, schema.BehaviorVerified, row.Behavior)
	require.Empty(t, row.ReasonCode)
	require.Contains(t, row.BackingScenarioIDs, "behavior::format")
}

func TestFoldBehaviorRejectedWhenOutputsEqualDespitePassingAssertion(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--format"}}}
	plan := planWithScenarios(
		schema.Scenario{ID: "base::format", Covers: []string{"--format"}},
		schema.Scenario{
			ID: "behavior::format", Covers: []string{"--format"}, CoverageTier: "behavior",
			BaselineScenarioID: "base::format",
			Assertions:         []string{"stdout_contains:text"},
		},
	)
	evidence := map[string]*schema.ScenarioResult{
		"base::format":     {ScenarioID: "base::format", ExitCode: 0, Stdout: "plain text"},
		"behavior::format": {ScenarioID: "behavior::format", ExitCode: 0, Stdout: "plain text"},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: evidence,
	})
	require.NoError(t, err)
	row := ledger.Rows[0]
	require.Equal(t, schema.BehaviorRejected, row.Behavior)
	require.Equal(t, schema.ReasonOutputsEqual, row.ReasonCode)
}

func TestFoldBehaviorDeferredOnTimeout(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--slow"}}}
	plan := planWithScenarios(
		schema.Scenario{ID: "base::slow", Covers: []string{"--slow"}},
		schema.Scenario{
			ID: "behavior::slow", Covers: []string{"--slow"}, CoverageTier: "behavior",
			BaselineScenarioID: "base::slow",
			Assertions:         []string{"outputs_differ"},
		},
	)
	evidence := map[string]*schema.ScenarioResult{
		"base::slow":     {ScenarioID: "base::slow", ExitCode: 0},
		"behavior::slow": {ScenarioID: "behavior::slow", TimedOut: true},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: evidence,
	})
	require.NoError(t, err)
	row := ledger.Rows[0]
	require.Equal(t, schema.BehaviorDeferred, row.Behavior)
	require.Equal(t, schema.ReasonAutoVerifyTimeout, row.ReasonCode)
	require.True(t, row.TimedOut)
}

func TestFoldExcludedSurfaceSkipsBehaviorEvaluation(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--login"}}}
	plan := planWithScenarios()
	sem := &schema.Semantics{
		SurfaceOverlays: map[string]schema.SurfaceOverlay{
			"--login": {Prereqs: []string{"interactive"}},
		},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface:  surface,
		Plan:     plan,
		Semantics: sem,
		Evidence: nil,
		Excluded: map[string]bool{"--login": true},
	})
	require.NoError(t, err)
	row := ledger.Rows[0]
	require.True(t, row.Excluded)
	require.Equal(t, []string{"interactive"}, row.ExcludedPrereqs)
	require.Equal(t, schema.BehaviorUnknown, row.Behavior)
}

func TestFoldBehaviorRejectedWhenSeedSignaturesMismatchOnSeedPathAssertion(t *testing.T) {
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--output"}}}
	plan := planWithScenarios(
		schema.Scenario{ID: "base::output", Covers: []string{"--output"}},
		schema.Scenario{
			ID: "behavior::output", Covers: []string{"--output"}, CoverageTier: "behavior",
			BaselineScenarioID: "base::output",
			Assertions:         []string{"seed_path_added:out.txt"},
		},
	)
	// baseline and variant ran against different seed trees, so the
	// filesystem difference below may be an artifact of the seed, not the
	// variant's argv: the assertion must not be credited as a delta-proof.
	evidence := map[string]*schema.ScenarioResult{
		"base::output": {
			ScenarioID: "base::output", ExitCode: 0, SeedSignature: "seed-a",
			FilesChecked: []schema.FileCheck{{Path: "out.txt", Kind: "file_missing", Holds: true}},
		},
		"behavior::output": {
			ScenarioID: "behavior::output", ExitCode: 0, SeedSignature: "seed-b",
			FilesChecked: []schema.FileCheck{{Path: "out.txt", Kind: "file_exists", Holds: true}},
		},
	}

	ledger, err := Fold(context.Background(), Input{
		Surface: surface, Plan: plan, Semantics: &schema.Semantics{}, Evidence: evidence,
	})
	require.NoError(t, err)
	row := ledger.Rows[0]
	require.Equal(t, schema.BehaviorRejected, row.Behavior)
	require.Equal(t, schema.ReasonOutputsEqual, row.ReasonCode)
}

func intp(i int) *int { return &i }
