package nextaction

import (
	"testing"

	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func baseConfig() *schema.Config {
	return &schema.Config{
		Requirements:     []schema.Requirement{schema.RequireSurface, schema.RequireVerification},
		VerificationTier: schema.TierAccepted,
	}
}

func TestDecideLockStaleWins(t *testing.T) {
	action := Decide(Input{
		LockStale: true,
		Surface:   &schema.SurfaceInventory{},
		Plan:      &schema.ScenarioPlan{},
		Semantics: &schema.Semantics{},
		Config:    baseConfig(),
		Ledger:    &schema.Ledger{},
	})
	require.Equal(t, schema.ActionRunCommand, action.Kind)
	require.Equal(t, "bman apply", action.Command)
}

func TestDecideEmptySurfaceNeedsHelpScenario(t *testing.T) {
	action := Decide(Input{
		Surface:   &schema.SurfaceInventory{},
		Plan:      &schema.ScenarioPlan{},
		Semantics: &schema.Semantics{},
		Config:    baseConfig(),
		Ledger:    &schema.Ledger{},
	})
	require.Equal(t, schema.ActionEditFile, action.Kind)
	require.Equal(t, schema.EditMergeBehaviorScenarios, action.EditStrategy)
}

func TestDecideManRequiresAcceptanceRule(t *testing.T) {
	cfg := baseConfig()
	cfg.Requirements = append(cfg.Requirements, schema.RequireMan)
	action := Decide(Input{
		Surface:   &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--help"}}},
		Plan:      &schema.ScenarioPlan{Scenarios: []schema.Scenario{{ID: "help::root"}}},
		Semantics: &schema.Semantics{},
		Config:    cfg,
		Ledger:    &schema.Ledger{},
	})
	require.Equal(t, schema.ActionEditFile, action.Kind)
	require.Equal(t, "enrich/semantics.json", action.FilePath)
}

func TestDecideRunsApplyWhenAutoVerifyTargetsRemain(t *testing.T) {
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	action := Decide(Input{
		Surface:   &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--verbose"}}},
		Plan:      &schema.ScenarioPlan{Scenarios: []schema.Scenario{{ID: "help::root"}}},
		Semantics: sem,
		Config:    baseConfig(),
		Ledger: &schema.Ledger{Rows: []schema.LedgerRow{
			{SurfaceID: "--verbose", Accepted: schema.AcceptedRecognized},
		}},
	})
	require.Equal(t, schema.ActionRunCommand, action.Kind)
	require.Equal(t, "--verbose", action.SurfaceID)
}

func TestDecideBehaviorUnmetMissingValueExample(t *testing.T) {
	cfg := baseConfig()
	cfg.VerificationTier = schema.TierBehavior
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	action := Decide(Input{
		Surface: &schema.SurfaceInventory{Items: []schema.SurfaceItem{{
			ID:         "--format",
			Invocation: schema.Invocation{ValueArity: schema.ArityRequired},
		}}},
		Plan:      &schema.ScenarioPlan{Scenarios: []schema.Scenario{{ID: "help::root"}}},
		Semantics: sem,
		Config:    cfg,
		Ledger: &schema.Ledger{Rows: []schema.LedgerRow{
			{SurfaceID: "--format", Accepted: schema.AcceptedVerified, Behavior: schema.BehaviorUnknown},
		}},
	})
	require.Equal(t, schema.ActionEditFile, action.Kind)
	require.Equal(t, "--format", action.SurfaceID)
	require.Equal(t, "enrich/semantics.json", action.FilePath)
}

func TestDecideBehaviorUnmetNeedsBaseline(t *testing.T) {
	cfg := baseConfig()
	cfg.VerificationTier = schema.TierBehavior
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	action := Decide(Input{
		Surface: &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--format"}}},
		Plan:    &schema.ScenarioPlan{Scenarios: []schema.Scenario{{ID: "help::root"}}},
		Semantics: sem,
		Config:    cfg,
		Ledger: &schema.Ledger{Rows: []schema.LedgerRow{
			{SurfaceID: "--format", Accepted: schema.AcceptedVerified, Behavior: schema.BehaviorUnknown},
		}},
	})
	require.Equal(t, schema.ActionEditFile, action.Kind)
	require.Equal(t, schema.EditMergeBehaviorScenarios, action.EditStrategy)
	require.Contains(t, string(action.Content), "base::--format")
}

func TestDecideRecognizesSpecShapedBaselineWithoutNamingConvention(t *testing.T) {
	// spec.md §8 end-to-end scenario 2: a shared baseline authored as
	// {id=baseline, argv=[], stdin="a\nb\n"} with no `covers` field,
	// referenced only via the behavior scenario's baseline_scenario_id.
	cfg := baseConfig()
	cfg.VerificationTier = schema.TierBehavior
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	action := Decide(Input{
		Surface: &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "-d"}}},
		Plan: &schema.ScenarioPlan{Scenarios: []schema.Scenario{
			{ID: "help::root"},
			{ID: "baseline", Argv: []string{}},
			{
				ID: "behavior::-d", Covers: []string{"-d"}, CoverageTier: "behavior",
				BaselineScenarioID: "baseline",
				Assertions:         []string{"outputs_differ"},
			},
		}},
		Semantics: sem,
		Config:    cfg,
		Ledger: &schema.Ledger{Rows: []schema.LedgerRow{
			{SurfaceID: "-d", Accepted: schema.AcceptedVerified, Behavior: schema.BehaviorUnknown, ReasonCode: schema.ReasonNoScenario},
		}},
	})
	// A valid baseline+behavior pair already exists, so the planner must
	// fall through to the reason-code-driven fix rather than recommending
	// a duplicate baseline (or behavior) scenario stub.
	require.Equal(t, schema.ActionRunCommand, action.Kind)
	require.Equal(t, "-d", action.SurfaceID)
}

func TestDecideCompleteWhenEverythingSatisfied(t *testing.T) {
	action := Decide(Input{
		Surface: &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--verbose"}}},
		Plan:    &schema.ScenarioPlan{Scenarios: []schema.Scenario{{ID: "help::root"}}},
		Semantics: &schema.Semantics{},
		Config:    baseConfig(),
		Ledger: &schema.Ledger{Rows: []schema.LedgerRow{
			{SurfaceID: "--verbose", Accepted: schema.AcceptedVerified},
		}},
		ManRendered: true,
	})
	require.Equal(t, schema.ActionComplete, action.Kind)
}

func intp(i int) *int { return &i }
