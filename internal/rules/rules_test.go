package rules

import (
	"context"
	"testing"

	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func intp(i int) *int { return &i }

func TestMatchesExitCodeAndStdout(t *testing.T) {
	r := schema.Rule{ExitCode: intp(0), StdoutContains: []string{"Usage:"}}
	require.True(t, Matches(r, &schema.ScenarioResult{ExitCode: 0, Stdout: "Usage: foo [opts]"}))
	require.False(t, Matches(r, &schema.ScenarioResult{ExitCode: 1, Stdout: "Usage: foo [opts]"}))
	require.False(t, Matches(r, &schema.ScenarioResult{ExitCode: 0, Stdout: "no match here"}))
}

func TestClassifyRejectedOverridesAccepted(t *testing.T) {
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	sem.Verification.Rejected = []schema.Rule{{StderrContains: []string{"unknown option"}}}

	res := &schema.ScenarioResult{ExitCode: 0, Stderr: "unknown option: --frobnicate"}
	require.Equal(t, OutcomeRejected, Classify(sem, res))
}

func TestClassifyInconclusiveWhenNoRuleMatches(t *testing.T) {
	sem := &schema.Semantics{}
	sem.Verification.Accepted = []schema.Rule{{ExitCode: intp(0)}}
	res := &schema.ScenarioResult{ExitCode: 1}
	require.Equal(t, OutcomeInconclusive, Classify(sem, res))
}

func TestEngineJoinsCoverageThroughOutcome(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	require.NoError(t, e.AddScenarioResult("help::root", 0, false, ""))
	require.NoError(t, e.AddCoverage("help::root", "--verbose"))
	require.NoError(t, e.AddOutcome("help::root", OutcomeAccepted))

	require.NoError(t, e.AddScenarioResult("help::bad", 1, false, ""))
	require.NoError(t, e.AddCoverage("help::bad", "--danger"))
	require.NoError(t, e.AddOutcome("help::bad", OutcomeRejected))

	require.NoError(t, e.AddCoverage("help::unrun", "--unseen"))

	surfaces, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	require.True(t, surfaces.Accepted["--verbose"])
	require.False(t, surfaces.Accepted["--danger"])
	require.True(t, surfaces.Rejected["--danger"])
	require.True(t, surfaces.Covered["--unseen"])
	require.False(t, surfaces.Ran["--unseen"])
	require.True(t, surfaces.Ran["--verbose"])
}
