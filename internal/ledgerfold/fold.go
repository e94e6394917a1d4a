// Package ledgerfold implements Verification Ledger Folding (C10): it
// combines normalized evidence, pack-owned semantics rules (via
// internal/rules), and the surface inventory into one ledger row per
// surface id, per the status machine in spec.md §4.8.
package ledgerfold

import (
	"context"
	"fmt"

	"bman/internal/rules"
	"bman/internal/schema"
)

// Input bundles everything one fold needs. Evidence is keyed by scenario id
// and need not contain every scenario in the plan — scenarios with no
// evidence yet are simply treated as not-yet-run.
type Input struct {
	Surface   *schema.SurfaceInventory
	Plan      *schema.ScenarioPlan
	Semantics *schema.Semantics
	Evidence  map[string]*schema.ScenarioResult
	Excluded  map[string]bool // surface id -> excluded from auto-verify (internal/autoverify.Excluded)
	Now       int64           // caller-supplied, stamped onto the returned ledger's GeneratedAt
}

// Fold produces verification_ledger.json's row set.
func Fold(ctx context.Context, in Input) (*schema.Ledger, error) {
	coverage := coverageByScenario(in.Plan)

	engine, err := rules.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("ledgerfold: new rule engine: %w", err)
	}
	for _, s := range in.Plan.Scenarios {
		for _, surfaceID := range s.Covers {
			if err := engine.AddCoverage(s.ID, surfaceID); err != nil {
				return nil, fmt.Errorf("ledgerfold: add coverage %s->%s: %w", s.ID, surfaceID, err)
			}
		}
		res, ok := in.Evidence[s.ID]
		if !ok {
			continue
		}
		if err := engine.AddScenarioResult(s.ID, res.ExitCode, res.TimedOut, res.InfraError); err != nil {
			return nil, fmt.Errorf("ledgerfold: add scenario_result %s: %w", s.ID, err)
		}
		outcome := rules.Classify(in.Semantics, res)
		if err := engine.AddOutcome(s.ID, outcome); err != nil {
			return nil, fmt.Errorf("ledgerfold: add outcome %s: %w", s.ID, err)
		}
	}

	surfaces, err := engine.Evaluate(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledgerfold: evaluate: %w", err)
	}

	var rows []schema.LedgerRow
	if in.Surface != nil {
		for _, item := range in.Surface.Items {
			rows = append(rows, foldOne(item, in, coverage, surfaces))
		}
	}
	return &schema.Ledger{GeneratedAt: in.Now, Rows: rows}, nil
}

func foldOne(item schema.SurfaceItem, in Input, coverage map[string][]schema.Scenario, surfaces *rules.Surfaces) schema.LedgerRow {
	row := schema.LedgerRow{SurfaceID: item.ID}

	switch {
	case surfaces.Rejected[item.ID]:
		row.Accepted = schema.AcceptedRejected
	case surfaces.Accepted[item.ID]:
		row.Accepted = schema.AcceptedVerified
	case surfaces.Covered[item.ID] && surfaces.Ran[item.ID]:
		row.Accepted = schema.AcceptedInconclusive
	case surfaces.Covered[item.ID]:
		row.Accepted = schema.AcceptedRecognized
	default:
		row.Accepted = schema.AcceptedUnknown
	}

	if in.Excluded[item.ID] {
		row.Excluded = true
		row.ExcludedPrereqs = overlayPrereqs(in.Semantics, item.ID)
		row.Behavior = schema.BehaviorUnknown
		return row
	}

	foldBehavior(&row, item, in, coverage)
	return row
}

func overlayPrereqs(sem *schema.Semantics, surfaceID string) []string {
	if sem == nil {
		return nil
	}
	return sem.OverlayFor(surfaceID).Prereqs
}

func foldBehavior(row *schema.LedgerRow, item schema.SurfaceItem, in Input, coverage map[string][]schema.Scenario) {
	var candidates []schema.Scenario
	for _, s := range coverage[item.ID] {
		if s.IsBehaviorScenario() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		row.Behavior = schema.BehaviorUnknown
		row.ReasonCode = schema.ReasonNoScenario
		return
	}

	norm := schema.Normalization{}
	if in.Semantics != nil {
		norm = in.Semantics.Normalization
	}

	for _, s := range candidates {
		row.BackingScenarioIDs = append(row.BackingScenarioIDs, s.ID)
		variant, hasVariant := in.Evidence[s.ID]
		baseline, hasBaseline := in.Evidence[s.BaselineScenarioID]

		if !hasVariant {
			row.Behavior = schema.BehaviorRecognized
			continue
		}
		exitCode := variant.ExitCode
		row.AutoVerifyExitCode = &exitCode
		if variant.TimedOut {
			row.Behavior = schema.BehaviorDeferred
			row.ReasonCode = schema.ReasonAutoVerifyTimeout
			row.TimedOut = true
			return
		}
		if !hasBaseline || !variant.Passed() || !baseline.Passed() {
			row.Behavior = schema.BehaviorRejected
			row.ReasonCode = schema.ReasonScenarioError
			row.StderrPreview = preview(variant.Stderr)
			continue
		}

		deltaProof, semanticPredicate, allPass := evaluateBehaviorAssertions(s.Assertions, baseline, variant, norm)
		if !allPass {
			row.Behavior = schema.BehaviorRejected
			row.ReasonCode = schema.ReasonAssertionFailed
			row.StderrPreview = preview(variant.Stderr)
			continue
		}
		if !deltaProof || !semanticPredicate {
			row.Behavior = schema.BehaviorRejected
			row.ReasonCode = schema.ReasonOutputsEqual
			row.DeltaOutcome = "no_difference"
			continue
		}
		row.DeltaOutcome = "differs"

		row.Behavior = schema.BehaviorVerified
		row.ReasonCode = ""
		return
	}
}

// evaluateBehaviorAssertions runs every assertion token and reports whether
// all passed, plus whether a delta-proof and a semantic predicate were each
// satisfied by at least one assertion (spec.md §4.8).
func evaluateBehaviorAssertions(tokens []string, baseline, variant *schema.ScenarioResult, norm schema.Normalization) (deltaProof, semanticPredicate, allPass bool) {
	allPass = true
	for _, token := range tokens {
		o := evaluateAssertion(token, baseline, variant, norm)
		if !o.passed {
			allPass = false
			continue
		}
		if o.isDelta {
			deltaProof = true
		}
		if o.isSemantic {
			semanticPredicate = true
		}
	}
	return deltaProof, semanticPredicate, allPass
}

// preview trims stderr to a short diagnostic snippet for the ledger row.
func preview(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func coverageByScenario(plan *schema.ScenarioPlan) map[string][]schema.Scenario {
	out := make(map[string][]schema.Scenario)
	if plan == nil {
		return out
	}
	for _, s := range plan.Scenarios {
		for _, surfaceID := range s.Covers {
			out[surfaceID] = append(out[surfaceID], s)
		}
	}
	return out
}
