// Package nextaction implements the deterministic Next-Action Planner
// (C11): from the current ledger, surface inventory, scenario plan, and
// config, it picks exactly one recommendation, walking a fixed eight-step
// priority list (spec.md §4.9) and breaking ties between qualifying surface
// ids with sort.Strings so the same inputs always produce the same output.
package nextaction

import (
	"encoding/json"
	"sort"

	"bman/internal/pack"
	"bman/internal/schema"
)

// Input bundles everything Decide needs to evaluate the priority list.
type Input struct {
	Ledger      *schema.Ledger
	Surface     *schema.SurfaceInventory
	Plan        *schema.ScenarioPlan
	Semantics   *schema.Semantics
	Config      *schema.Config
	LockStale   bool // true when the lock is missing or any input file changed since
	ManRendered bool // true once derived/man output exists for the current ledger
}

// Decide returns the single next action the eight-step priority list names.
func Decide(in Input) schema.NextAction {
	if in.LockStale {
		return schema.NextAction{
			Kind:    schema.ActionRunCommand,
			Reason:  "lock is missing or stale",
			Command: "bman apply",
		}
	}

	if len(in.Surface.Items) == 0 && !anyHelpScenario(in.Plan) {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "surface inventory is empty and no help scenario exists to discover it",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			Content: rawJSON(schema.MergePatch{
				UpsertScenarios: []schema.Scenario{{
					ID:   "help::root",
					Argv: []string{"--help"},
				}},
			}),
		}
	}

	if in.Config.Requires(schema.RequireMan) && !hasAcceptanceRule(in.Semantics) {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "man page requires a synopsis but no verification rule has been extracted yet",
			FilePath:     pack.SemanticsPath,
			EditStrategy: schema.EditReplaceFile,
			Content: rawJSON(schema.Rule{
				Name:     "root_help_succeeds",
				ExitCode: intp(0),
			}),
		}
	}

	if id, ok := firstByStatus(in.Ledger, func(r schema.LedgerRow) bool {
		return !r.Excluded && r.Accepted == schema.AcceptedRecognized
	}); ok {
		return schema.NextAction{
			Kind:      schema.ActionRunCommand,
			Reason:    "auto-verification targets remain runnable",
			Command:   "bman apply",
			SurfaceID: id,
		}
	}

	if in.Config.VerificationTier == schema.TierBehavior {
		if action, ok := behaviorUnmetAction(in); ok {
			return action
		}
	}

	if in.Config.VerificationTier == schema.TierAccepted {
		if action, ok := acceptedUnmetAction(in); ok {
			return action
		}
	}

	if in.Config.Requires(schema.RequireMan) && !in.ManRendered {
		return schema.NextAction{
			Kind:    schema.ActionRunCommand,
			Reason:  "man page rendering is pending",
			Command: "bman apply",
		}
	}

	return schema.NextAction{Kind: schema.ActionComplete, Reason: "all configured requirements are satisfied"}
}

func behaviorUnmetAction(in Input) (schema.NextAction, bool) {
	id, ok := firstByStatus(in.Ledger, func(r schema.LedgerRow) bool {
		return !r.Excluded && r.Behavior != schema.BehaviorVerified
	})
	if !ok {
		return schema.NextAction{}, false
	}
	item, hasItem := in.Surface.ByID()[id]

	if hasItem && item.Invocation.ValueArity == schema.ArityRequired && len(item.Invocation.ValueExamples) == 0 {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "surface item requires a value but no example value is on record",
			FilePath:     pack.SemanticsPath,
			EditStrategy: schema.EditReplaceFile,
			SurfaceID:    id,
			Content: rawJSON(schema.SurfaceOverlay{
				Invocation: schema.InvocationOverlay{ValueExamples: []string{"<example-value>"}},
			}),
		}, true
	}

	if !hasBaselineScenario(in.Plan, id) {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "no baseline scenario exists to compare behavior against",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			SurfaceID:    id,
			Content: rawJSON(schema.MergePatch{
				UpsertScenarios: []schema.Scenario{{
					ID:     "base::" + id,
					Argv:   []string{},
					Covers: []string{id},
				}},
			}),
		}, true
	}

	if !hasBehaviorScenario(in.Plan, id) {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "no behavior scenario covers this surface id",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			SurfaceID:    id,
			Content: rawJSON(schema.MergePatch{
				UpsertScenarios: []schema.Scenario{{
					ID:                 "behavior::" + id,
					CoverageTier:       "behavior",
					Covers:             []string{id},
					BaselineScenarioID: "base::" + id,
					Assertions:         []string{"outputs_differ", "stdout_contains:<needle>"},
				}},
			}),
		}, true
	}

	return reasonCodeFixAction(in.Ledger, id), true
}

// reasonCodeFixAction picks an edit that addresses the specific reason code
// attached to the unmet row (spec.md §4.8), rather than a generic stub.
func reasonCodeFixAction(ledger *schema.Ledger, id string) schema.NextAction {
	row := ledger.ByID()[id]
	switch row.ReasonCode {
	case schema.ReasonOutputsEqual:
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "behavior scenario's variant output does not differ from its baseline",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			SurfaceID:    id,
			Content: rawJSON(schema.MergePatch{UpsertScenarios: []schema.Scenario{{
				ID: firstScenarioID(row.BackingScenarioIDs), Assertions: []string{"outputs_differ", "stdout_contains:<needle>"},
			}}}),
		}
	case schema.ReasonAssertionFailed:
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "a behavior assertion failed against the recorded evidence",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			SurfaceID:    id,
			Content: rawJSON(schema.MergePatch{UpsertScenarios: []schema.Scenario{{
				ID: firstScenarioID(row.BackingScenarioIDs), Assertions: []string{"outputs_differ"},
			}}}),
		}
	case schema.ReasonAutoVerifyTimeout:
		return schema.NextAction{
			Kind:    schema.ActionRunCommand,
			Reason:  "behavior scenario timed out, rerun to collect fresh evidence",
			Command: "bman apply --rerun-failed",
			SurfaceID: id,
		}
	default:
		return schema.NextAction{
			Kind:    schema.ActionRunCommand,
			Reason:  "behavior scenario evidence is missing or erroring, rerun to investigate",
			Command: "bman apply --rerun-failed",
			SurfaceID: id,
		}
	}
}

func acceptedUnmetAction(in Input) (schema.NextAction, bool) {
	id, ok := firstByStatus(in.Ledger, func(r schema.LedgerRow) bool {
		return !r.Excluded && r.Accepted != schema.AcceptedVerified && r.Accepted != schema.AcceptedRejected
	})
	if !ok {
		return schema.NextAction{}, false
	}
	row := in.Ledger.ByID()[id]

	if row.Accepted == schema.AcceptedUnknown {
		return schema.NextAction{
			Kind:         schema.ActionEditFile,
			Reason:       "no scenario covers this surface id at the accepted tier",
			FilePath:     pack.ScenarioPlanPath,
			EditStrategy: schema.EditMergeBehaviorScenarios,
			SurfaceID:    id,
			Content: rawJSON(schema.MergePatch{UpsertScenarios: []schema.Scenario{{
				ID:     "help::" + sanitizeForID(id),
				Argv:   []string{},
				Covers: []string{id},
			}}}),
		}, true
	}

	return schema.NextAction{
		Kind:         schema.ActionEditFile,
		Reason:       "scenario ran but no accepted or rejected rule classified its outcome",
		FilePath:     pack.SemanticsPath,
		EditStrategy: schema.EditReplaceFile,
		SurfaceID:    id,
		Content: rawJSON(schema.Rule{
			Name:     "accept_" + sanitizeForID(id),
			ExitCode: intp(0),
		}),
	}, true
}

func anyHelpScenario(plan *schema.ScenarioPlan) bool {
	if plan == nil {
		return false
	}
	for _, s := range plan.Scenarios {
		if s.IsHelpScenario() {
			return true
		}
	}
	return false
}

func hasAcceptanceRule(sem *schema.Semantics) bool {
	if sem == nil {
		return false
	}
	return len(sem.Verification.Accepted) > 0 || len(sem.Verification.Rejected) > 0
}

// hasBaselineScenario reports whether a valid baseline already exists for
// surfaceID. A covering behavior scenario's baseline_scenario_id need not
// follow any naming convention (spec.md §8 end-to-end scenario 2 authors a
// bare `{id=baseline, argv=[]}` with no `covers` field) — it only has to
// name a scenario id that actually exists in the plan. Absent a covering
// behavior scenario yet, any non-behavior scenario that already covers the
// id is a usable baseline candidate for the behavior stub about to be
// proposed.
func hasBaselineScenario(plan *schema.ScenarioPlan, surfaceID string) bool {
	if plan == nil {
		return false
	}
	if behavior, ok := findBehaviorScenario(plan, surfaceID); ok {
		return scenarioExists(plan, behavior.BaselineScenarioID)
	}
	for _, s := range plan.Scenarios {
		if s.CoverageTier == "behavior" {
			continue
		}
		if covers(s, surfaceID) {
			return true
		}
	}
	return false
}

func hasBehaviorScenario(plan *schema.ScenarioPlan, surfaceID string) bool {
	_, ok := findBehaviorScenario(plan, surfaceID)
	return ok
}

func findBehaviorScenario(plan *schema.ScenarioPlan, surfaceID string) (schema.Scenario, bool) {
	if plan == nil {
		return schema.Scenario{}, false
	}
	for _, s := range plan.Scenarios {
		if s.IsBehaviorScenario() && covers(s, surfaceID) {
			return s, true
		}
	}
	return schema.Scenario{}, false
}

func scenarioExists(plan *schema.ScenarioPlan, id string) bool {
	if id == "" || plan == nil {
		return false
	}
	for _, s := range plan.Scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

func covers(s schema.Scenario, surfaceID string) bool {
	for _, id := range s.Covers {
		if id == surfaceID {
			return true
		}
	}
	return false
}

// firstByStatus returns the lexicographically smallest surface id among
// ledger rows matching pred, breaking ties deterministically.
func firstByStatus(ledger *schema.Ledger, pred func(schema.LedgerRow) bool) (string, bool) {
	var ids []string
	for _, r := range ledger.Rows {
		if pred(r) {
			ids = append(ids, r.SurfaceID)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

func firstScenarioID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return sorted[0]
}

func sanitizeForID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func rawJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func intp(i int) *int { return &i }
