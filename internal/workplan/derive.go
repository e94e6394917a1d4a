package workplan

import (
	"bman/internal/schema"
)

// Derive builds the ordered skeleton of actions for one apply from the
// authored scenario plan and config, honoring the ordering constraints from
// spec.md §4.6: help scenarios precede surface rendering; surface rendering
// precedes everything that depends on it; man rendering only appears when
// config requires it; ledger folding always runs last.
//
// Auto-verification's implicit scenarios (C9) are not known yet at this
// point — they depend on the surface inventory, which this very plan is
// about to (re)render. The apply transaction splices them in afterward with
// InsertAutoVerify, which preserves the "surface before auto-verify"
// ordering constraint structurally rather than by convention.
func Derive(cfg *schema.Config, plan *schema.ScenarioPlan) []Action {
	var help, rest []Action
	for _, s := range plan.Scenarios {
		a := Action{Kind: ActionRunScenario, ScenarioID: s.ID}
		if s.IsHelpScenario() {
			help = append(help, a)
		} else {
			rest = append(rest, a)
		}
	}

	actions := make([]Action, 0, len(help)+len(rest)+3)
	actions = append(actions, help...)
	actions = append(actions, Action{Kind: ActionRenderSurface})
	actions = append(actions, rest...)
	if cfg.Requires(schema.RequireMan) {
		actions = append(actions, Action{Kind: ActionRenderMan})
	}
	actions = append(actions, Action{Kind: ActionFoldLedger})
	return actions
}

// InsertAutoVerify splices run_scenario actions for the given auto-verify
// scenario ids immediately after the render_surface action (inserting one if
// somehow absent), so they always run with a freshly rendered surface
// inventory available.
func InsertAutoVerify(actions []Action, scenarioIDs []string) []Action {
	if len(scenarioIDs) == 0 {
		return actions
	}
	insertions := make([]Action, 0, len(scenarioIDs))
	for _, id := range scenarioIDs {
		insertions = append(insertions, Action{Kind: ActionRunScenario, ScenarioID: id})
	}

	idx := -1
	for i, a := range actions {
		if a.Kind == ActionRenderSurface {
			idx = i
			break
		}
	}
	if idx == -1 {
		return append(append([]Action{}, insertions...), actions...)
	}

	out := make([]Action, 0, len(actions)+len(insertions))
	out = append(out, actions[:idx+1]...)
	out = append(out, insertions...)
	out = append(out, actions[idx+1:]...)
	return out
}

// RunScenarioIDs extracts every scenario id named by a run_scenario action,
// in plan order.
func RunScenarioIDs(actions []Action) []string {
	var ids []string
	for _, a := range actions {
		if a.Kind == ActionRunScenario {
			ids = append(ids, a.ScenarioID)
		}
	}
	return ids
}
