package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bman/internal/autoverify"
	"bman/internal/lock"
	"bman/internal/pack"
	"bman/internal/schema"
	"bman/internal/workplan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Derive and persist the ordered action list for the next apply (debug)",
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, err := openPack()
	if err != nil {
		return err
	}
	in, err := loadPackInputs(p)
	if err != nil {
		return err
	}

	files, err := lock.InputFiles(p)
	if err != nil {
		return err
	}
	l, err := lock.Load(p)
	if err != nil {
		return err
	}
	stale, _, err := lock.Stale(p, l, files)
	if err != nil {
		return err
	}
	if stale {
		l, err = lock.Compute(p, files, time.Now().Unix())
		if err != nil {
			return err
		}
		if err := lock.Write(p, l); err != nil {
			return err
		}
	}

	actions := deriveActionsPreview(in)
	snapshot := schema.PlanSnapshot{
		GeneratedAt: time.Now().Unix(),
		LockHash:    lockHash(l),
	}
	for _, a := range actions {
		snapshot.Actions = append(snapshot.Actions, a.ToSchema())
	}

	planOutPath, err := pack.Resolve(p, pack.PlanOutPath)
	if err != nil {
		return err
	}
	if err := schema.WriteFile(planOutPath, snapshot); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "derived %d actions (%d run_scenario), wrote %s\n",
		len(actions), len(workplan.RunScenarioIDs(actions)), pack.PlanOutPath)
	return nil
}

// deriveActionsPreview derives the full action list — authored scenarios
// plus the auto-verify scenarios implied by the surface inventory currently
// on disk — without refreshing that inventory. It backs `bman plan`'s
// non-mutating preview; apply performs the same Derive/Expand/InsertAutoVerify
// steps itself against the inventory it has just re-rendered.
func deriveActionsPreview(in *packInputs) []workplan.Action {
	actions := workplan.Derive(in.config, in.plan)
	autoScenarios := autoverify.Expand(in.surface, in.semantics, in.plan.Verification.Policy, in.plan.Verification.Queue)
	ids := make([]string, 0, len(autoScenarios))
	for _, s := range autoScenarios {
		ids = append(ids, s.ID)
	}
	return workplan.InsertAutoVerify(actions, ids)
}
