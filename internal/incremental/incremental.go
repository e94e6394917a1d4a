// Package incremental implements the Incremental Executor (C8): given a
// scenario's content-addressed digest and the current evidence index, decide
// whether it must run again this apply, then bound the resulting batch so one
// apply never runs an unbounded number of new scenarios.
package incremental

import (
	"bman/internal/digest"
	"bman/internal/schema"
)

// RerunMode captures the two CLI flags (`--rerun-all`, `--rerun-failed`)
// that widen what "must run" means beyond the digest comparison.
type RerunMode struct {
	All    bool
	Failed bool
}

// Reason explains a Decision for logging and history events.
type Reason string

const (
	ReasonNoEvidence   Reason = "no_prior_evidence"
	ReasonDigestChanged Reason = "digest_changed"
	ReasonRerunFailed  Reason = "rerun_failed_policy"
	ReasonRerunAll     Reason = "rerun_all_flag"
	ReasonUnchanged    Reason = "digest_unchanged"
)

// Decision is the per-scenario incremental verdict.
type Decision struct {
	ScenarioID string
	Digest     string
	MustRun    bool
	Reason     Reason
}

// Decide evaluates one scenario against the evidence index and rerun flags.
// It never looks at the scenario's own evidence content beyond last_pass —
// the digest comparison alone determines staleness, per spec.md §4.3.
func Decide(s schema.Scenario, defaults schema.Defaults, index *schema.EvidenceIndex, mode RerunMode) Decision {
	d := digest.Scenario(s, defaults)
	dec := Decision{ScenarioID: s.ID, Digest: d}

	if mode.All {
		dec.MustRun = true
		dec.Reason = ReasonRerunAll
		return dec
	}

	entry, ok := index.Get(s.ID)
	if !ok {
		dec.MustRun = true
		dec.Reason = ReasonNoEvidence
		return dec
	}
	if entry.ScenarioDigest != d {
		dec.MustRun = true
		dec.Reason = ReasonDigestChanged
		return dec
	}
	if mode.Failed && !entry.LastPass {
		dec.MustRun = true
		dec.Reason = ReasonRerunFailed
		return dec
	}

	dec.MustRun = false
	dec.Reason = ReasonUnchanged
	return dec
}

// DecideAll evaluates every scenario in the plan, preserving plan order.
func DecideAll(scenarios []schema.Scenario, defaults schema.Defaults, index *schema.EvidenceIndex, mode RerunMode) []Decision {
	decisions := make([]Decision, 0, len(scenarios))
	for _, s := range scenarios {
		decisions = append(decisions, Decide(s, defaults, index, mode))
	}
	return decisions
}

// Batch bounds a list of candidate scenario ids (already filtered to
// MustRun) to maxNew new executions, returning the ids that run this apply
// and the ids deferred to a later one. Scenarios that are rerunning due to a
// digest change or explicit rerun flag are never deferred — only genuinely
// new auto-verify expansions (no prior evidence at all) count against the
// cap, matching spec.md §4.4's framing of the bound as a limit on *new*
// executions.
func Batch(decisions []Decision, maxNew int) (runNow, deferred []string) {
	if maxNew <= 0 {
		for _, d := range decisions {
			if d.MustRun {
				runNow = append(runNow, d.ScenarioID)
			}
		}
		return runNow, nil
	}

	newCount := 0
	for _, d := range decisions {
		if !d.MustRun {
			continue
		}
		if d.Reason == ReasonNoEvidence {
			if newCount >= maxNew {
				deferred = append(deferred, d.ScenarioID)
				continue
			}
			newCount++
		}
		runNow = append(runNow, d.ScenarioID)
	}
	return runNow, deferred
}
