// Package status implements the Status Reporter (C12): it composes the
// slim and full machine-readable payloads `bman status` emits from the
// current ledger, next action, and history, and detects a stuck cycle.
package status

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"bman/internal/pack"
	"bman/internal/schema"
)

// Slim composes the default (non --full) status payload.
func Slim(ledger *schema.Ledger, surface *schema.SurfaceInventory, next schema.NextAction, history []schema.HistoryEvent, stuckCycleLimit int) schema.StatusPayload {
	counts := countLedger(ledger, surface)
	return schema.StatusPayload{
		Decision:   decide(next, hasBlockers(ledger)),
		Counts:     counts,
		IsStuck:    IsStuck(next, history, stuckCycleLimit),
		NextAction: &next,
	}
}

// Full composes the --full status payload: everything Slim does, plus a
// per-surface triage list, a reason-code histogram, the last-failure
// evidence path per unmet surface id, and a usage lens summary.
func Full(ledger *schema.Ledger, surface *schema.SurfaceInventory, next schema.NextAction, history []schema.HistoryEvent, stuckCycleLimit int, usageLensSummary string, evidenceIndex *schema.EvidenceIndex) schema.StatusPayload {
	payload := Slim(ledger, surface, next, history, stuckCycleLimit)

	rows := ledger.Rows
	triage := make([]schema.TriageRow, 0, len(rows))
	reasonPreview := make(map[schema.ReasonCode]int)
	var blockers []string

	for _, r := range rows {
		row := schema.TriageRow{
			SurfaceID:  r.SurfaceID,
			Accepted:   r.Accepted,
			Behavior:   r.Behavior,
			ReasonCode: r.ReasonCode,
		}
		if r.ReasonCode != "" {
			reasonPreview[r.ReasonCode]++
		}
		if r.ReasonCode == schema.ReasonScenarioError {
			blockers = append(blockers, fmt.Sprintf("%s: scenario error", r.SurfaceID))
		}
		if lastFailingScenarioID := lastBackingScenario(r); lastFailingScenarioID != "" && evidenceIndex != nil {
			if entry, ok := evidenceIndex.Get(lastFailingScenarioID); ok {
				row.LastFailurePath = entry.EvidencePath
			}
		}
		triage = append(triage, row)
	}

	payload.Full = &schema.FullDetail{
		Triage:            triage,
		ReasonCodePreview: reasonPreview,
		UsageLensSummary:  usageLensSummary,
		Blockers:          blockers,
	}
	return payload
}

// lastBackingScenario returns the most recently recorded covering scenario
// for a row that did not reach a verified state, for last-failure lookup.
func lastBackingScenario(r schema.LedgerRow) string {
	if r.Behavior == schema.BehaviorVerified || len(r.BackingScenarioIDs) == 0 {
		return ""
	}
	return r.BackingScenarioIDs[len(r.BackingScenarioIDs)-1]
}

func decide(next schema.NextAction, blocked bool) schema.Decision {
	switch {
	case blocked:
		return schema.DecisionBlocked
	case next.Kind == schema.ActionComplete:
		return schema.DecisionComplete
	default:
		return schema.DecisionIncomplete
	}
}

func hasBlockers(ledger *schema.Ledger) bool {
	for _, r := range ledger.Rows {
		if r.ReasonCode == schema.ReasonScenarioError {
			return true
		}
	}
	return false
}

func countLedger(ledger *schema.Ledger, surface *schema.SurfaceInventory) schema.Counts {
	c := schema.Counts{SurfaceSize: len(surface.Items)}
	for _, r := range ledger.Rows {
		if r.Excluded {
			c.Excluded++
		}
		if r.Accepted == schema.AcceptedVerified {
			c.AcceptedVerified++
		}
		if r.Behavior == schema.BehaviorVerified {
			c.BehaviorVerified++
		}
	}
	return c
}

// IsStuck reports whether the same next_action.kind + target id was
// recorded on at least stuckCycleLimit consecutive "apply" history entries,
// counting back from the newest (other ops are skipped). A repeated
// recommendation is what counts as no progress; ledger contents are not
// compared (spec.md §4.10).
func IsStuck(next schema.NextAction, history []schema.HistoryEvent, stuckCycleLimit int) bool {
	if stuckCycleLimit <= 0 {
		stuckCycleLimit = 3
	}
	if next.Kind == schema.ActionComplete {
		return false
	}
	target := next.SurfaceID

	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Op != "apply" {
			continue
		}
		if string(e.NextActionKind) == string(next.Kind) && e.NextActionTarget == target {
			streak++
			if streak >= stuckCycleLimit {
				return true
			}
			continue
		}
		break
	}
	return false
}

// LoadHistory reads every event from enrich/history.jsonl, oldest first. A
// missing file is treated as an empty history, not an error.
func LoadHistory(p *pack.Pack) ([]schema.HistoryEvent, error) {
	path, err := pack.Resolve(p, pack.HistoryPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("status: open history: %w", err)
	}
	defer f.Close()

	var events []schema.HistoryEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e schema.HistoryEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("status: parse history line: %w", err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("status: scan history: %w", err)
	}
	return events, nil
}
