package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"bman/internal/logging"
	"bman/internal/pack"
	"bman/internal/schema"
	"bman/internal/txn"
)

// lockHash hex-encodes the sha256 of a lock's canonical JSON, so
// plan.out.json can bind to the exact lock state that produced it without
// embedding the whole lock inline.
func lockHash(l *schema.Lock) string {
	if l == nil {
		return ""
	}
	data, err := schema.Canonical(l)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// openPack resolves --doc-pack, opens it, and discards any transaction
// workspace left behind by an interrupted apply (spec.md §5) before any
// command reads pack state.
func openPack() (*pack.Pack, error) {
	if docPack == "" {
		return nil, fmt.Errorf("--doc-pack is required")
	}
	p, err := pack.Open(docPack)
	if err != nil {
		return nil, err
	}
	discarded, err := txn.DiscardStale(p)
	if err != nil {
		return nil, err
	}
	if len(discarded) > 0 {
		logging.For(logging.CategoryTxn).Warn("discarded stale transaction workspace(s) from an interrupted apply", map[string]interface{}{
			"workspaces": discarded,
		})
	}
	return p, nil
}

// manRendered reports whether derived/man/ holds any pages yet.
func manRendered(p *pack.Pack) (bool, error) {
	full, err := pack.Resolve(p, pack.ManDir)
	if err != nil {
		return false, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// applyMergePatch upserts patch.UpsertScenarios into scenarios/plan.json by
// id and, if patch.Defaults is non-empty, decodes it onto the existing
// Defaults struct so only the named fields change — the same scoped-edit
// shape both `apply --lm` and `merge-behavior-edit` are restricted to.
func applyMergePatch(p *pack.Pack, patch *schema.MergePatch) error {
	planPath, err := pack.Resolve(p, pack.ScenarioPlanPath)
	if err != nil {
		return err
	}
	plan, err := schema.LoadScenarioPlan(planPath)
	if err != nil {
		return err
	}

	if len(patch.Defaults) > 0 {
		data, err := json.Marshal(patch.Defaults)
		if err != nil {
			return fmt.Errorf("merge patch: encode defaults: %w", err)
		}
		if err := schema.Decode(bytes.NewReader(data), &plan.Defaults); err != nil {
			return &schema.Error{Path: planPath, Field: "defaults", Err: err}
		}
	}

	byID := make(map[string]int, len(plan.Scenarios))
	for i, s := range plan.Scenarios {
		byID[s.ID] = i
	}
	for _, s := range patch.UpsertScenarios {
		if i, ok := byID[s.ID]; ok {
			plan.Scenarios[i] = s
		} else {
			plan.Scenarios = append(plan.Scenarios, s)
			byID[s.ID] = len(plan.Scenarios) - 1
		}
	}

	if err := plan.Validate(); err != nil {
		return &schema.Error{Path: planPath, Err: err}
	}
	return schema.WriteFile(planPath, plan)
}

// defaultUsageLensTemplate is the starter query init writes to
// queries/usage_lens.sql, so a freshly inited pack has a working usage lens
// summary from its very first apply instead of an empty one.
const defaultUsageLensTemplate = `-- Surface items grouped by their current verification status, the basis
-- for status --full's usage lens summary.
SELECT l.accepted AS accepted, l.behavior AS behavior, COUNT(*) AS surface_count
FROM surface_items s
LEFT JOIN ledger_rows l ON l.surface_id = s.id
GROUP BY l.accepted, l.behavior
ORDER BY surface_count DESC;
`
