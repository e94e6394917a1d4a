// Package autoverify implements Auto-Verification (C9): it expands the
// scenario plan's verification policy into implicit, synthetic scenarios
// over the surface inventory, without the engine ever encoding assumptions
// about CLI shape itself — prefix/suffix argv fragments and prereq seeds are
// entirely pack-owned (semantics.json, plan.json).
package autoverify

import (
	"sort"
	"strings"

	"bman/internal/schema"
)

const scenarioIDPrefix = "auto_verify::"

// defaultArgvSuffix is used only when the pack's policy leaves ArgvSuffix
// unset entirely, per spec.md §4.4's "default suffix for subcommand
// existence: ['--help']".
var defaultArgvSuffix = []string{"--help"}

// IsAutoVerifyID reports whether a scenario id was synthesized by Expand.
func IsAutoVerifyID(id string) bool {
	return strings.HasPrefix(id, scenarioIDPrefix)
}

// ScenarioIDFor returns the synthetic scenario id Expand would generate for
// a surface id.
func ScenarioIDFor(surfaceID string) string {
	return scenarioIDPrefix + surfaceID
}

// Expand produces the candidate set of auto-verify scenarios, in the stable
// order spec.md §4.4 mandates (sort by surface_id, tie-break by parent_id
// chain). It applies every exclusion rule up front: an excluded surface item
// never appears as a candidate, and is the caller's responsibility to record
// as `excluded` in the ledger rather than `unverified`.
func Expand(surface *schema.SurfaceInventory, semantics *schema.Semantics, policy schema.VerificationPolicy, queue []schema.QueueEntry) []schema.Scenario {
	if surface == nil {
		return nil
	}
	excluded := excludedSurfaceIDs(queue)
	items := make([]schema.SurfaceItem, len(surface.Items))
	copy(items, surface.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ID != items[j].ID {
			return items[i].ID < items[j].ID
		}
		return items[i].ParentID < items[j].ParentID
	})

	suffix := policy.ArgvSuffix
	if suffix == nil {
		suffix = defaultArgvSuffix
	}

	var scenarios []schema.Scenario
	for _, item := range items {
		if excluded[item.ID] {
			continue
		}
		if !kindMatches(item, policy.Kinds) {
			continue
		}
		overlay := schema.SurfaceOverlay{}
		if semantics != nil {
			overlay = semantics.OverlayFor(item.ID)
		}
		if hasExcludedPrereq(semantics, overlay.Prereqs) {
			continue
		}

		argv := make([]string, 0, len(policy.ArgvPrefix)+len(item.ContextArgv)+1+len(suffix))
		argv = append(argv, policy.ArgvPrefix...)
		argv = append(argv, item.ContextArgv...)
		argv = append(argv, item.ID)
		argv = append(argv, suffix...)

		scenarios = append(scenarios, schema.Scenario{
			ID:     ScenarioIDFor(item.ID),
			Covers: []string{item.ID},
			Argv:   argv,
			Seed:   prereqSeed(semantics, overlay.Prereqs),
		})
	}
	return scenarios
}

// Excluded reports the set of surface ids excluded by a verification queue
// entry (see excludedSurfaceIDs) or by a prereq that auto-verify is not
// allowed to touch (one flagged exclude_from_auto_verify, or one whose
// category is interactive, network or privilege) — used by the ledger folder to classify a surface
// item's behavior status as `excluded` rather than `unverified`.
func Excluded(surface *schema.SurfaceInventory, semantics *schema.Semantics, policy schema.VerificationPolicy, queue []schema.QueueEntry) map[string]bool {
	out := excludedSurfaceIDs(queue)
	if surface == nil {
		return out
	}
	for _, item := range surface.Items {
		if out[item.ID] {
			continue
		}
		overlay := schema.SurfaceOverlay{}
		if semantics != nil {
			overlay = semantics.OverlayFor(item.ID)
		}
		if hasExcludedPrereq(semantics, overlay.Prereqs) {
			out[item.ID] = true
		}
	}
	return out
}

func excludedSurfaceIDs(queue []schema.QueueEntry) map[string]bool {
	out := make(map[string]bool, len(queue))
	for _, q := range queue {
		if q.Intent == "exclude" && len(q.Prereqs) > 0 {
			out[q.SurfaceID] = true
		}
	}
	return out
}

func hasExcludedPrereq(semantics *schema.Semantics, tags []string) bool {
	if semantics == nil {
		return false
	}
	for _, tag := range tags {
		if def, ok := semantics.Prereqs[tag]; ok && def.ExcludeFromAutoVerify {
			return true
		}
	}
	for _, cat := range semantics.PrereqCategories(tags) {
		switch cat {
		case "interactive", "network", "privilege":
			return true
		}
	}
	return false
}

func prereqSeed(semantics *schema.Semantics, tags []string) *schema.SeedSpec {
	if semantics == nil {
		return nil
	}
	for _, tag := range tags {
		if def, ok := semantics.Prereqs[tag]; ok && def.Seed != nil {
			return def.Seed
		}
	}
	return nil
}

// kindMatches classifies a surface item as "option" (any help form begins
// with "-") or "subcommand" (otherwise) and checks it against the policy's
// requested kinds. An empty Kinds list matches everything.
func kindMatches(item schema.SurfaceItem, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	kind := "subcommand"
	for _, f := range item.Forms {
		if strings.HasPrefix(strings.TrimSpace(f), "-") {
			kind = "option"
			break
		}
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
