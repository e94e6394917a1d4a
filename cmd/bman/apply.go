package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bman/internal/autoverify"
	"bman/internal/binarylens"
	"bman/internal/bmanconfig"
	"bman/internal/incremental"
	"bman/internal/ledgerfold"
	"bman/internal/lmauthor"
	"bman/internal/lock"
	"bman/internal/manrender"
	"bman/internal/nextaction"
	"bman/internal/pack"
	"bman/internal/sandbox"
	"bman/internal/schema"
	"bman/internal/status"
	"bman/internal/txn"
	"bman/internal/workplan"
)

var (
	applyRerunAll    bool
	applyRerunFailed bool
	applyMaxCycles   int
	applyLM          string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run the apply cycle until the doc-pack is complete or stuck",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyRerunAll, "rerun-all", false, "re-run every scenario regardless of digest")
	applyCmd.Flags().BoolVar(&applyRerunFailed, "rerun-failed", false, "re-run scenarios whose last recorded evidence did not pass")
	applyCmd.Flags().IntVar(&applyMaxCycles, "max-cycles", 10, "maximum number of apply cycles to run in this invocation")
	applyCmd.Flags().StringVar(&applyLM, "lm", "", "command to invoke for LM-assisted authoring (overrides BMAN_LM_COMMAND)")
}

func runApply(cmd *cobra.Command, args []string) error {
	p, err := openPack()
	if err != nil {
		return err
	}
	env := bmanconfig.FromEnv()
	lmCommand := applyLM
	if lmCommand == "" {
		lmCommand = env.LMCommand
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing current cycle")
		cancel()
	}()

	for cycle := 0; cycle < applyMaxCycles; cycle++ {
		next, ran, err := applyCycle(ctx, p, env)
		if err != nil {
			return err
		}
		logger.Info("apply cycle complete", zap.Int("cycle", cycle), zap.Int("scenarios_run", ran), zap.String("next_action", string(next.Kind)))

		if next.Kind == schema.ActionComplete {
			fmt.Fprintln(cmd.OutOrStdout(), "complete: "+next.Reason)
			return nil
		}

		history, err := status.LoadHistory(p)
		if err != nil {
			return err
		}
		if status.IsStuck(next, history, stuckCycleLimit(p)) {
			return &incompleteError{next: next}
		}

		if next.Kind == schema.ActionEditFile && next.EditStrategy == schema.EditMergeBehaviorScenarios && lmCommand != "" {
			if err := authorWithLM(ctx, p, env, lmCommand, next); err != nil {
				return err
			}
			continue
		}
		if next.Kind == schema.ActionEditFile {
			return &incompleteError{next: next}
		}
		// ActionRunCommand: fall through to the next cycle.
	}

	next, err := computeNextActionOnly(p)
	if err != nil {
		return err
	}
	return &incompleteError{next: next}
}

// stuckCycleLimit re-reads config.json for its stuck_cycle_limit, cheaply
// re-deriving what applyCycle already loaded once per outer-loop iteration
// rather than threading it through applyCycle's return signature.
func stuckCycleLimit(p *pack.Pack) int {
	configPath, err := pack.Resolve(p, pack.ConfigPath)
	if err != nil {
		return 3
	}
	cfg, err := schema.LoadConfig(configPath)
	if err != nil {
		return 3
	}
	return cfg.EffectiveStuckCycleLimit()
}

func computeNextActionOnly(p *pack.Pack) (schema.NextAction, error) {
	in, err := loadPackInputs(p)
	if err != nil {
		return schema.NextAction{}, err
	}
	ledgerPath, err := pack.Resolve(p, pack.LedgerPath)
	if err != nil {
		return schema.NextAction{}, err
	}
	ledger, err := schema.LoadLedger(ledgerPath)
	if err != nil {
		return schema.NextAction{}, err
	}
	rendered, err := manRendered(p)
	if err != nil {
		return schema.NextAction{}, err
	}
	return nextaction.Decide(nextaction.Input{
		Ledger: ledger, Surface: in.surface, Plan: in.plan, Semantics: in.semantics,
		Config: in.config, LockStale: false, ManRendered: rendered,
	}), nil
}

// applyCycle runs exactly one validate/derive/execute/fold/commit pass and
// returns the next-action recommendation computed from the ledger it just
// produced.
func applyCycle(ctx context.Context, p *pack.Pack, env bmanconfig.Env) (schema.NextAction, int, error) {
	in, err := loadPackInputs(p)
	if err != nil {
		return schema.NextAction{}, 0, err
	}

	files, err := lock.InputFiles(p)
	if err != nil {
		return schema.NextAction{}, 0, err
	}
	oldLock, err := lock.Load(p)
	if err != nil {
		return schema.NextAction{}, 0, err
	}
	stale, _, err := lock.Stale(p, oldLock, files)
	if err != nil {
		return schema.NextAction{}, 0, err
	}
	currentLock := oldLock
	if stale {
		currentLock, err = lock.Compute(p, files, time.Now().Unix())
		if err != nil {
			return schema.NextAction{}, 0, err
		}
		if err := lock.Write(p, currentLock); err != nil {
			return schema.NextAction{}, 0, err
		}
	}

	tx, err := txn.Open(p, currentLock, files)
	if err != nil {
		return schema.NextAction{}, 0, err
	}

	// Skeleton actions from the authored plan, without auto-verify — those
	// depend on a surface inventory this cycle is about to re-render.
	actions := workplan.Derive(in.config, in.plan)

	skeleton, err := binarylens.Inspect(ctx, env, in.config.BinaryPath)
	if err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, 0, &schema.Error{Path: in.config.BinaryPath, Err: err}
	}
	surface := &skeleton.Surface
	if err := tx.Stage(pack.SurfaceInventoryPath, surface); err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, 0, err
	}

	excluded := autoverify.Excluded(surface, in.semantics, in.plan.Verification.Policy, in.plan.Verification.Queue)
	autoScenarios := autoverify.Expand(surface, in.semantics, in.plan.Verification.Policy, in.plan.Verification.Queue)
	autoIDs := make([]string, 0, len(autoScenarios))
	for _, s := range autoScenarios {
		autoIDs = append(autoIDs, s.ID)
	}
	actions = workplan.InsertAutoVerify(actions, autoIDs)

	effectivePlan := schema.ScenarioPlan{
		Defaults:     in.plan.Defaults,
		Verification: in.plan.Verification,
		Scenarios:    append(append([]schema.Scenario{}, in.plan.Scenarios...), autoScenarios...),
	}

	runIDs := workplan.RunScenarioIDs(actions)
	scenarios := resolveScenarios(&effectivePlan, runIDs)

	idxPath, err := pack.Resolve(p, pack.EvidenceIndexPath)
	if err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, 0, err
	}
	idx, err := schema.LoadEvidenceIndex(idxPath)
	if err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, 0, err
	}

	mode := incremental.RerunMode{All: applyRerunAll, Failed: applyRerunFailed}
	decisions := incremental.DecideAll(scenarios, effectivePlan.Defaults, idx, mode)
	var mustRun []incremental.Decision
	for _, d := range decisions {
		if d.MustRun {
			mustRun = append(mustRun, d)
		}
	}
	runNow, deferred := incremental.Batch(mustRun, in.plan.Verification.Policy.MaxNewRunsPerApply)
	if len(deferred) > 0 {
		logger.Debug("deferred scenarios to a later apply", zap.Strings("scenario_ids", deferred))
	}
	runSet := make(map[string]bool, len(runNow))
	for _, id := range runNow {
		runSet[id] = true
	}

	evidence, err := loadAllEvidence(p, idx)
	if err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, 0, err
	}

	runner := sandbox.NewRunner()
	ranCount := 0
	var foldedLedger *schema.Ledger
	for _, action := range actions {
		switch action.Kind {
		case workplan.ActionRunScenario:
			if !runSet[action.ScenarioID] {
				continue
			}
			s, ok := effectivePlan.ByID(action.ScenarioID)
			if !ok {
				continue
			}
			req := buildRequest(s, effectivePlan.Defaults)
			res, err := runner.Run(ctx, req)
			if err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, fmt.Errorf("apply: run scenario %s: %w", s.ID, err)
			}
			evidencePath, err := pack.Resolve(p, pack.ScenarioEvidencePath(s.ID))
			if err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, err
			}
			if err := schema.WriteFile(evidencePath, res); err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, err
			}
			d, _ := decisionFor(decisions, s.ID)
			idx.Put(schema.EvidenceIndexEntry{
				ScenarioID: s.ID, ScenarioDigest: d.Digest, LastPass: res.Passed(),
				LastRunAt: time.Now().Unix(), EvidencePath: pack.ScenarioEvidencePath(s.ID),
			})
			evidence[s.ID] = res
			ranCount++

		case workplan.ActionRenderSurface:
			// Already rendered and staged above, ahead of auto-verify
			// expansion; nothing left to do when the ordered walk reaches it.

		case workplan.ActionRenderMan:
			out, err := manrender.Render(ctx, env, manrender.Input{
				BinaryName: in.config.BinaryPath, Surface: *surface, Semantics: *in.semantics,
			})
			if err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, err
			}
			for name, body := range out.Pages {
				if err := tx.StageBytes("derived/man/"+name, body); err != nil {
					_ = tx.Abort()
					return schema.NextAction{}, ranCount, err
				}
			}

		case workplan.ActionFoldLedger:
			ledger, err := ledgerfold.Fold(ctx, ledgerfold.Input{
				Surface: surface, Plan: &effectivePlan, Semantics: in.semantics,
				Evidence: evidence, Excluded: excluded, Now: time.Now().Unix(),
			})
			if err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, err
			}
			if err := tx.Stage(pack.LedgerPath, ledger); err != nil {
				_ = tx.Abort()
				return schema.NextAction{}, ranCount, err
			}
			foldedLedger = ledger
		}
	}

	if err := tx.Stage(pack.EvidenceIndexPath, idx); err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, ranCount, err
	}

	snapshot := schema.PlanSnapshot{GeneratedAt: time.Now().Unix(), LockHash: lockHash(currentLock)}
	for _, a := range actions {
		snapshot.Actions = append(snapshot.Actions, a.ToSchema())
	}
	if err := tx.Stage(pack.PlanOutPath, snapshot); err != nil {
		_ = tx.Abort()
		return schema.NextAction{}, ranCount, err
	}

	if foldedLedger == nil {
		foldedLedger = &schema.Ledger{}
	}
	// Man pages render unconditionally within this same cycle whenever
	// config requires them, so by the time this commit lands ManRendered
	// tracks that requirement directly rather than the pre-cycle disk state.
	rendered := in.config.Requires(schema.RequireMan)
	next := nextaction.Decide(nextaction.Input{
		Ledger: foldedLedger, Surface: surface, Plan: in.plan, Semantics: in.semantics,
		Config: in.config, LockStale: false, ManRendered: rendered,
	})

	event := schema.HistoryEvent{
		Timestamp: time.Now().Unix(), Op: "apply", Result: "success",
		TransactionID: tx.ID, ScenariosRun: ranCount,
		NextActionKind: string(next.Kind), NextActionTarget: next.SurfaceID,
	}
	if err := tx.Commit(event); err != nil {
		return schema.NextAction{}, ranCount, err
	}
	return next, ranCount, nil
}

func decisionFor(decisions []incremental.Decision, id string) (incremental.Decision, bool) {
	for _, d := range decisions {
		if d.ScenarioID == id {
			return d, true
		}
	}
	return incremental.Decision{}, false
}

func resolveScenarios(plan *schema.ScenarioPlan, ids []string) []schema.Scenario {
	out := make([]schema.Scenario, 0, len(ids))
	for _, id := range ids {
		if s, ok := plan.ByID(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func loadAllEvidence(p *pack.Pack, idx *schema.EvidenceIndex) (map[string]*schema.ScenarioResult, error) {
	out := make(map[string]*schema.ScenarioResult, len(idx.Entries))
	for id, entry := range idx.Entries {
		full, err := pack.Resolve(p, entry.EvidencePath)
		if err != nil {
			return nil, err
		}
		res, err := schema.LoadScenarioResult(full)
		if err != nil {
			continue // evidence file missing/corrupt: treated as not-yet-run, not fatal
		}
		out[id] = res
	}
	return out, nil
}

// buildRequest merges a scenario's overrides onto plan defaults the same
// way internal/digest computes a scenario's digest, so the digest that
// gated this run and the request that executes it never disagree.
func buildRequest(s schema.Scenario, defaults schema.Defaults) sandbox.Request {
	env := make(map[string]string, len(defaults.Env)+len(s.Env))
	for k, v := range defaults.Env {
		env[k] = v
	}
	for k, v := range s.Env {
		env[k] = v
	}

	timeout := defaults.TimeoutSeconds
	if s.TimeoutSeconds != nil {
		timeout = *s.TimeoutSeconds
	}
	seed := s.Seed
	if seed == nil {
		seed = defaults.Seed
	}

	var binary string
	var binArgs []string
	if len(s.Argv) > 0 {
		binary = s.Argv[0]
		binArgs = s.Argv[1:]
	}

	return sandbox.Request{
		ScenarioID:      s.ID,
		Binary:          binary,
		Args:            binArgs,
		Env:             env,
		Seed:            seed,
		Stdin:           []byte(s.Stdin),
		TimeoutSeconds:  timeout,
		SnippetMaxLines: defaults.SnippetMaxLines,
		SnippetMaxBytes: defaults.SnippetMaxBytes,
		NoSandbox:       defaults.NoSandbox,
		NetMode:         defaults.NetMode,
		SeedSignature:   seedSignature(seed),
	}
}

func seedSignature(seed *schema.SeedSpec) string {
	data, err := json.Marshal(seed)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// authorWithLM proposes a merge patch from the configured LM command and
// applies it to scenarios/plan.json directly. This is the only shape
// apply's `--lm` flag is allowed to touch: merge_behavior_scenarios edits,
// the same scoped patch a human submits via merge-behavior-edit. An
// edit_file action targeting semantics.json (replace_file) is never
// proposed to the LM — that would make bman itself the author of semantic
// interpretation, which the engine leaves entirely pack-owned.
func authorWithLM(ctx context.Context, p *pack.Pack, env bmanconfig.Env, command string, next schema.NextAction) error {
	promptPath, err := pack.Resolve(p, pack.LMPromptPath)
	if err != nil {
		return err
	}
	promptCfg, err := lmauthor.LoadPromptConfig(promptPath)
	if err != nil {
		return err
	}
	prompt := promptCfg.Render(next.Reason, string(next.Content))

	patch, err := lmauthor.Propose(ctx, env, command, prompt)
	if err != nil {
		return err
	}
	return applyMergePatch(p, patch)
}
