package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"bman/internal/bmanconfig"
	"bman/internal/lock"
	"bman/internal/nextaction"
	"bman/internal/pack"
	"bman/internal/query"
	"bman/internal/schema"
	"bman/internal/status"
)

var (
	statusJSON bool
	statusFull bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the doc-pack's current decision and next action",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the machine-readable status payload")
	statusCmd.Flags().BoolVar(&statusFull, "full", false, "include per-surface triage and the usage lens summary")
}

// runStatus always returns nil once it manages to compute a payload — a
// decision of incomplete or blocked is reported content, not a command
// failure. Only a read/parse error on the doc-pack itself is an error here.
func runStatus(cmd *cobra.Command, args []string) error {
	p, err := openPack()
	if err != nil {
		return err
	}
	in, err := loadPackInputs(p)
	if err != nil {
		return err
	}

	ledgerPath, err := pack.Resolve(p, pack.LedgerPath)
	if err != nil {
		return err
	}
	ledger, err := schema.LoadLedger(ledgerPath)
	if err != nil {
		return err
	}

	files, err := lock.InputFiles(p)
	if err != nil {
		return err
	}
	currentLock, err := lock.Load(p)
	if err != nil {
		return err
	}
	stale, _, err := lock.Stale(p, currentLock, files)
	if err != nil {
		return err
	}

	rendered, err := manRendered(p)
	if err != nil {
		return err
	}

	next := nextaction.Decide(nextaction.Input{
		Ledger: ledger, Surface: in.surface, Plan: in.plan, Semantics: in.semantics,
		Config: in.config, LockStale: stale, ManRendered: rendered,
	})

	history, err := status.LoadHistory(p)
	if err != nil {
		return err
	}
	limit := in.config.EffectiveStuckCycleLimit()

	var payload schema.StatusPayload
	if statusFull {
		idxPath, err := pack.Resolve(p, pack.EvidenceIndexPath)
		if err != nil {
			return err
		}
		idx, err := schema.LoadEvidenceIndex(idxPath)
		if err != nil {
			return err
		}
		env := bmanconfig.FromEnv()
		summary, err := usageLensSummary(context.Background(), p, env, in.config.UsageLensTemplate, in.surface, idx, ledger)
		if err != nil {
			logger.Warn("usage lens summary unavailable", zap.Error(err))
			summary = ""
		}
		payload = status.Full(ledger, in.surface, next, history, limit, summary, idx)
	} else {
		payload = status.Slim(ledger, in.surface, next, history, limit)
	}

	if statusJSON {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "decision: %s\n", payload.Decision)
	fmt.Fprintf(cmd.OutOrStdout(), "surface: %d accepted_verified / %d behavior_verified / %d excluded / %d total\n",
		payload.Counts.AcceptedVerified, payload.Counts.BehaviorVerified, payload.Counts.Excluded, payload.Counts.SurfaceSize)
	if payload.IsStuck {
		fmt.Fprintln(cmd.OutOrStdout(), "stuck: same next action recurred without progress")
	}
	if payload.NextAction != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "next action: %s — %s\n", payload.NextAction.Kind, payload.NextAction.Reason)
	}
	if payload.Full != nil && payload.Full.UsageLensSummary != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "usage lens:")
		fmt.Fprintln(cmd.OutOrStdout(), payload.Full.UsageLensSummary)
	}
	return nil
}

// usageLensSummary runs every query template the pack defines concurrently,
// either against one shared in-memory snapshot (embedded engine) or through
// BMAN_QUERY_ENGINE_CMD, which receives only each template's name, SQL and
// parameters. Unlike scenario execution (always
// sequential, see internal/sandbox), these are independent read-only
// queries with no ordering requirement between them, so this is the one
// place status fans work out across goroutines, bounded by a small
// semaphore so a pack with many templates can't flood the query engine.
func usageLensSummary(ctx context.Context, p *pack.Pack, env bmanconfig.Env, usageLensName string, surface *schema.SurfaceInventory, idx *schema.EvidenceIndex, ledger *schema.Ledger) (string, error) {
	templates, err := query.LoadTemplates(p)
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", nil
	}

	var eng query.Adapter
	if env.QueryEngineCmd != "" {
		eng = query.NewSubprocessAdapter(env.QueryEngineCmd, nil, templates)
	} else {
		e, err := query.Open(ctx, templates)
		if err != nil {
			return "", err
		}
		defer e.Close()
		if err := e.LoadSnapshot(ctx, query.Snapshot{Surface: surface, Index: idx, Ledger: ledger}); err != nil {
			return "", err
		}
		eng = e
	}

	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string][]query.Row, len(names))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(4)
	for _, name := range names {
		name := name
		if err := sem.Acquire(gctx, 1); err != nil {
			return "", err
		}
		g.Go(func() error {
			defer sem.Release(1)
			rows, err := eng.Run(gctx, name)
			if err != nil {
				return fmt.Errorf("query template %q: %w", name, err)
			}
			mu.Lock()
			results[name] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	for _, name := range names {
		if name == usageLensName {
			continue
		}
		logger.Debug("diagnostic query template executed", zap.String("template", name), zap.Int("rows", len(results[name])))
	}

	return renderUsageLens(results[usageLensName]), nil
}

func renderUsageLens(rows []query.Row) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	var b strings.Builder
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
