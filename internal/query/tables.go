package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bman/internal/schema"
)

// Snapshot is the evidence a caller wants visible to query templates. Any
// field left nil loads as an empty table, never an error — a fresh pack with
// no evidence yet must still be queryable.
type Snapshot struct {
	Surface  *schema.SurfaceInventory
	Evidence []*schema.ScenarioResult
	Index    *schema.EvidenceIndex
	Ledger   *schema.Ledger
}

// LoadSnapshot creates the four evidence tables the query templates are
// written against: surface_items, scenario_results, evidence_index, and
// ledger_rows. Table and column names are part of the
// pack-author contract (documented in queries/README in a real pack) and
// must stay stable across releases.
func (e *Engine) LoadSnapshot(ctx context.Context, snap Snapshot) error {
	if err := e.createSchema(ctx); err != nil {
		return err
	}
	if err := e.loadSurfaceItems(ctx, snap.Surface); err != nil {
		return err
	}
	if err := e.loadScenarioResults(ctx, snap.Evidence); err != nil {
		return err
	}
	if err := e.loadEvidenceIndex(ctx, snap.Index); err != nil {
		return err
	}
	if err := e.loadLedgerRows(ctx, snap.Ledger); err != nil {
		return err
	}
	return nil
}

func (e *Engine) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE surface_items (
			id TEXT PRIMARY KEY, parent_id TEXT, context_argv TEXT,
			forms TEXT, value_arity TEXT, value_separator TEXT,
			description TEXT
		)`,
		`CREATE TABLE scenario_results (
			scenario_id TEXT PRIMARY KEY, exit_code INTEGER, exit_signal TEXT,
			timed_out INTEGER, stdout TEXT, stderr TEXT, timestamp INTEGER,
			seed_signature TEXT, infra_error TEXT
		)`,
		`CREATE TABLE evidence_index (
			scenario_id TEXT PRIMARY KEY, scenario_digest TEXT,
			last_pass INTEGER, last_run_at INTEGER, evidence_path TEXT
		)`,
		`CREATE TABLE ledger_rows (
			surface_id TEXT PRIMARY KEY, accepted TEXT, behavior TEXT,
			reason_code TEXT, excluded INTEGER, timed_out INTEGER
		)`,
	}
	for _, s := range stmts {
		if err := e.exec(ctx, s); err != nil {
			return fmt.Errorf("query: create schema: %w", err)
		}
	}
	return nil
}

func (e *Engine) loadSurfaceItems(ctx context.Context, inv *schema.SurfaceInventory) error {
	if inv == nil {
		return nil
	}
	for _, it := range inv.Items {
		argv, _ := json.Marshal(it.ContextArgv)
		forms, _ := json.Marshal(it.Forms)
		err := e.exec(ctx,
			`INSERT INTO surface_items (id, parent_id, context_argv, forms, value_arity, value_separator, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.ParentID, string(argv), string(forms),
			string(it.Invocation.ValueArity), string(it.Invocation.ValueSeparator), it.Description,
		)
		if err != nil {
			return fmt.Errorf("query: insert surface_items %q: %w", it.ID, err)
		}
	}
	return nil
}

func (e *Engine) loadScenarioResults(ctx context.Context, results []*schema.ScenarioResult) error {
	for _, r := range results {
		if r == nil {
			continue
		}
		err := e.exec(ctx,
			`INSERT INTO scenario_results
			 (scenario_id, exit_code, exit_signal, timed_out, stdout, stderr, timestamp, seed_signature, infra_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ScenarioID, r.ExitCode, r.ExitSignal, boolToInt(r.TimedOut),
			r.Stdout, r.Stderr, r.Timestamp, r.SeedSignature, r.InfraError,
		)
		if err != nil {
			return fmt.Errorf("query: insert scenario_results %q: %w", r.ScenarioID, err)
		}
	}
	return nil
}

func (e *Engine) loadEvidenceIndex(ctx context.Context, idx *schema.EvidenceIndex) error {
	if idx == nil {
		return nil
	}
	for _, entry := range idx.Entries {
		err := e.exec(ctx,
			`INSERT INTO evidence_index (scenario_id, scenario_digest, last_pass, last_run_at, evidence_path)
			 VALUES (?, ?, ?, ?, ?)`,
			entry.ScenarioID, entry.ScenarioDigest, boolToInt(entry.LastPass), entry.LastRunAt, entry.EvidencePath,
		)
		if err != nil {
			return fmt.Errorf("query: insert evidence_index %q: %w", entry.ScenarioID, err)
		}
	}
	return nil
}

func (e *Engine) loadLedgerRows(ctx context.Context, l *schema.Ledger) error {
	if l == nil {
		return nil
	}
	for _, row := range l.Rows {
		err := e.exec(ctx,
			`INSERT INTO ledger_rows (surface_id, accepted, behavior, reason_code, excluded, timed_out)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			row.SurfaceID, string(row.Accepted), string(row.Behavior), string(row.ReasonCode),
			boolToInt(row.Excluded), boolToInt(row.TimedOut),
		)
		if err != nil {
			return fmt.Errorf("query: insert ledger_rows %q: %w", row.SurfaceID, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// splitStatements divides a file of semicolon-separated SQL statements at
// every ";" and returns each non-empty piece, trimmed, in file order. It
// does not recognize "--" comments (a ";" inside one still splits) and
// does not choose which statement is the query.
func splitStatements(sqlText string) []string {
	var out []string
	for _, stmt := range strings.Split(sqlText, ";") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
