// Package rules compiles pack-owned verification predicates
// (enrich/semantics.json's accepted/rejected rule lists) together with
// scenario coverage into a small Datalog program evaluated by Google
// Mangle, and exposes the join results the ledger folder needs: which
// surface ids have an accepted-by-rule or rejected-by-rule covering
// scenario. Matching an individual rule's predicates (exit code, signal,
// stdout/stderr contains/regex) against one scenario result is plain Go
// (match.go) — Mangle's job is the relational part a hand-rolled loop would
// otherwise have to reinvent: joining each scenario's classified outcome
// against the (possibly many-to-one) coverage relation to a surface id.
package rules

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"

	"bman/internal/logging"
)

// program is the fixed schema every Engine loads: extensional facts the
// caller inserts (scenario_result, covers, accepted_outcome) plus the
// intensional predicates the ledger folder queries.
const program = `
Decl scenario_result(ScenarioId, ExitCode, TimedOut, InfraError)
  descr [mode("-", "-", "-", "-")].
Decl covers(ScenarioId, SurfaceId)
  descr [mode("-", "-")].
Decl accepted_outcome(ScenarioId, Outcome)
  descr [mode("-", "-")].

Decl accepted_for(SurfaceId) descr [mode("-")].
Decl rejected_for(SurfaceId) descr [mode("-")].
Decl covered(SurfaceId) descr [mode("-")].
Decl ran(SurfaceId) descr [mode("-")].

accepted_for(SurfaceId) :- covers(ScenarioId, SurfaceId), accepted_outcome(ScenarioId, /accepted).
rejected_for(SurfaceId) :- covers(ScenarioId, SurfaceId), accepted_outcome(ScenarioId, /rejected).
covered(SurfaceId) :- covers(ScenarioId, SurfaceId).
ran(SurfaceId) :- covers(ScenarioId, SurfaceId), scenario_result(ScenarioId, _, _, _).
`

// Engine is a one-shot Mangle program instance: built fresh for one ledger
// fold, fed every scenario's coverage and classified outcome, queried for
// the derived predicates, then discarded.
type Engine struct {
	mu          sync.Mutex
	store       factstore.ConcurrentFactStore
	queryCtx    *mengine.QueryContext
	predicates  map[string]ast.PredicateSym
	programInfo *analysis.ProgramInfo
}

// NewEngine parses the fixed schema and returns a ready-to-populate engine.
func NewEngine() (*Engine, error) {
	unit, err := parse.Unit(bytes.NewReader([]byte(program)))
	if err != nil {
		return nil, fmt.Errorf("rules: parse program: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("rules: analyze program: %w", err)
	}

	predicates := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		predicates[sym.Symbol] = sym
		predToDecl[sym] = decl
	}
	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	store := factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore())
	return &Engine{
		store:       store,
		programInfo: programInfo,
		predicates:  predicates,
		queryCtx: &mengine.QueryContext{
			PredToRules: predToRules,
			PredToDecl:  predToDecl,
			Store:       store,
		},
	}, nil
}

// AddScenarioResult records one scenario's outcome facts.
func (e *Engine) AddScenarioResult(scenarioID string, exitCode int, timedOut bool, infraError string) error {
	return e.addAtom("scenario_result", scenarioID, exitCode, timedOut, infraError)
}

// AddCoverage records that scenarioID covers surfaceID.
func (e *Engine) AddCoverage(scenarioID, surfaceID string) error {
	return e.addAtom("covers", scenarioID, surfaceID)
}

// AddOutcome records a scenario's rule-classified outcome ("accepted",
// "rejected", or "inconclusive") as a Mangle name constant.
func (e *Engine) AddOutcome(scenarioID string, outcome Outcome) error {
	return e.addAtom("accepted_outcome", scenarioID, "/"+string(outcome))
}

func (e *Engine) addAtom(predicate string, args ...interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sym, ok := e.predicates[predicate]
	if !ok {
		return fmt.Errorf("rules: predicate %q not declared", predicate)
	}
	terms := make([]ast.BaseTerm, len(args))
	for i, a := range args {
		t, err := toTerm(a)
		if err != nil {
			return fmt.Errorf("rules: %s arg %d: %w", predicate, i, err)
		}
		terms[i] = t
	}
	return e.store.Add(ast.Atom{Predicate: sym, Args: terms})
}

func toTerm(v interface{}) (ast.BaseTerm, error) {
	switch x := v.(type) {
	case string:
		if len(x) > 0 && x[0] == '/' {
			return ast.Name(x)
		}
		return ast.String(x), nil
	case int:
		return ast.Number(int64(x)), nil
	case bool:
		if x {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	default:
		return nil, fmt.Errorf("unsupported term type %T", v)
	}
}

// Surfaces holds the derived per-surface predicates the ledger folder reads
// after evaluation.
type Surfaces struct {
	Accepted map[string]bool
	Rejected map[string]bool
	Covered  map[string]bool
	Ran      map[string]bool
}

// Evaluate runs the fixed-point computation and queries every derived
// predicate, returning the full set of surface ids satisfying each one.
func (e *Engine) Evaluate(ctx context.Context) (*Surfaces, error) {
	log := logging.For(logging.CategoryRules)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := mengine.EvalProgramWithStats(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("rules: evaluate program: %w", err)
	}

	out := &Surfaces{
		Accepted: map[string]bool{},
		Rejected: map[string]bool{},
		Covered:  map[string]bool{},
		Ran:      map[string]bool{},
	}
	targets := []struct {
		name string
		dst  map[string]bool
	}{
		{"accepted_for", out.Accepted},
		{"rejected_for", out.Rejected},
		{"covered", out.Covered},
		{"ran", out.Ran},
	}
	for _, target := range targets {
		ids, err := e.queryUnary(ctx, target.name)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			target.dst[id] = true
		}
	}
	log.Debug("evaluated verification program", map[string]interface{}{
		"accepted": len(out.Accepted), "rejected": len(out.Rejected),
	})
	return out, nil
}

// queryUnary evaluates a 1-arity derived predicate and returns every bound
// string value.
func (e *Engine) queryUnary(ctx context.Context, predicate string) ([]string, error) {
	sym, ok := e.predicates[predicate]
	if !ok {
		return nil, fmt.Errorf("rules: predicate %q not declared", predicate)
	}
	decl := e.queryCtx.PredToDecl[sym]
	if decl == nil || len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("rules: predicate %q has no modes", predicate)
	}
	mode := decl.Modes()[0]

	atom := ast.Atom{Predicate: sym, Args: []ast.BaseTerm{ast.Variable{Symbol: "X"}}}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ids []string
	err := e.queryCtx.EvalQuery(atom, mode, unionfind.New(), func(fact ast.Atom) error {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}
		if len(fact.Args) == 0 {
			return nil
		}
		if c, ok := fact.Args[0].(ast.Constant); ok {
			ids = append(ids, c.Symbol)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rules: query %q: %w", predicate, err)
	}
	return ids, nil
}
