// Package sandbox implements the scenario runner (C3): given one scenario's
// resolved (argv, env, seed, timeout, limits), execute the target binary in
// an isolated, environment-normalized working directory and produce exactly
// one evidence record.
package sandbox

import (
	"context"

	"bman/internal/schema"
)

// BaselineEnv is the environment every scenario run starts from before plan
// or scenario overrides are applied (spec.md §4.2).
var BaselineEnv = map[string]string{
	"LC_ALL":  "C",
	"LANG":    "C",
	"TERM":    "dumb",
	"NO_COLOR": "1",
	"PAGER":   "cat",
}

// Request is the fully-resolved input to one scenario execution: plan
// defaults already merged with scenario-level overrides.
type Request struct {
	ScenarioID      string
	Binary          string
	Args            []string
	Env             map[string]string
	Seed            *schema.SeedSpec
	Stdin           []byte
	TimeoutSeconds  float64
	SnippetMaxLines int
	SnippetMaxBytes int
	NoSandbox       bool
	NetMode         string
	FileChecks      []FileCheckSpec
	SeedSignature   string
}

// FileCheckSpec names a post-run filesystem assertion to evaluate, relative
// to the scenario's run directory.
type FileCheckSpec struct {
	Path   string
	Kind   string // file_exists, dir_exists, file_missing, dir_missing, file_contains
	Needle string // file_contains only
}

// Executor runs one scenario to completion. Implementations must never be
// called concurrently by this binary (see SPEC_FULL.md §5) — the interface
// itself makes no concurrency promises beyond being safe to construct once
// and reused sequentially.
type Executor interface {
	Run(ctx context.Context, req Request) (*schema.ScenarioResult, error)
}
