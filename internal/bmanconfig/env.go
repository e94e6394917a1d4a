// Package bmanconfig resolves the small set of environment variables bman
// reads at the CLI boundary. Everything that governs a single doc-pack's
// semantics lives in pack-owned JSON (see internal/schema) instead; these are
// purely host/operator-level settings.
package bmanconfig

import "os"

// Env holds the resolved environment for one invocation.
type Env struct {
	// Editor is the command the inspector (external) would open for manual
	// edits. FromEnv records it, but no bman command reads it (next-action
	// hints do not name an editor), and bman never shells out to it.
	Editor string

	// LMCommand, when non-empty, is the subprocess apply invokes for
	// LM-assisted authoring whenever `apply --lm` is not given a command of
	// its own. See internal/lmauthor.
	LMCommand string

	// MockStateDir, when set, redirects internal/binarylens, internal/lmauthor,
	// and internal/manrender to read canned fixture output instead of
	// spawning the real external tool. Used by tests and CI.
	MockStateDir string

	// QueryEngineCmd, when non-empty, replaces the embedded SQLite query
	// engine with a subprocess query engine: bman writes {template, sql,
	// params} as JSON to the command's stdin and reads back a JSON array of
	// row objects on stdout. No evidence tables are sent; the command reads
	// whatever data it needs itself. See internal/query.SubprocessAdapter.
	QueryEngineCmd string
}

// FromEnv reads the environment variables bman recognizes.
func FromEnv() Env {
	return Env{
		Editor:         os.Getenv("EDITOR"),
		LMCommand:      os.Getenv("BMAN_LM_COMMAND"),
		MockStateDir:   os.Getenv("BMAN_MOCK_STATE_DIR"),
		QueryEngineCmd: os.Getenv("BMAN_QUERY_ENGINE_CMD"),
	}
}
