// Package main implements the bman CLI: init, apply, status, validate, plan,
// and merge-behavior-edit over a doc-pack directory. Command bodies live in
// one file per subcommand (init.go, apply.go, status.go, validate.go,
// plan.go, mergeedit.go); this file only wires the root command, global
// flags, and the two logging systems every subcommand shares.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bman/internal/logging"
)

var (
	docPack string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bman",
	Short: "bman turns an opaque CLI binary into a validated, evidence-linked documentation pack",
	Long: `bman is a deterministic enrichment engine. Given a target binary and a
doc-pack directory, it discovers the binary's surface, runs scenarios against
it in a sandboxed runner, verifies the outcomes against pack-owned rules, and
renders man pages and a usage-lens summary from the resulting evidence.

Every run is driven by the doc-pack's own files (scenarios/plan.json,
enrich/semantics.json, enrich/config.json) — bman never hardcodes anything
about a particular binary's shape.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		if docPack != "" {
			if err := logging.Initialize(docPack); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to initialize audit-trail logging: %v\n", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&docPack, "doc-pack", "", "doc-pack directory (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level CLI logging")

	rootCmd.AddCommand(initCmd, validateCmd, planCmd, applyCmd, statusCmd, mergeBehaviorEditCmd)
}

func main() {
	err := rootCmd.Execute()
	os.Exit(report(err))
}

// report prints a structured error to stderr when err is non-nil and
// returns the exit code the error taxonomy maps to (spec.md §7): 1 for a
// configuration/input error, 3 for a transaction integrity failure, 2 for
// anything else (an incomplete-state recommendation the caller should act
// on), 0 when err is nil.
func report(err error) int {
	if err == nil {
		return 0
	}
	code := exitCodeFor(err)
	fmt.Fprintln(os.Stderr, errorJSON(code, err))
	return code
}
