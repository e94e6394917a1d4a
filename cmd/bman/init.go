package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bman/internal/binarylens"
	"bman/internal/bmanconfig"
	"bman/internal/pack"
	"bman/internal/schema"
)

var (
	initBinary string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a doc-pack for a target binary",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initBinary, "binary", "", "path or PATH-resolvable name of the target binary (required)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "reinitialize an already-initialized doc-pack")
}

func runInit(cmd *cobra.Command, args []string) error {
	if docPack == "" {
		return &schema.Error{Path: "--doc-pack", Err: fmt.Errorf("required")}
	}
	if initBinary == "" {
		return &schema.Error{Path: "--binary", Err: fmt.Errorf("required")}
	}
	if err := os.MkdirAll(docPack, 0o755); err != nil {
		return fmt.Errorf("init: create doc-pack directory: %w", err)
	}
	p, err := pack.Open(docPack)
	if err != nil {
		return err
	}

	configPath, err := pack.Resolve(p, pack.ConfigPath)
	if err != nil {
		return err
	}
	if !initForce {
		if exists, err := pack.Exists(p, pack.ConfigPath); err != nil {
			return err
		} else if exists {
			return &schema.Error{Path: configPath, Err: fmt.Errorf("doc-pack is already initialized, pass --force to reinitialize")}
		}
	}

	env := bmanconfig.FromEnv()
	skeleton, err := binarylens.Inspect(context.Background(), env, initBinary)
	if err != nil {
		return &schema.Error{Path: initBinary, Err: err}
	}

	if err := pack.EnsureDirs(p); err != nil {
		return err
	}

	cfg := schema.Config{
		Requirements:      []schema.Requirement{schema.RequireSurface, schema.RequireVerification},
		VerificationTier:  schema.TierAccepted,
		UsageLensTemplate: "usage_lens",
		BinaryPath:        initBinary,
	}
	semantics := schema.Semantics{}
	plan := schema.ScenarioPlan{
		Defaults: schema.DefaultDefaults(),
		Verification: schema.Verification{
			Policy: schema.VerificationPolicy{
				Kinds:              []string{"option", "subcommand"},
				MaxNewRunsPerApply: 20,
				ArgvPrefix:         []string{initBinary},
			},
		},
		Scenarios: []schema.Scenario{
			{ID: "help::root", Argv: []string{initBinary, "--help"}},
		},
	}

	if err := schema.WriteFile(configPath, cfg); err != nil {
		return err
	}
	semanticsPath, err := pack.Resolve(p, pack.SemanticsPath)
	if err != nil {
		return err
	}
	if err := schema.WriteFile(semanticsPath, semantics); err != nil {
		return err
	}
	planPath, err := pack.Resolve(p, pack.ScenarioPlanPath)
	if err != nil {
		return err
	}
	if err := schema.WriteFile(planPath, plan); err != nil {
		return err
	}
	surfacePath, err := pack.Resolve(p, pack.SurfaceInventoryPath)
	if err != nil {
		return err
	}
	if err := schema.WriteFile(surfacePath, skeleton.Surface); err != nil {
		return err
	}
	usageLensPath, err := pack.Resolve(p, "queries/usage_lens.sql")
	if err != nil {
		return err
	}
	if err := os.WriteFile(usageLensPath, []byte(defaultUsageLensTemplate), 0o644); err != nil {
		return fmt.Errorf("init: write default usage lens template: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized doc-pack at %s for %s (%d surface items discovered)\n",
		p.Root(), initBinary, len(skeleton.Surface.Items))
	fmt.Fprintln(cmd.OutOrStdout(), "run `bman apply --doc-pack "+docPack+"` to begin enrichment")
	return nil
}
