package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bman/internal/lock"
	"bman/internal/pack"
	"bman/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Hash doc-pack inputs and refresh enrich/lock.json (debug)",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := openPack()
	if err != nil {
		return err
	}
	if _, err := loadPackInputs(p); err != nil {
		return err
	}

	files, err := lock.InputFiles(p)
	if err != nil {
		return err
	}
	l, err := lock.Compute(p, files, time.Now().Unix())
	if err != nil {
		return err
	}
	if err := lock.Write(p, l); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "validated %d input files, lock refreshed\n", len(l.Entries))
	return nil
}

// packInputs bundles the four authored/validated files every later command
// needs, loaded and validated together so a single bad file fails fast with
// a *schema.Error before anything downstream runs.
type packInputs struct {
	config    *schema.Config
	plan      *schema.ScenarioPlan
	semantics *schema.Semantics
	surface   *schema.SurfaceInventory
}

func loadPackInputs(p *pack.Pack) (*packInputs, error) {
	configPath, err := pack.Resolve(p, pack.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg, err := schema.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	planPath, err := pack.Resolve(p, pack.ScenarioPlanPath)
	if err != nil {
		return nil, err
	}
	plan, err := schema.LoadScenarioPlan(planPath)
	if err != nil {
		return nil, err
	}
	semanticsPath, err := pack.Resolve(p, pack.SemanticsPath)
	if err != nil {
		return nil, err
	}
	semantics, err := schema.LoadSemantics(semanticsPath)
	if err != nil {
		return nil, err
	}
	surfacePath, err := pack.Resolve(p, pack.SurfaceInventoryPath)
	if err != nil {
		return nil, err
	}
	surface, err := schema.LoadSurfaceInventory(surfacePath)
	if err != nil {
		return nil, err
	}
	return &packInputs{config: cfg, plan: plan, semantics: semantics, surface: surface}, nil
}
