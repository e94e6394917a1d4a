package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bman/internal/binarylens"
	"bman/internal/pack"
	"bman/internal/schema"
)

func TestRunPlan(t *testing.T) {
	logger = zap.NewNop()

	mockDir := t.TempDir()
	writeMockSkeleton(t, mockDir, binarylens.Skeleton{
		Surface: schema.SurfaceInventory{
			Items: []schema.SurfaceItem{{ID: "option::--verbose", Forms: []string{"--verbose"}}},
		},
	})
	t.Setenv("BMAN_MOCK_STATE_DIR", mockDir)

	packDir := filepath.Join(t.TempDir(), "pack")
	docPack = packDir
	initBinary = "examplebin"
	defer func() { docPack = ""; initBinary = "" }()

	cmd := &cobra.Command{}
	if err := runInit(cmd, nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	if err := runPlan(cmd, nil); err != nil {
		t.Fatalf("runPlan() error = %v", err)
	}

	p, err := pack.Open(packDir)
	if err != nil {
		t.Fatalf("pack.Open: %v", err)
	}
	planOutPath, err := pack.Resolve(p, pack.PlanOutPath)
	if err != nil {
		t.Fatalf("pack.Resolve: %v", err)
	}
	var snapshot schema.PlanSnapshot
	if err := schema.LoadFile(planOutPath, &snapshot); err != nil {
		t.Fatalf("LoadFile(plan.out.json): %v", err)
	}
	if len(snapshot.Actions) == 0 {
		t.Fatal("expected at least one derived action")
	}
	if snapshot.LockHash == "" {
		t.Error("expected a non-empty lock hash")
	}

	var sawRunScenario bool
	for _, a := range snapshot.Actions {
		if a.Kind == "run_scenario" {
			sawRunScenario = true
		}
	}
	if !sawRunScenario {
		t.Error("expected at least one run_scenario action from the init-time help scenario")
	}
}
