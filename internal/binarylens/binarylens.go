// Package binarylens adapts the external binary_lens tool: `bman init` shells
// out to it to produce the initial pack skeleton (a seed surface inventory
// plus a path to the facts it extracted), and every `bman apply` cycle runs
// it again to re-render the surface inventory. bman never reimplements
// binary introspection itself. Output is parsed through the same strict,
// unknown-field-rejecting decoder every other pack input uses.
package binarylens

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"bman/internal/bmanconfig"
	"bman/internal/logging"
	"bman/internal/schema"
)

const (
	// defaultCommand is the name binary_lens is expected to resolve to on
	// PATH when no override is configured.
	defaultCommand = "binary_lens"
	defaultTimeout = 30 * time.Second
	mockFileName   = "binary_lens.json"
)

// Skeleton is the pack seed binary_lens produces for a freshly inited
// doc-pack: a first-pass surface inventory plus a pointer to whatever facts
// (e.g. parquet) it extracted alongside it. bman never reads FactsPath
// itself — it only records the path so later tooling (the query engine, the
// terminal inspector) can find it.
type Skeleton struct {
	Surface   schema.SurfaceInventory `json:"surface"`
	FactsPath string                  `json:"facts_path,omitempty"`
}

// Inspect runs binary_lens against binaryPath and returns the parsed
// skeleton. When env.MockStateDir is set, it reads <MockStateDir>/binary_lens.json
// instead of spawning the real tool, for tests and CI.
func Inspect(ctx context.Context, env bmanconfig.Env, binaryPath string) (*Skeleton, error) {
	log := logging.For(logging.CategoryBinaryLens)

	if env.MockStateDir != "" {
		return readMock(env.MockStateDir)
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, defaultCommand, "--binary", binaryPath, "--format", "json")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("binary_lens invocation failed", map[string]interface{}{
			"binary": binaryPath, "error": err.Error(), "stderr": stderr.String(),
		})
		return nil, fmt.Errorf("binarylens: run %s: %w (stderr: %s)", defaultCommand, err, stderr.String())
	}

	var skel Skeleton
	if err := schema.Decode(bytes.NewReader(stdout.Bytes()), &skel); err != nil {
		return nil, fmt.Errorf("binarylens: decode output: %w", err)
	}
	log.Info("binary_lens produced skeleton", map[string]interface{}{
		"binary": binaryPath, "surface_items": len(skel.Surface.Items),
	})
	return &skel, nil
}

// readMock loads a canned skeleton from disk instead of spawning binary_lens.
func readMock(mockDir string) (*Skeleton, error) {
	path := filepath.Join(mockDir, mockFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("binarylens: open mock fixture %s: %w", path, err)
	}
	defer f.Close()

	var skel Skeleton
	if err := schema.Decode(f, &skel); err != nil {
		return nil, fmt.Errorf("binarylens: decode mock fixture %s: %w", path, err)
	}
	return &skel, nil
}
