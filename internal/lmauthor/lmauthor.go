// Package lmauthor adapts the external LM authoring subprocess: `apply --lm`
// pipes a prompt describing the current next action into whatever command
// BMAN_LM_COMMAND (or --lm's own argument) names, and treats its reply as
// untrusted text — parsed through the exact same strict MergePatch schema a
// human-authored merge-behavior-edit payload goes through, never trusted
// structurally just because it came from the configured collaborator.
package lmauthor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"bman/internal/bmanconfig"
	"bman/internal/logging"
	"bman/internal/schema"
)

const (
	defaultTimeout = 60 * time.Second
	mockFileName   = "lm_author.json"
)

// Propose runs command with prompt on stdin and decodes its reply as a
// MergePatch — the same shape merge-behavior-edit accepts from a human. When
// env.MockStateDir is set, it reads <MockStateDir>/lm_author.json instead of
// spawning a subprocess.
func Propose(ctx context.Context, env bmanconfig.Env, command string, prompt string) (*schema.MergePatch, error) {
	log := logging.For(logging.CategoryLM)

	if env.MockStateDir != "" {
		return readMock(env.MockStateDir)
	}
	if command == "" {
		return nil, fmt.Errorf("lmauthor: no LM command configured")
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", command)
	}
	cmd.Stdin = bytes.NewReader([]byte(prompt))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("LM authoring subprocess failed", map[string]interface{}{
			"command": command, "error": err.Error(), "stderr": stderr.String(),
		})
		return nil, fmt.Errorf("lmauthor: run %q: %w (stderr: %s)", command, err, stderr.String())
	}

	var patch schema.MergePatch
	if err := schema.Decode(bytes.NewReader(stdout.Bytes()), &patch); err != nil {
		return nil, fmt.Errorf("lmauthor: decode reply as merge patch: %w", err)
	}
	log.Info("LM authoring subprocess proposed a patch", map[string]interface{}{
		"command": command, "upsert_scenarios": len(patch.UpsertScenarios),
	})
	return &patch, nil
}

func readMock(mockDir string) (*schema.MergePatch, error) {
	path := filepath.Join(mockDir, mockFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lmauthor: open mock fixture %s: %w", path, err)
	}
	defer f.Close()

	var patch schema.MergePatch
	if err := schema.Decode(f, &patch); err != nil {
		return nil, fmt.Errorf("lmauthor: decode mock fixture %s: %w", path, err)
	}
	return &patch, nil
}
