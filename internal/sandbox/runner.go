package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
	"unicode/utf8"

	"bman/internal/logging"
	"bman/internal/schema"
)

const maxStdinBytes = 64 * 1024

// Runner is the default Executor: it runs the target binary directly (with
// best-effort namespace isolation on Linux) inside a freshly materialized
// temp directory seeded per-scenario.
type Runner struct {
	// WorkDirRoot is the parent of each scenario's run directory. Empty uses
	// os.TempDir().
	WorkDirRoot string
}

// NewRunner returns a Runner using the system temp directory.
func NewRunner() *Runner { return &Runner{} }

// Run executes req.Binary with req.Args inside an isolated run directory and
// returns exactly one evidence record. It returns a non-nil error only for
// sandbox setup failures (run directory creation, seed materialization) —
// everything else (timeout, non-zero exit, signal) is recorded in the
// returned ScenarioResult with a nil error, per spec.md §4.2.
func (r *Runner) Run(ctx context.Context, req Request) (*schema.ScenarioResult, error) {
	log := logging.For(logging.CategoryRunner)

	if len(req.Stdin) > maxStdinBytes {
		return nil, fmt.Errorf("sandbox: stdin exceeds %d bytes", maxStdinBytes)
	}
	if len(req.Stdin) > 0 && !utf8.Valid(req.Stdin) {
		return nil, fmt.Errorf("sandbox: stdin must be UTF-8")
	}

	root := r.WorkDirRoot
	if root == "" {
		root = os.TempDir()
	}
	runDir, err := os.MkdirTemp(root, "bman-run-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	if err := Materialize(runDir, req.Seed); err != nil {
		return nil, fmt.Errorf("sandbox: materialize seed: %w", err)
	}

	env := mergedEnviron(req.Env)
	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = 3
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Binary, req.Args...)
	cmd.Dir = runDir
	cmd.Env = env
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	} else {
		cmd.Stdin = nil // inherits /dev/null semantics via exec when unset on most platforms
	}

	stdout := newBoundedCapture(req.SnippetMaxBytes, req.SnippetMaxLines)
	stderr := newBoundedCapture(req.SnippetMaxBytes, req.SnippetMaxLines)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	sandboxFlags := applyIsolation(cmd, req.NoSandbox)

	startedAt := time.Now()
	runErr := cmd.Run()
	if runErr != nil && isPermissionDenied(runErr) {
		sandboxFlags = degradeIsolation(cmd)
		log.Warn("isolation degraded after permission error, retrying", map[string]interface{}{
			"scenario_id": req.ScenarioID,
		})
		startedAt = time.Now()
		runErr = cmd.Run()
	}

	result := &schema.ScenarioResult{
		ScenarioID:    req.ScenarioID,
		Argv:          append([]string{req.Binary}, req.Args...),
		Env:           req.Env,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Timestamp:     startedAt.UnixMilli(),
		SeedSignature: req.SeedSignature,
		EffectiveDefaults: schema.EffectiveDefaults{
			TimeoutSeconds:  timeout,
			SnippetMaxLines: req.SnippetMaxLines,
			SnippetMaxBytes: req.SnippetMaxBytes,
			SandboxFlags:    sandboxFlags,
		},
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		log.Warn("scenario timed out", map[string]interface{}{"scenario_id": req.ScenarioID, "timeout_s": timeout})
	case runErr == nil:
		result.ExitCode = 0
	default:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				result.ExitSignal = ws.Signal().String()
				result.ExitCode = -1
			}
		} else {
			result.InfraError = runErr.Error()
			log.Error("scenario infra error", map[string]interface{}{"scenario_id": req.ScenarioID, "error": runErr.Error()})
		}
	}

	result.FilesChecked = evaluateFileChecks(runDir, req.FileChecks)
	return result, nil
}

func mergedEnviron(overrides map[string]string) []string {
	merged := make(map[string]string, len(BaselineEnv)+len(overrides))
	for k, v := range BaselineEnv {
		merged[k] = v
	}
	if path := os.Getenv("PATH"); path != "" {
		merged["PATH"] = path
	}
	for k, v := range overrides {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

func isPermissionDenied(err error) bool {
	return err != nil && (isErrno(err, syscall.EPERM) || isErrno(err, syscall.EACCES))
}

func isErrno(err error, errno syscall.Errno) bool {
	for err != nil {
		if e, ok := err.(syscall.Errno); ok {
			return e == errno
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
