package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"bman/internal/logging"
)

// Adapter is the seam `bman status --full` (cmd/bman/status.go) codes
// against; it is satisfied by both the embedded *Engine and
// SubprocessAdapter so a pack can swap query engines without the caller
// knowing which one is running.
type Adapter interface {
	Run(ctx context.Context, name string, params ...interface{}) ([]Row, error)
}

var _ Adapter = (*Engine)(nil)

// subprocessRequest is the JSON document written to the external query
// engine's stdin.
type subprocessRequest struct {
	Template string        `json:"template"`
	SQL      string        `json:"sql"`
	Params   []interface{} `json:"params"`
}

// SubprocessAdapter runs every query by invoking an external command once
// per call, per spec.md's framing of SQL evaluation as "an external query
// engine that executes pack-owned templates and returns tabular rows" —
// the embedded SQLite engine is the default, but a pack or operator may
// prefer a standalone query binary (e.g. one backed by DuckDB), configured
// via BMAN_QUERY_ENGINE_CMD.
type SubprocessAdapter struct {
	Command   string
	Args      []string
	Templates map[string]string
	Timeout   time.Duration
}

// NewSubprocessAdapter builds an adapter that shells out to command for
// every Run call.
func NewSubprocessAdapter(command string, args []string, templates map[string]string) *SubprocessAdapter {
	return &SubprocessAdapter{Command: command, Args: args, Templates: templates, Timeout: 10 * time.Second}
}

// Run marshals the named template and params to JSON, writes it to the
// subprocess's stdin, and decodes a JSON array of row objects from stdout.
func (a *SubprocessAdapter) Run(ctx context.Context, name string, params ...interface{}) ([]Row, error) {
	log := logging.For(logging.CategoryQuery)
	stmt, ok := a.Templates[name]
	if !ok {
		return nil, fmt.Errorf("query: unknown template %q", name)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(subprocessRequest{Template: name, SQL: stmt, Params: params})
	if err != nil {
		return nil, fmt.Errorf("query: marshal subprocess request: %w", err)
	}

	cmd := exec.CommandContext(runCtx, a.Command, a.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("subprocess query engine failed", map[string]interface{}{
			"template": name, "error": err.Error(), "stderr": stderr.String(),
		})
		return nil, fmt.Errorf("query: subprocess engine %q failed: %w (stderr: %s)", a.Command, err, stderr.String())
	}

	var rows []Row
	if err := json.Unmarshal(stdout.Bytes(), &rows); err != nil {
		return nil, fmt.Errorf("query: decode subprocess engine output for %q: %w", name, err)
	}
	return rows, nil
}
