// Package manrender adapts the external man-page renderer: a deterministic,
// pack-external transform from surface inventory + semantics evidence into
// troff/man output, invoked by the render_man plan action. bman never
// formats troff itself — it builds the renderer's input and treats its
// stdout as an opaque set of pages to stage under derived/man/.
package manrender

import (
	"bytes"
	"context"
	"encoding/json"
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
	defaultCommand = "bman-man-render"
	defaultTimeout = 15 * time.Second
	mockFileName   = "man_render.json"
)

// Input is everything the renderer needs to produce deterministic man pages
// for one binary: the observed surface, the rule-derived semantics overlay,
// and the binary's own name (used for the page title and default filename).
type Input struct {
	BinaryName string                  `json:"binary_name"`
	Surface    schema.SurfaceInventory `json:"surface"`
	Semantics  schema.Semantics        `json:"semantics"`
}

// Output is the renderer's reply: one or more pages, keyed by the
// pack-relative filename under derived/man/ each should be staged at
// (e.g. "example.1").
type Output struct {
	Pages map[string][]byte `json:"pages"`
}

// Render invokes the external man-page renderer with in and returns its
// pages. When env.MockStateDir is set, it reads
// <MockStateDir>/man_render.json instead of spawning the real tool.
func Render(ctx context.Context, env bmanconfig.Env, in Input) (*Output, error) {
	log := logging.For(logging.CategoryManRender)

	if env.MockStateDir != "" {
		return readMock(env.MockStateDir)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("manrender: marshal input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, defaultCommand)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error("man renderer invocation failed", map[string]interface{}{
			"binary": in.BinaryName, "error": err.Error(), "stderr": stderr.String(),
		})
		return nil, fmt.Errorf("manrender: run %s: %w (stderr: %s)", defaultCommand, err, stderr.String())
	}

	var out rawOutput
	if err := schema.Decode(bytes.NewReader(stdout.Bytes()), &out); err != nil {
		return nil, fmt.Errorf("manrender: decode output: %w", err)
	}
	log.Info("man renderer produced pages", map[string]interface{}{
		"binary": in.BinaryName, "pages": len(out.Pages),
	})
	return out.toOutput(), nil
}

// rawOutput mirrors Output but with string page bodies, the shape the
// renderer actually writes as JSON (troff is text, not binary).
type rawOutput struct {
	Pages map[string]string `json:"pages"`
}

func (r rawOutput) toOutput() *Output {
	pages := make(map[string][]byte, len(r.Pages))
	for name, body := range r.Pages {
		pages[name] = []byte(body)
	}
	return &Output{Pages: pages}
}

func readMock(mockDir string) (*Output, error) {
	path := filepath.Join(mockDir, mockFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manrender: open mock fixture %s: %w", path, err)
	}
	defer f.Close()

	var out rawOutput
	if err := schema.Decode(f, &out); err != nil {
		return nil, fmt.Errorf("manrender: decode mock fixture %s: %w", path, err)
	}
	return out.toOutput(), nil
}
