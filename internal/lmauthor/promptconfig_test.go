package lmauthor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPromptConfig_MissingFileIsNilNotError(t *testing.T) {
	cfg, err := LoadPromptConfig(filepath.Join(t.TempDir(), "lm_prompt.yaml"))
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestLoadPromptConfig_ParsesPreambleAndGuidance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lm_prompt.yaml")
	content := "preamble: Keep scenarios deterministic.\nguidance:\n  - never add network-dependent scenarios\n  - prefer short argv\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadPromptConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "Keep scenarios deterministic.", cfg.Preamble)
	require.Equal(t, []string{"never add network-dependent scenarios", "prefer short argv"}, cfg.Guidance)
}

func TestPromptConfig_RenderNilFallsBackToBareReasonContent(t *testing.T) {
	var cfg *PromptConfig
	got := cfg.Render("reason text", "content text")
	require.Equal(t, "reason text\n\ncontent text", got)
}

func TestPromptConfig_RenderIncludesPreambleAndGuidance(t *testing.T) {
	cfg := &PromptConfig{
		Preamble: "House rules:",
		Guidance: []string{"one", "two"},
	}
	got := cfg.Render("reason text", "content text")
	want := "House rules:\n- one\n- two\n\nreason text\n\ncontent text"
	require.Equal(t, want, got)
}
