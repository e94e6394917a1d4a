package lmauthor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptConfig is the optional, pack-authored preamble apply --lm prepends
// to a next action's own reason/content before handing the whole thing to
// the configured LM command. A pack with no lm_prompt.yaml gets the bare
// reason/content; this only lets a pack author add standing instructions
// (house style, naming conventions, things never to touch) once instead of
// repeating them in every scenario's description.
type PromptConfig struct {
	Preamble string   `yaml:"preamble"`
	Guidance []string `yaml:"guidance,omitempty"`
}

// LoadPromptConfig reads path as YAML, returning a nil config (not an
// error) if the file doesn't exist.
func LoadPromptConfig(path string) (*PromptConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lmauthor: read prompt config %s: %w", path, err)
	}
	var cfg PromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("lmauthor: parse prompt config %s: %w", path, err)
	}
	return &cfg, nil
}

// Render assembles the final prompt text: preamble, then one bullet per
// guidance line, then a blank line, then the next action's reason and raw
// content. A nil config renders just reason and content, unchanged from
// the pre-PromptConfig behavior.
func (c *PromptConfig) Render(reason, content string) string {
	var b strings.Builder
	if c != nil {
		if c.Preamble != "" {
			b.WriteString(c.Preamble)
			b.WriteString("\n")
		}
		for _, g := range c.Guidance {
			b.WriteString("- ")
			b.WriteString(g)
			b.WriteString("\n")
		}
		if c.Preamble != "" || len(c.Guidance) > 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString(reason)
	b.WriteString("\n\n")
	b.WriteString(content)
	return b.String()
}
