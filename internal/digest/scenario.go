// Package digest computes the content-addressed scenario digest the
// incremental executor uses to decide whether a scenario needs to run again.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"bman/internal/schema"
)

// canonicalScenario is the digest input shape: every field that can affect a
// scenario's observable outcome, normalized so that irrelevant orderings
// (map iteration, seed entry order) never change the digest.
type canonicalScenario struct {
	Argv            []string          `json:"argv"`
	Env             map[string]string `json:"env"`
	Seed            []seedEntryView   `json:"seed"`
	StdinHash       string            `json:"stdin_hash"`
	TimeoutSeconds  float64           `json:"timeout_seconds"`
	SandboxFlags    []string          `json:"sandbox_flags"`
	SnippetMaxLines int               `json:"snippet_max_lines"`
	SnippetMaxBytes int               `json:"snippet_max_bytes"`
}

type seedEntryView struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Contents string `json:"contents,omitempty"`
	Target   string `json:"target,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// Scenario computes the hex-encoded sha256 digest of a scenario's effective
// inputs, after merging plan defaults. The result is stable regardless of
// seed.Entries ordering or env map iteration order (Testable Properties,
// spec.md §8).
func Scenario(s schema.Scenario, defaults schema.Defaults) string {
	env := mergeEnv(defaults.Env, s.Env)

	timeout := defaults.TimeoutSeconds
	if s.TimeoutSeconds != nil {
		timeout = *s.TimeoutSeconds
	}

	seed := s.Seed
	if seed == nil {
		seed = defaults.Seed
	}

	var sandboxFlags []string
	if defaults.NoSandbox {
		sandboxFlags = append(sandboxFlags, "no_sandbox")
	}
	if defaults.NoStrace {
		sandboxFlags = append(sandboxFlags, "no_strace")
	}
	if defaults.NetMode != "" {
		sandboxFlags = append(sandboxFlags, "net_mode="+defaults.NetMode)
	}
	sort.Strings(sandboxFlags)

	snippetLines := defaults.SnippetMaxLines
	snippetBytes := defaults.SnippetMaxBytes

	canon := canonicalScenario{
		Argv:            s.Argv,
		Env:             env,
		Seed:            seedView(seed),
		StdinHash:       hashString(s.Stdin),
		TimeoutSeconds:  timeout,
		SandboxFlags:    sandboxFlags,
		SnippetMaxLines: snippetLines,
		SnippetMaxBytes: snippetBytes,
	}

	// encoding/json sorts map keys already; sorting the seed slice below is
	// what actually makes this order-independent.
	data, err := json.Marshal(canon)
	if err != nil {
		// canonicalScenario contains no channels/funcs; Marshal cannot fail.
		panic("digest: marshal canonical scenario: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func mergeEnv(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func seedView(seed *schema.SeedSpec) []seedEntryView {
	if seed == nil {
		return nil
	}
	views := make([]seedEntryView, 0, len(seed.Entries))
	for _, e := range seed.Entries {
		views = append(views, seedEntryView{
			Path:     e.Path,
			Type:     string(e.Type),
			Contents: e.Contents,
			Target:   e.Target,
			Mode:     e.Mode,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Path < views[j].Path })
	return views
}

func hashString(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
