package schema

import (
	"errors"
	"os"
)

func isNotExist(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return errors.Is(se.Err, os.ErrNotExist)
	}
	return errors.Is(err, os.ErrNotExist)
}

// EffectiveDefaults records what the runner actually used for a scenario
// execution, after merging scenario overrides onto plan defaults — needed so
// evidence is self-describing even if the plan's defaults later change.
type EffectiveDefaults struct {
	TimeoutSeconds  float64 `json:"timeout_seconds"`
	SnippetMaxLines int     `json:"snippet_max_lines"`
	SnippetMaxBytes int     `json:"snippet_max_bytes"`
	SandboxFlags    []string `json:"sandbox_flags,omitempty"`
}

// FileCheck is the post-run filesystem snapshot for one asserted path.
type FileCheck struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"` // file_exists, dir_exists, file_missing, dir_missing, file_contains
	Holds  bool   `json:"holds"`
	Needle string `json:"needle,omitempty"` // for file_contains
}

// ScenarioResult is one scenario execution's evidence record, written to
// inventory/scenarios/<id>.json.
type ScenarioResult struct {
	ScenarioID        string            `json:"scenario_id"`
	Argv              []string          `json:"argv"`
	Env               map[string]string `json:"env"`
	ExitCode          int               `json:"exit_code"`
	ExitSignal        string            `json:"exit_signal,omitempty"`
	TimedOut          bool              `json:"timed_out"`
	Stdout            string            `json:"stdout"`
	Stderr            string            `json:"stderr"`
	StdoutTruncated   bool              `json:"stdout_truncated"`
	StderrTruncated   bool              `json:"stderr_truncated"`
	Timestamp         int64             `json:"timestamp"`
	SeedSignature     string            `json:"seed_signature"`
	EffectiveDefaults EffectiveDefaults `json:"effective_defaults"`
	FilesChecked      []FileCheck       `json:"files_checked,omitempty"`
	InfraError        string            `json:"infra_error,omitempty"`
}

// Passed reports whether the scenario ran to completion without timing out
// or hitting an infrastructure error — it says nothing about exit code,
// which is a separate, rule-interpreted concern.
func (r ScenarioResult) Passed() bool {
	return !r.TimedOut && r.InfraError == ""
}

// EvidenceIndexEntry tracks the latest evidence for one scenario id.
type EvidenceIndexEntry struct {
	ScenarioID     string `json:"scenario_id"`
	ScenarioDigest string `json:"scenario_digest"`
	LastPass       bool   `json:"last_pass"`
	LastRunAt      int64  `json:"last_run_at"`
	EvidencePath   string `json:"evidence_path"`
}

// EvidenceIndex is inventory/evidence_index.json: scenario_id -> entry.
type EvidenceIndex struct {
	Entries map[string]EvidenceIndexEntry `json:"entries"`
}

// Get returns the entry for a scenario id, if present.
func (idx *EvidenceIndex) Get(id string) (EvidenceIndexEntry, bool) {
	if idx.Entries == nil {
		return EvidenceIndexEntry{}, false
	}
	e, ok := idx.Entries[id]
	return e, ok
}

// Put upserts an entry.
func (idx *EvidenceIndex) Put(e EvidenceIndexEntry) {
	if idx.Entries == nil {
		idx.Entries = make(map[string]EvidenceIndexEntry)
	}
	idx.Entries[e.ScenarioID] = e
}

// LoadEvidenceIndex reads inventory/evidence_index.json, returning an empty
// index if the file doesn't exist yet (a fresh pack has none).
func LoadEvidenceIndex(path string) (*EvidenceIndex, error) {
	idx := &EvidenceIndex{Entries: make(map[string]EvidenceIndexEntry)}
	if err := LoadFile(path, idx); err != nil {
		if isNotExist(err) {
			return idx, nil
		}
		return nil, err
	}
	return idx, nil
}

// LoadScenarioResult reads one evidence file.
func LoadScenarioResult(path string) (*ScenarioResult, error) {
	var r ScenarioResult
	if err := LoadFile(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
