package schema

import "encoding/json"

// ActionKind is the top-level shape of the single recommended next action.
type ActionKind string

const (
	ActionRunCommand ActionKind = "run_command"
	ActionEditFile   ActionKind = "edit_file"
	ActionComplete   ActionKind = "complete"
)

// EditStrategy names how an edit_file next action should be applied.
type EditStrategy string

const (
	EditReplaceFile            EditStrategy = "replace_file"
	EditMergeBehaviorScenarios EditStrategy = "merge_behavior_scenarios"
)

// NextAction is the single deterministic recommendation emitted by status.
type NextAction struct {
	Kind         ActionKind      `json:"kind"`
	Reason       string          `json:"reason"`
	Command      string          `json:"command,omitempty"`
	FilePath     string          `json:"file_path,omitempty"`
	EditStrategy EditStrategy    `json:"edit_strategy,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	SurfaceID    string          `json:"surface_id,omitempty"`
}

// Decision is the top-level status payload verdict.
type Decision string

const (
	DecisionComplete   Decision = "complete"
	DecisionIncomplete Decision = "incomplete"
	DecisionBlocked    Decision = "blocked"
)
