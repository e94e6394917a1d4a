package schema

// Counts summarizes the ledger for the slim status payload.
type Counts struct {
	AcceptedVerified int `json:"accepted_verified"`
	BehaviorVerified int `json:"behavior_verified"`
	Excluded         int `json:"excluded"`
	SurfaceSize      int `json:"surface_size"`
}

// TriageRow is one per-surface row shown in --full status output.
type TriageRow struct {
	SurfaceID     string     `json:"surface_id"`
	Accepted      AcceptedStatus `json:"accepted"`
	Behavior      BehaviorStatus `json:"behavior"`
	ReasonCode    ReasonCode `json:"reason_code,omitempty"`
	LastFailurePath string   `json:"last_failure_path,omitempty"`
}

// FullDetail is the extra content status --full adds.
type FullDetail struct {
	Triage           []TriageRow `json:"triage"`
	ReasonCodePreview map[ReasonCode]int `json:"reason_code_preview"`
	UsageLensSummary string      `json:"usage_lens_summary,omitempty"`
	Blockers         []string    `json:"blockers,omitempty"`
}

// StatusPayload is the machine-readable payload `bman status` emits.
type StatusPayload struct {
	Decision   Decision    `json:"decision"`
	Counts     Counts      `json:"counts"`
	IsStuck    bool        `json:"is_stuck"`
	NextAction *NextAction `json:"next_action,omitempty"`
	Full       *FullDetail `json:"full,omitempty"`
}
