package schema

// LockEntry is one hashed input file.
type LockEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Lock is enrich/lock.json: the authoritative snapshot of input file hashes
// produced by validate.
type Lock struct {
	GeneratedAt int64       `json:"generated_at"`
	Entries     []LockEntry `json:"entries"`
}

// HashOf returns the locked hash for a path, if present.
func (l *Lock) HashOf(path string) (string, bool) {
	for _, e := range l.Entries {
		if e.Path == path {
			return e.Hash, true
		}
	}
	return "", false
}

// LoadLock reads enrich/lock.json, returning nil (not an error) if it
// doesn't exist — a fresh pack has no lock until the first validate.
func LoadLock(path string) (*Lock, error) {
	var l Lock
	if err := LoadFile(path, &l); err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// PlanAction is the serializable form of one workplan action.
type PlanAction struct {
	Kind            string   `json:"kind"`
	ScenarioID      string   `json:"scenario_id,omitempty"`
	RequiredDigests []string `json:"required_digests,omitempty"`
}

// PlanSnapshot is enrich/plan.out.json: the ordered action list bound to the
// lock that produced it.
type PlanSnapshot struct {
	GeneratedAt int64        `json:"generated_at"`
	LockHash    string       `json:"lock_hash"`
	Actions     []PlanAction `json:"actions"`
}

// LoadPlanSnapshot reads enrich/plan.out.json, returning nil if absent.
func LoadPlanSnapshot(path string) (*PlanSnapshot, error) {
	var p PlanSnapshot
	if err := LoadFile(path, &p); err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Report is enrich/report.json: the evidence-linked outcome of the last
// apply.
type Report struct {
	TransactionID  string   `json:"transaction_id"`
	StartedAt      int64    `json:"started_at"`
	FinishedAt     int64    `json:"finished_at"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	ScenariosRun   []string `json:"scenarios_run"`
	ActionsApplied []string `json:"actions_applied"`
	Blockers       []string `json:"blockers,omitempty"`
}

// HistoryEvent is one line of enrich/history.jsonl. NextActionKind and
// NextActionTarget record the recommendation status produced right after
// this operation, the same recommendation `bman status` recomputes — status
// reads them back to detect a stuck cycle without recomputing the whole
// ledger history.
type HistoryEvent struct {
	Timestamp        int64  `json:"ts"`
	Op               string `json:"op"` // validate, apply, commit
	Result           string `json:"result"`
	TransactionID    string `json:"transaction_id,omitempty"`
	ScenariosRun     int    `json:"scenarios_run"`
	Error            string `json:"error,omitempty"`
	NextActionKind   string `json:"next_action_kind,omitempty"`
	NextActionTarget string `json:"next_action_target,omitempty"`
}

// MergePatch is the content of a merge_behavior_scenarios edit strategy: a
// scoped patch that upserts scenarios (and optionally merges plan defaults)
// without replacing the whole scenario plan file.
type MergePatch struct {
	Defaults        map[string]interface{} `json:"defaults,omitempty"`
	UpsertScenarios []Scenario              `json:"upsert_scenarios"`
}
