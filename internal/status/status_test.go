package status

import (
	"os"
	"testing"

	"bman/internal/pack"
	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestSlimCountsAndDecision(t *testing.T) {
	ledger := &schema.Ledger{Rows: []schema.LedgerRow{
		{SurfaceID: "--a", Accepted: schema.AcceptedVerified, Behavior: schema.BehaviorVerified},
		{SurfaceID: "--b", Accepted: schema.AcceptedRecognized, Behavior: schema.BehaviorUnknown},
		{SurfaceID: "--c", Excluded: true},
	}}
	surface := &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--a"}, {ID: "--b"}, {ID: "--c"}}}
	next := schema.NextAction{Kind: schema.ActionRunCommand, Command: "bman apply"}

	payload := Slim(ledger, surface, next, nil, 3)
	require.Equal(t, schema.DecisionIncomplete, payload.Decision)
	require.Equal(t, 1, payload.Counts.AcceptedVerified)
	require.Equal(t, 1, payload.Counts.BehaviorVerified)
	require.Equal(t, 1, payload.Counts.Excluded)
	require.Equal(t, 3, payload.Counts.SurfaceSize)
	require.False(t, payload.IsStuck)
}

func TestSlimCompleteDecision(t *testing.T) {
	payload := Slim(&schema.Ledger{}, &schema.SurfaceInventory{}, schema.NextAction{Kind: schema.ActionComplete}, nil, 3)
	require.Equal(t, schema.DecisionComplete, payload.Decision)
	require.False(t, payload.IsStuck)
}

func TestSlimBlockedDecisionOnScenarioError(t *testing.T) {
	ledger := &schema.Ledger{Rows: []schema.LedgerRow{
		{SurfaceID: "--a", ReasonCode: schema.ReasonScenarioError},
	}}
	payload := Slim(ledger, &schema.SurfaceInventory{}, schema.NextAction{Kind: schema.ActionRunCommand}, nil, 3)
	require.Equal(t, schema.DecisionBlocked, payload.Decision)
}

func TestIsStuckAfterRepeatedSameNextAction(t *testing.T) {
	next := schema.NextAction{Kind: schema.ActionEditFile, SurfaceID: "--format"}
	history := []schema.HistoryEvent{
		{Op: "apply", NextActionKind: "edit_file", NextActionTarget: "--format"},
		{Op: "apply", NextActionKind: "edit_file", NextActionTarget: "--format"},
		{Op: "apply", NextActionKind: "edit_file", NextActionTarget: "--format"},
	}
	require.True(t, IsStuck(next, history, 3))
}

func TestIsStuckFalseWhenProgressInterrupts(t *testing.T) {
	next := schema.NextAction{Kind: schema.ActionEditFile, SurfaceID: "--format"}
	history := []schema.HistoryEvent{
		{Op: "apply", NextActionKind: "run_command", NextActionTarget: ""},
		{Op: "apply", NextActionKind: "edit_file", NextActionTarget: "--format"},
		{Op: "apply", NextActionKind: "edit_file", NextActionTarget: "--format"},
	}
	require.False(t, IsStuck(next, history, 3))
}

func TestIsStuckFalseWhenComplete(t *testing.T) {
	history := []schema.HistoryEvent{
		{Op: "apply", NextActionKind: "complete"},
		{Op: "apply", NextActionKind: "complete"},
		{Op: "apply", NextActionKind: "complete"},
	}
	require.False(t, IsStuck(schema.NextAction{Kind: schema.ActionComplete}, history, 3))
}

func TestFullIncludesTriageAndReasonPreview(t *testing.T) {
	ledger := &schema.Ledger{Rows: []schema.LedgerRow{
		{SurfaceID: "--a", Accepted: schema.AcceptedRejected, ReasonCode: schema.ReasonOutputsEqual, BackingScenarioIDs: []string{"behavior::a"}},
	}}
	idx := &schema.EvidenceIndex{Entries: map[string]schema.EvidenceIndexEntry{
		"behavior::a": {ScenarioID: "behavior::a", EvidencePath: "inventory/scenarios/behavior::a.json"},
	}}
	payload := Full(ledger, &schema.SurfaceInventory{Items: []schema.SurfaceItem{{ID: "--a"}}}, schema.NextAction{Kind: schema.ActionRunCommand}, nil, 3, "usage summary", idx)
	require.NotNil(t, payload.Full)
	require.Len(t, payload.Full.Triage, 1)
	require.Equal(t, 1, payload.Full.ReasonCodePreview[schema.ReasonOutputsEqual])
	require.Equal(t, "inventory/scenarios/behavior::a.json", payload.Full.Triage[0].LastFailurePath)
}

func TestLoadHistoryReadsJSONLInOrder(t *testing.T) {
	root := t.TempDir()
	p, err := pack.Open(root)
	require.NoError(t, err)
	require.NoError(t, pack.EnsureDirs(p))

	historyPath, err := pack.Resolve(p, pack.HistoryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(historyPath, []byte(
		`{"ts":1,"op":"apply","result":"success"}`+"\n"+
			`{"ts":2,"op":"apply","result":"success","next_action_kind":"complete"}`+"\n",
	), 0o644))

	events, err := LoadHistory(p)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(1), events[0].Timestamp)
	require.Equal(t, "complete", events[1].NextActionKind)
}

func TestLoadHistoryMissingFileIsEmpty(t *testing.T) {
	root := t.TempDir()
	p, err := pack.Open(root)
	require.NoError(t, err)
	require.NoError(t, pack.EnsureDirs(p))

	events, err := LoadHistory(p)
	require.NoError(t, err)
	require.Nil(t, events)
}
