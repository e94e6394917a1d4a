package lmauthor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bman/internal/bmanconfig"
	"github.com/stretchr/testify/require"
)

func TestProposeReadsMockFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"upsert_scenarios":[{"id":"behavior::--format","argv":["--format","json"]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	patch, err := Propose(context.Background(), bmanconfig.Env{MockStateDir: dir}, "", "describe --format")
	require.NoError(t, err)
	require.Len(t, patch.UpsertScenarios, 1)
	require.Equal(t, "behavior::--format", patch.UpsertScenarios[0].ID)
}

func TestProposeRejectsUnknownFieldsInMock(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"upsert_scenarios":[],"unexpected":true}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	_, err := Propose(context.Background(), bmanconfig.Env{MockStateDir: dir}, "", "prompt")
	require.Error(t, err)
}

func TestProposeErrorsWithoutCommandOrMock(t *testing.T) {
	_, err := Propose(context.Background(), bmanconfig.Env{}, "", "prompt")
	require.Error(t, err)
}

func TestProposeRunsConfiguredCommand(t *testing.T) {
	cmd := `cat <<'EOF'
{"upsert_scenarios":[{"id":"behavior::--verbose","argv":["--verbose"]}]}
EOF`
	patch, err := Propose(context.Background(), bmanconfig.Env{}, cmd, "describe --verbose")
	require.NoError(t, err)
	require.Len(t, patch.UpsertScenarios, 1)
	require.Equal(t, "behavior::--verbose", patch.UpsertScenarios[0].ID)
}
