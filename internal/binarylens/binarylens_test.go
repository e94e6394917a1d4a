package binarylens

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bman/internal/bmanconfig"
	"github.com/stretchr/testify/require"
)

func TestInspectReadsMockFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"surface":{"items":[{"id":"--help","context_argv":[],"forms":["--help"],"invocation":{"value_arity":"none","value_separator":"none"}}]},"facts_path":"facts.parquet"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	skel, err := Inspect(context.Background(), bmanconfig.Env{MockStateDir: dir}, "/usr/bin/example")
	require.NoError(t, err)
	require.Len(t, skel.Surface.Items, 1)
	require.Equal(t, "--help", skel.Surface.Items[0].ID)
	require.Equal(t, "facts.parquet", skel.FactsPath)
}

func TestInspectRejectsUnknownFieldsInMock(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"surface":{"items":[]},"unexpected_field":true}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	_, err := Inspect(context.Background(), bmanconfig.Env{MockStateDir: dir}, "/usr/bin/example")
	require.Error(t, err)
}

func TestInspectMissingMockFixtureErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Inspect(context.Background(), bmanconfig.Env{MockStateDir: dir}, "/usr/bin/example")
	require.Error(t, err)
}
