package manrender

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bman/internal/bmanconfig"
	"bman/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestRenderReadsMockFixture(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"pages":{"example.1":".TH EXAMPLE 1\n"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	out, err := Render(context.Background(), bmanconfig.Env{MockStateDir: dir}, Input{
		BinaryName: "example",
		Surface:    schema.SurfaceInventory{},
	})
	require.NoError(t, err)
	require.Contains(t, out.Pages, "example.1")
	require.Contains(t, string(out.Pages["example.1"]), ".TH EXAMPLE 1")
}

func TestRenderMissingMockFixtureErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Render(context.Background(), bmanconfig.Env{MockStateDir: dir}, Input{BinaryName: "example"})
	require.Error(t, err)
}

func TestRenderRejectsUnknownFieldsInMock(t *testing.T) {
	dir := t.TempDir()
	fixture := `{"pages":{},"unexpected":true}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, mockFileName), []byte(fixture), 0o644))

	_, err := Render(context.Background(), bmanconfig.Env{MockStateDir: dir}, Input{BinaryName: "example"})
	require.Error(t, err)
}
