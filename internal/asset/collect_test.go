package asset

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/workspace"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))

	return buf.Bytes()
}

func writeAssets(t *testing.T, dir string, names ...string) map[string][]byte {
	t.Helper()

	written := make(map[string][]byte, len(names))

	for _, name := range names {
		c, ok := Lookup(name)
		require.True(t, ok, name)

		data := encodePNG(t, c.Width, c.Height)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))

		written[name] = data
	}

	return written
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = ws.Cleanup() })

	return ws
}

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

// TestCapabilities keeps the table ordered and the required set stable.
func TestCapabilities(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"icon.png", "icon@2x.png", "logo.png", "logo@2x.png"}, RequiredNames())

	table := Capabilities()
	require.Len(t, table, 8)
	require.Equal(t, "icon.png", table[0].Name)

	table[0].Name = "mutated.png"
	require.Equal(t, "icon.png", Capabilities()[0].Name)

	_, ok := Lookup("background.png")
	require.False(t, ok)
}

// TestCollectCopiesPresentFiles copies byte-for-byte and skips absent optional files.
func TestCollectCopiesPresentFiles(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	written := writeAssets(t, src, "logo@2x.png", "icon.png", "icon@2x.png", "logo.png", "thumbnail.png")

	ws := newWorkspace(t)
	ctx, logs := observedContext()

	present, err := Collect(ctx, ws, src, Options{Policy: PolicyReject})
	require.NoError(t, err)
	require.Equal(t, []string{"icon.png", "icon@2x.png", "logo.png", "logo@2x.png", "thumbnail.png"}, present)
	require.Equal(t, present, ws.Files())

	for _, name := range present {
		copied, err := os.ReadFile(ws.Path(name))
		require.NoError(t, err)
		require.Equal(t, written[name], copied, name)
	}

	require.Zero(t, logs.FilterMessage("Required asset is missing, packaging without it").Len())
}

// TestCollectMissingRequired follows the configured strictness policy.
func TestCollectMissingRequired(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeAssets(t, src, "icon.png", "icon@2x.png", "logo.png")

	t.Run("warn", func(t *testing.T) {
		t.Parallel()

		ws := newWorkspace(t)
		ctx, logs := observedContext()

		present, err := Collect(ctx, ws, src, Options{})
		require.NoError(t, err)
		require.Equal(t, []string{"icon.png", "icon@2x.png", "logo.png"}, present)

		warnings := logs.FilterMessage("Required asset is missing, packaging without it").All()
		require.Len(t, warnings, 1)
		require.Equal(t, "logo@2x.png", warnings[0].ContextMap()["asset"])
	})

	t.Run("reject", func(t *testing.T) {
		t.Parallel()

		ws := newWorkspace(t)

		present, err := Collect(context.Background(), ws, src, Options{Policy: PolicyReject})
		require.ErrorIs(t, err, failure.ErrIO)
		require.ErrorIs(t, err, errMissingRequired)
		require.Equal(t, []string{"icon.png", "icon@2x.png", "logo.png"}, present)

		// Files copied before the failure are registered for cleanup.
		require.Equal(t, present, ws.Files())
	})
}

// TestCollectKeepsExistingFiles never overwrites a file already in the working directory.
func TestCollectKeepsExistingFiles(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeAssets(t, src, "icon.png")

	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.Path("icon.png"), []byte("keep"), 0o600))

	_, err := Collect(context.Background(), ws, src, Options{})
	require.ErrorIs(t, err, failure.ErrIO)

	contents, err := os.ReadFile(ws.Path("icon.png"))
	require.NoError(t, err)
	require.Equal(t, "keep", string(contents))
}

// TestCollectChecksDimensions warns about oversized and unreadable images.
func TestCollectChecksDimensions(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeAssets(t, src, "icon@2x.png", "logo.png", "logo@2x.png")
	require.NoError(t, os.WriteFile(filepath.Join(src, "icon.png"), encodePNG(t, 64, 64), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "thumbnail.png"), []byte("not an image"), 0o600))

	ws := newWorkspace(t)
	ctx, logs := observedContext()

	present, err := Collect(ctx, ws, src, Options{CheckDimensions: true})
	require.NoError(t, err)
	require.Contains(t, present, "thumbnail.png")

	oversized := logs.FilterMessage("Asset exceeds its nominal size").All()
	require.Len(t, oversized, 1)
	require.Equal(t, "icon.png", oversized[0].ContextMap()["asset"])

	require.Equal(t, 1, logs.FilterMessage("Asset is not a readable image").Len())
}
