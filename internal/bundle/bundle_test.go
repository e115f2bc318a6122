package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/pass"
	"github.com/oshokin/wallet-pass/internal/manifest"
	"github.com/oshokin/wallet-pass/internal/signing"
	"github.com/oshokin/wallet-pass/internal/workspace"
)

var testAssets = []string{"icon.png", "icon@2x.png", "logo.png", "logo@2x.png"}

// newSignedWorkspace prepares a working directory as the pipeline leaves it right before packaging.
func newSignedWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = ws.Cleanup() })

	require.NoError(t, ws.WriteFile(pass.Filename, []byte(`{"formatVersion": 1}`)))

	for _, name := range testAssets {
		require.NoError(t, ws.WriteFile(name, []byte("png:"+name)))
	}

	_, err = manifest.Build(ws, testAssets)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(signing.SignatureFilename, []byte("der signature")))

	return ws
}

func readArchive(t *testing.T, path string) map[string][]byte {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, zr.Close())
	}()

	files := make(map[string][]byte, len(zr.File))

	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		files[f.Name] = data
	}

	return files
}

// TestPackage writes exactly the expected entries, byte-identical to the manifest-covered files.
func TestPackage(t *testing.T) {
	t.Parallel()

	ws := newSignedWorkspace(t)
	outDir := t.TempDir()
	outputPath := filepath.Join(outDir, Filename("jane-doe"))

	archive, err := Package(context.Background(), ws, testAssets, outputPath)
	require.NoError(t, err)
	require.Equal(t, outputPath, archive.Path)
	require.Equal(t, []string{
		"signature", "pass.json", "manifest.json",
		"icon.png", "icon@2x.png", "logo.png", "logo@2x.png",
	}, archive.Entries)

	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	sum := sha256.Sum256(raw)
	require.Equal(t, hex.EncodeToString(sum[:]), archive.Checksum)
	require.Equal(t, len(raw), archive.Size)

	files := readArchive(t, outputPath)
	require.Len(t, files, 7)

	for _, name := range archive.Entries {
		onDisk, err := os.ReadFile(ws.Path(name))
		require.NoError(t, err)
		require.Equal(t, onDisk, files[name], name)
	}

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "jane-doe.pkpass", entries[0].Name())
}

// TestPackageOverwrites replaces an archive from a previous run.
func TestPackageOverwrites(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	outputPath := filepath.Join(outDir, "jane-doe.pkpass")
	require.NoError(t, os.WriteFile(outputPath, []byte("stale archive"), 0o600))

	_, err := Package(context.Background(), newSignedWorkspace(t), testAssets, outputPath)
	require.NoError(t, err)

	require.Len(t, readArchive(t, outputPath), 7)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestPackageFailuresLeaveNothing never leaves a partial archive behind.
func TestPackageFailuresLeaveNothing(t *testing.T) {
	t.Parallel()

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()

		ws := newSignedWorkspace(t)
		require.NoError(t, os.Remove(ws.Path(signing.SignatureFilename)))

		outputPath := filepath.Join(t.TempDir(), "jane-doe.pkpass")

		_, err := Package(context.Background(), ws, testAssets, outputPath)
		require.ErrorIs(t, err, failure.ErrPackaging)
		require.NoFileExists(t, outputPath)
	})

	t.Run("asset changed after hashing", func(t *testing.T) {
		t.Parallel()

		ws := newSignedWorkspace(t)
		require.NoError(t, os.WriteFile(ws.Path("logo.png"), []byte("re-encoded"), 0o600))

		outputPath := filepath.Join(t.TempDir(), "jane-doe.pkpass")

		_, err := Package(context.Background(), ws, testAssets, outputPath)
		require.ErrorIs(t, err, failure.ErrPackaging)
		require.ErrorIs(t, err, errManifestMismatch)
		require.NoFileExists(t, outputPath)
	})

	t.Run("asset not in manifest", func(t *testing.T) {
		t.Parallel()

		ws := newSignedWorkspace(t)
		require.NoError(t, ws.WriteFile("thumbnail.png", []byte("late")))

		outputPath := filepath.Join(t.TempDir(), "jane-doe.pkpass")

		_, err := Package(context.Background(), ws, append(testAssets[:4:4], "thumbnail.png"), outputPath)
		require.ErrorIs(t, err, errNotCovered)
		require.NoFileExists(t, outputPath)
	})

	t.Run("unwritable destination", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))

		_, err := Package(context.Background(), newSignedWorkspace(t), testAssets, filepath.Join(blocker, "jane-doe.pkpass"))
		require.ErrorIs(t, err, failure.ErrPackaging)
	})
}

// TestInstallNewArchive stages new archives beside the target and never leaves
// an empty or partial file at the final path.
func TestInstallNewArchive(t *testing.T) {
	t.Parallel()

	data := []byte("archive bytes")
	digest := sha256.Sum256(data)

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "jane-doe.pkpass")

	err := install(data, []byte("wrong checksum"), outputPath)
	require.ErrorIs(t, err, errChecksumMismatch)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, install(data, digest[:], outputPath))

	installed, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, data, installed)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A target that shows up while staging is not clobbered by the link.
	err = installNew(data, digest[:], outputPath)
	require.ErrorIs(t, err, os.ErrExist)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
