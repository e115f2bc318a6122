package bundle

import (
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure SHA-256 is available for the archive checksum.
	_ "crypto/sha256"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/klauspost/compress/zip"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/pass"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/manifest"
	"github.com/oshokin/wallet-pass/internal/signing"
)

const (
	// Extension is the file extension of a wallet pass archive.
	Extension = ".pkpass"

	// ChecksumFunction fingerprints finished archives.
	ChecksumFunction crypto.Hash = crypto.SHA256

	archiveMode os.FileMode = 0o644
	dirMode     os.FileMode = 0o755
)

var (
	errManifestMismatch = errors.New("archive entry does not match the manifest")
	errNotCovered       = errors.New("archive entry is not covered by the manifest")
	errHashUnavailable  = errors.New("hash function unavailable")
	errChecksumMismatch = errors.New("archive checksum mismatch")
)

// Source is the working directory the archive entries are read from.
type Source interface {
	Path(name string) string
}

// Archive describes an installed pass archive.
type Archive struct {
	// Path is where the archive was installed.
	Path string
	// Checksum is the lowercase hex SHA-256 of the archive bytes.
	Checksum string
	// Entries are the archive entry names in write order.
	Entries []string
	// Size is the archive length in bytes.
	Size int
}

// Filename returns the archive file name for a member slug.
func Filename(slug string) string {
	return slug + Extension
}

// Entries returns the archive entry names in write order.
func Entries(present []string) []string {
	return append([]string{signing.SignatureFilename, pass.Filename, manifest.Filename}, present...)
}

// Package zips the signature, descriptor, manifest and present assets from src
// and installs the result at outputPath, replacing any previous archive.
// On failure nothing new is left at outputPath.
func Package(ctx context.Context, src Source, present []string, outputPath string) (*Archive, error) {
	entries := Entries(present)

	contents, err := readEntries(src, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrPackaging, err)
	}

	if err = verifyCoverage(contents, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrPackaging, err)
	}

	data, err := compress(contents, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrPackaging, err)
	}

	checksum, err := sum(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrPackaging, err)
	}

	if err = install(data, checksum, outputPath); err != nil {
		return nil, fmt.Errorf("%w: install %s: %w", failure.ErrPackaging, filepath.Base(outputPath), err)
	}

	archive := &Archive{
		Path:     outputPath,
		Checksum: hex.EncodeToString(checksum),
		Entries:  entries,
		Size:     len(data),
	}

	logger.DebugKV(ctx, "Archive installed", "path", archive.Path, "size", archive.Size, "entries", len(entries))

	return archive, nil
}

func readEntries(src Source, entries []string) (map[string][]byte, error) {
	contents := make(map[string][]byte, len(entries))

	for _, name := range entries {
		data, err := os.ReadFile(src.Path(name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		contents[name] = data
	}

	return contents, nil
}

// verifyCoverage checks that every hashed entry is in the manifest with the digest of its exact bytes.
func verifyCoverage(contents map[string][]byte, entries []string) error {
	var m manifest.Manifest
	if err := json.Unmarshal(contents[manifest.Filename], &m); err != nil {
		return fmt.Errorf("decode %s: %w", manifest.Filename, err)
	}

	covered := 0

	for _, name := range entries {
		if name == signing.SignatureFilename || name == manifest.Filename {
			continue
		}

		want, ok := m[name]
		if !ok {
			return fmt.Errorf("%s: %w", name, errNotCovered)
		}

		got, err := manifest.Digest(contents[name])
		if err != nil {
			return err
		}

		if got != want {
			return fmt.Errorf("%s: %w", name, errManifestMismatch)
		}

		covered++
	}

	if covered != len(m) {
		return fmt.Errorf("manifest lists %d files, archive has %d: %w", len(m), covered, errManifestMismatch)
	}

	return nil
}

func compress(contents map[string][]byte, entries []string) ([]byte, error) {
	var (
		buf      bytes.Buffer
		zw       = zip.NewWriter(&buf)
		modified = time.Now()
	)

	for _, name := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}

		if _, err = w.Write(contents[name]); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	return buf.Bytes(), nil
}

func sum(data []byte) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// install puts the archive at outputPath. A new archive is staged next to the
// target and linked into place, so the target never exists half written.
// An existing archive is swapped by the updater, which keeps the previous one
// until the replacement is in position.
func install(data, checksum []byte, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), dirMode); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	_, err := os.Stat(outputPath)

	switch {
	case errors.Is(err, os.ErrNotExist):
		err = installNew(data, checksum, outputPath)
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		// The target appeared in the meantime; replace it below.
	case err != nil:
		return err
	}

	err = goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: outputPath,
		TargetMode: archiveMode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	})

	removeLeftovers(outputPath)

	return err
}

func installNew(data, checksum []byte, outputPath string) error {
	actual, err := sum(data)
	if err != nil {
		return err
	}

	if !bytes.Equal(actual, checksum) {
		return errChecksumMismatch
	}

	f, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".new-*")
	if err != nil {
		return fmt.Errorf("stage archive: %w", err)
	}

	staged := f.Name()

	defer func() {
		_ = os.Remove(staged)
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("stage archive: %w", err)
	}

	if err = f.Chmod(archiveMode); err != nil {
		_ = f.Close()

		return fmt.Errorf("stage archive: %w", err)
	}

	if err = f.Sync(); err != nil {
		_ = f.Close()

		return fmt.Errorf("stage archive: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("stage archive: %w", err)
	}

	return os.Link(staged, outputPath)
}

// removeLeftovers deletes the staging and backup files the updater may leave next to the target.
func removeLeftovers(outputPath string) {
	dir, base := filepath.Split(outputPath)

	for _, name := range []string{
		outputPath + ".old",
		filepath.Join(dir, "."+base+".old"),
		filepath.Join(dir, "."+base+".new"),
	} {
		if _, err := os.Stat(name); err == nil {
			_ = os.Remove(name)
		}
	}
}
