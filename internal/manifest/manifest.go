package manifest

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	// Ensure SHA-1 is available for digest calculation.
	_ "crypto/sha1"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/pass"
)

const (
	// Filename is the canonical name of the manifest inside a bundle.
	Filename = "manifest.json"

	// DigestFunction is the hash the wallet recomputes for every bundled file.
	DigestFunction crypto.Hash = crypto.SHA1
)

var errHashUnavailable = errors.New("hash function unavailable")

// Manifest maps bundle file names to lowercase hex SHA-1 digests.
type Manifest map[string]string

// Names returns the covered file names in sorted order.
func (m Manifest) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

// Encode serialises the manifest with sorted keys and four-space indentation.
func (m Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	if err := enc.Encode(map[string]string(m)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", Filename, err)
	}

	return buf.Bytes(), nil
}

// Workspace is the working directory the manifest is computed in and written to.
type Workspace interface {
	Path(name string) string
	WriteFile(name string, data []byte) error
}

// Build hashes the descriptor and every present asset, writes manifest.json and returns the mapping.
// A file that cannot be read is an io failure.
func Build(ws Workspace, present []string) (Manifest, error) {
	m := make(Manifest, len(present)+1)

	for _, name := range append([]string{pass.Filename}, present...) {
		digest, err := FileDigest(ws.Path(name))
		if err != nil {
			return nil, fmt.Errorf("%w: digest %s: %w", failure.ErrIO, name, err)
		}

		m[name] = digest
	}

	data, err := m.Encode()
	if err != nil {
		return nil, err
	}

	if err = ws.WriteFile(Filename, data); err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrIO, err)
	}

	return m, nil
}

// FileDigest returns the lowercase hex digest of the file at path.
func FileDigest(path string) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	return Digest(contents)
}

// Digest returns the lowercase hex digest of data.
func Digest(data []byte) (string, error) {
	if !DigestFunction.Available() {
		return "", fmt.Errorf("digest calculation not possible: %w", errHashUnavailable)
	}

	hasher := DigestFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("calculate digest: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
