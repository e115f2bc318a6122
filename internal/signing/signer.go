package signing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/logger"
)

const (
	// SignatureFilename is the canonical name of the signature inside a bundle.
	SignatureFilename = "signature"
	// CertificateFilename is the signing certificate derived by the openssl backend.
	CertificateFilename = "passcertificate.pem"
	// KeyFilename is the re-encrypted signing key derived by the openssl backend.
	KeyFilename = "passkey.pem"

	// Step names, in execution order.
	StepExtractCertificate = "extract_cert"
	StepExtractKey         = "extract_key"
	StepSign               = "sign"

	redacted = "[REDACTED]"
)

// Workspace is the working directory a signer reads the manifest from and writes derived files to.
type Workspace interface {
	Path(name string) string
	Track(name string) (string, error)
	WriteFile(name string, data []byte) error
}

// Signer signs the manifest.json found in a working directory, writes the
// signature file next to it and returns the DER bytes.
type Signer interface {
	Sign(ctx context.Context, ws Workspace) ([]byte, error)
}

// Credentials locate the signing identity. The password is never logged or
// included in returned errors.
type Credentials struct {
	// CertificatePath is the password-protected PKCS#12 bundle.
	CertificatePath string
	// Password unlocks the PKCS#12 bundle.
	Password string
	// WWDRPath is the Apple WWDR intermediate certificate in PEM or DER form.
	WWDRPath string
}

var errUnknownBackend = errors.New("unknown signing backend")

// New returns the signer selected by the configuration.
//
//nolint:ireturn,nolintlint // Callers depend on the Signer abstraction.
func New(cfg *config.Signing) (Signer, error) {
	creds := Credentials{
		CertificatePath: cfg.CertificatePath,
		Password:        cfg.Password,
		WWDRPath:        cfg.WWDRPath,
	}

	switch cfg.Backend {
	case "", config.BackendNative:
		return NewNativeSigner(creds), nil
	case config.BackendOpenSSL:
		return NewOpenSSLSigner(creds,
			WithBinary(cfg.OpenSSLBinary),
			WithStepTimeout(cfg.StepTimeout)), nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Backend, errUnknownBackend)
	}
}

// step is one stage of the signing sequence.
type step struct {
	// name identifies the step in logs and selects its failure class.
	name string
	// run performs the step.
	run func(ctx context.Context) error
}

// runSteps executes steps in order and stops at the first failure.
func runSteps(ctx context.Context, steps []step) error {
	for _, s := range steps {
		started := time.Now()

		if err := s.run(ctx); err != nil {
			logger.WarnKV(ctx, "Signing step failed", "step", s.name, "error", err)

			return fmt.Errorf("%w: %s: %w", stepKind(s.name), s.name, err)
		}

		logger.DebugKV(ctx, "Signing step completed", "step", s.name, "elapsed", time.Since(started))
	}

	return nil
}

// stepKind maps a step name to its failure class.
func stepKind(name string) error {
	switch name {
	case StepExtractCertificate:
		return failure.ErrCertificateExtraction
	case StepExtractKey:
		return failure.ErrKeyExtraction
	default:
		return failure.ErrSignature
	}
}

// requireFiles reports the first input that cannot be read as an io failure.
func requireFiles(paths ...string) error {
	for _, path := range paths {
		info, err := os.Stat(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("%w: %w", failure.ErrIO, err)
		}

		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", failure.ErrIO, path)
		}
	}

	return nil
}

// scrub replaces every secret in s.
func scrub(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}

	return s
}
