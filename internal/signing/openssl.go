package signing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/manifest"
)

const (
	// bundlePasswordEnv carries the PKCS#12 password to openssl.
	bundlePasswordEnv = "WALLET_PASS_P12_PASSWORD"
	// keyPassphraseEnv carries the passphrase the derived key is re-encrypted with.
	keyPassphraseEnv = "WALLET_PASS_KEY_PASSPHRASE"

	maxStderr = 512
)

var errEmptySignature = errors.New("openssl produced an empty signature")

// CommandRunner runs an external program to completion.
// Env entries are appended to the current process environment.
type CommandRunner interface {
	Run(ctx context.Context, name string, args, env []string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner. The error includes the tail of stderr.
func (ExecRunner) Run(ctx context.Context, name string, args, env []string) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}

		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}

		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}

	return nil
}

// OpenSSLSigner drives the openssl binary. Secrets reach openssl through the
// environment, never through its argument list.
type OpenSSLSigner struct {
	creds       Credentials
	binary      string
	stepTimeout time.Duration
	runner      CommandRunner
}

// OpenSSLOption configures an OpenSSLSigner.
type OpenSSLOption func(*OpenSSLSigner)

// WithBinary overrides the openssl executable.
func WithBinary(binary string) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithStepTimeout bounds every openssl invocation.
func WithStepTimeout(timeout time.Duration) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		if timeout > 0 {
			s.stepTimeout = timeout
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(runner CommandRunner) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// NewOpenSSLSigner creates a signer that shells out to openssl.
func NewOpenSSLSigner(creds Credentials, opts ...OpenSSLOption) *OpenSSLSigner {
	s := &OpenSSLSigner{
		creds:       creds,
		binary:      "openssl",
		stepTimeout: config.DefaultStepTimeout,
		runner:      ExecRunner{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sign implements Signer.
func (s *OpenSSLSigner) Sign(ctx context.Context, ws Workspace) ([]byte, error) {
	manifestPath := ws.Path(manifest.Filename)
	if err := requireFiles(s.creds.CertificatePath, s.creds.WWDRPath, manifestPath); err != nil {
		return nil, err
	}

	// The derived key only lives for this call, so its passphrase does too.
	keyPassphrase := uuid.NewString()

	var (
		bundlePath = filepath.Clean(s.creds.CertificatePath)
		env        = []string{
			bundlePasswordEnv + "=" + s.creds.Password,
			keyPassphraseEnv + "=" + keyPassphrase,
		}
		secrets = []string{s.creds.Password, keyPassphrase}
	)

	steps := []step{
		{
			name: StepExtractCertificate,
			run: func(ctx context.Context) error {
				certPath, err := ws.Track(CertificateFilename)
				if err != nil {
					return err
				}

				return s.run(ctx, env, secrets,
					"pkcs12", "-in", bundlePath,
					"-clcerts", "-nokeys",
					"-out", certPath,
					"-passin", "env:"+bundlePasswordEnv)
			},
		},
		{
			name: StepExtractKey,
			run: func(ctx context.Context) error {
				keyPath, err := ws.Track(KeyFilename)
				if err != nil {
					return err
				}

				return s.run(ctx, env, secrets,
					"pkcs12", "-in", bundlePath,
					"-nocerts",
					"-out", keyPath,
					"-passin", "env:"+bundlePasswordEnv,
					"-passout", "env:"+keyPassphraseEnv)
			},
		},
		{
			name: StepSign,
			run: func(ctx context.Context) error {
				signaturePath, err := ws.Track(SignatureFilename)
				if err != nil {
					return err
				}

				return s.run(ctx, env, secrets,
					"smime", "-binary", "-sign",
					"-certfile", filepath.Clean(s.creds.WWDRPath),
					"-signer", ws.Path(CertificateFilename),
					"-inkey", ws.Path(KeyFilename),
					"-in", manifestPath,
					"-out", signaturePath,
					"-outform", "DER",
					"-passin", "env:"+keyPassphraseEnv)
			},
		},
	}

	if err := runSteps(ctx, steps); err != nil {
		return nil, err
	}

	signature, err := os.ReadFile(ws.Path(SignatureFilename))
	if err != nil {
		return nil, fmt.Errorf("%w: read signature: %w", failure.ErrSignature, err)
	}

	if len(signature) == 0 {
		return nil, fmt.Errorf("%w: %w", failure.ErrSignature, errEmptySignature)
	}

	return signature, nil
}

// run executes one openssl invocation under the step timeout and scrubs secrets from its error.
func (s *OpenSSLSigner) run(ctx context.Context, env, secrets []string, args ...string) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	if err := s.runner.Run(stepCtx, s.binary, args, env); err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", s.stepTimeout, context.DeadlineExceeded)
		}

		return errors.New(scrub(err.Error(), secrets...))
	}

	return nil
}
