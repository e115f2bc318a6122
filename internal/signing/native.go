package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"go.mozilla.org/pkcs7"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/manifest"
)

var (
	errNoCertificate = errors.New("bundle holds no certificate")
	errNoKey         = errors.New("bundle holds no private key")
	errKeyNotSigner  = errors.New("private key cannot sign")
	errKeyMismatch   = errors.New("private key does not match the certificate")
	errNoWWDR        = errors.New("no certificate found in WWDR file")
)

// NativeSigner signs in-process. Decrypted key material never touches the disk.
type NativeSigner struct {
	creds Credentials
}

// NewNativeSigner creates an in-process signer.
func NewNativeSigner(creds Credentials) *NativeSigner {
	return &NativeSigner{creds: creds}
}

// Sign implements Signer.
func (s *NativeSigner) Sign(ctx context.Context, ws Workspace) ([]byte, error) {
	manifestPath := ws.Path(manifest.Filename)
	if err := requireFiles(s.creds.CertificatePath, s.creds.WWDRPath, manifestPath); err != nil {
		return nil, err
	}

	var (
		key       any
		cert      *x509.Certificate
		signer    crypto.Signer
		signature []byte
	)

	steps := []step{
		{
			name: StepExtractCertificate,
			run: func(context.Context) error {
				bundle, err := os.ReadFile(filepath.Clean(s.creds.CertificatePath))
				if err != nil {
					return err
				}

				key, cert, _, err = pkcs12.DecodeChain(bundle, s.creds.Password)
				if err != nil {
					return errors.New(scrub(err.Error(), s.creds.Password))
				}

				if cert == nil {
					return errNoCertificate
				}

				return nil
			},
		},
		{
			name: StepExtractKey,
			run: func(context.Context) error {
				if key == nil {
					return errNoKey
				}

				var ok bool
				if signer, ok = key.(crypto.Signer); !ok {
					return errKeyNotSigner
				}

				if !publicKeysEqual(signer.Public(), cert.PublicKey) {
					return errKeyMismatch
				}

				return nil
			},
		},
		{
			name: StepSign,
			run: func(context.Context) error {
				var err error

				signature, err = s.sign(manifestPath, cert, signer)

				return err
			},
		},
	}

	if err := runSteps(ctx, steps); err != nil {
		return nil, err
	}

	if err := ws.WriteFile(SignatureFilename, signature); err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrSignature, err)
	}

	return signature, nil
}

func (s *NativeSigner) sign(manifestPath string, cert *x509.Certificate, key crypto.Signer) ([]byte, error) {
	content, err := os.ReadFile(filepath.Clean(manifestPath))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	wwdr, err := LoadCertificate(s.creds.WWDRPath)
	if err != nil {
		return nil, err
	}

	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("prepare signed data: %w", err)
	}

	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err = signedData.AddSignerChain(cert, key, []*x509.Certificate{wwdr}, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}

	signedData.Detach()

	der, err := signedData.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish signed data: %w", err)
	}

	return der, nil
}

// LoadCertificate reads a single X.509 certificate stored as PEM or DER.
func LoadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}

	der := raw

	if block, _ := pem.Decode(raw); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%s: %w", block.Type, errNoWWDR)
		}

		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return cert, nil
}

// publicKeysEqual compares keys through their Equal method when available.
func publicKeysEqual(a, b crypto.PublicKey) bool {
	if eq, ok := a.(interface{ Equal(x crypto.PublicKey) bool }); ok {
		return eq.Equal(b)
	}

	return reflect.DeepEqual(a, b)
}
