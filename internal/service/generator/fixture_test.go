package generator

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"image"
	"image/png"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/oshokin/wallet-pass/internal/asset"
	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/signing"
)

const testPassword = "generator-p12-secret"

// env is an isolated project directory with roster, assets, certificates and output.
type env struct {
	root string
	cfg  *config.Config
}

func newEnv(t *testing.T, rows ...string) *env {
	t.Helper()

	root := t.TempDir()

	cfg := config.Default()
	cfg.Pass.PassTypeIdentifier = "pass.com.scalewave.contacts.team"
	cfg.Pass.TeamIdentifier = "VVA864P233"
	cfg.Pass.BaseURL = "https://scalewave.github.io/digital-contact-cards"
	cfg.Paths = config.Paths{
		Roster:  filepath.Join(root, "team_data.csv"),
		Assets:  filepath.Join(root, "assets", "images"),
		Output:  filepath.Join(root, "signed_passes"),
		Scratch: filepath.Join(root, "scratch"),
	}
	cfg.Signing.CertificatePath = filepath.Join(root, "certs", "pass.p12")
	cfg.Signing.WWDRPath = filepath.Join(root, "certs", "WWDR.pem")
	cfg.Signing.Password = testPassword

	roster := "first_name,last_name,email,title,phone,company_name,linkedin_url,twitter_handle\n" +
		strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(cfg.Paths.Roster, []byte(roster), 0o600))

	require.NoError(t, os.MkdirAll(cfg.Paths.Assets, 0o750))

	for _, name := range asset.RequiredNames() {
		c, _ := asset.Lookup(name)

		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))))
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Assets, name), buf.Bytes(), 0o600))
	}

	return &env{root: root, cfg: cfg}
}

// writeIdentity creates a WWDR intermediate and a signing identity issued by it.
func (e *env) writeIdentity(t *testing.T) *x509.Certificate {
	t.Helper()

	now := time.Now()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test WWDR Intermediate"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	wwdr, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	leafDER, err := x509.CreateCertificate(rand.Reader, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.com.scalewave.contacts.team"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, wwdr, &leafKey.PublicKey, caKey)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	p12, err := pkcs12.LegacyDES.Encode(leafKey, leaf, []*x509.Certificate{wwdr}, testPassword)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(e.cfg.Signing.CertificatePath), 0o750))
	require.NoError(t, os.WriteFile(e.cfg.Signing.CertificatePath, p12, 0o600))
	require.NoError(t, os.WriteFile(e.cfg.Signing.WWDRPath,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}), 0o600))

	return leaf
}

// requireEmptyScratch asserts that no working directory survived the run.
func (e *env) requireEmptyScratch(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(e.cfg.Paths.Scratch)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	require.NoError(t, err)
	require.Empty(t, entries)
}

// fakeSigner writes a fixed signature, or fails at the configured step.
type fakeSigner struct {
	// failStep makes Sign fail as if that step exited non-zero.
	failStep string

	mu    sync.Mutex
	calls int
}

func (f *fakeSigner) Sign(_ context.Context, ws signing.Workspace) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	// Derived material exists before any step can fail.
	if _, err := ws.Track(signing.CertificateFilename); err != nil {
		return nil, err
	}

	if err := ws.WriteFile(signing.CertificateFilename, []byte("cert")); err != nil {
		return nil, err
	}

	switch f.failStep {
	case signing.StepExtractCertificate:
		return nil, failure.ErrCertificateExtraction
	case signing.StepExtractKey:
		return nil, failure.ErrKeyExtraction
	case signing.StepSign:
		return nil, failure.ErrSignature
	}

	signature := []byte("fake detached signature")
	if err := ws.WriteFile(signing.SignatureFilename, signature); err != nil {
		return nil, err
	}

	return signature, nil
}
