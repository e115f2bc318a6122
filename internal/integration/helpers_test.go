package integration

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"image"
	"image/png"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/oshokin/wallet-pass/internal/asset"
	"github.com/oshokin/wallet-pass/internal/config"
)

const (
	certificatePassword = "integration-p12-secret"

	roster = "first_name,last_name,email,title,phone,company_name,linkedin_url,twitter_handle\n" +
		"Jane,Doe,jane@x.com,Product Manager,+1 (555) 123-4567,,https://linkedin.com/in/jane-doe,@jane_doe\n" +
		"Ana María,Ruiz,ana@scalewave.com,,,,,\n"
)

// project lays out a complete working copy and saves its settings file.
func project(t *testing.T) (string, *config.Config) {
	t.Helper()

	root := t.TempDir()

	cfg := config.Default()
	cfg.Pass.PassTypeIdentifier = "pass.com.scalewave.contacts.team"
	cfg.Pass.TeamIdentifier = "VVA864P233"
	cfg.Pass.BaseURL = "https://scalewave.github.io/digital-contact-cards"
	cfg.Paths = config.Paths{
		Roster:   filepath.Join(root, "team_data.csv"),
		Assets:   filepath.Join(root, "assets", "images"),
		Output:   filepath.Join(root, "signed_passes"),
		Contacts: filepath.Join(root, "output", "vcf"),
		Scratch:  filepath.Join(root, "scratch"),
		Ledger:   filepath.Join(root, "state", "ledger.db"),
	}
	cfg.Signing.CertificatePath = filepath.Join(root, "certs", "pass.p12")
	cfg.Signing.WWDRPath = filepath.Join(root, "certs", "WWDR.pem")
	cfg.Generation.CheckDimensions = true

	require.NoError(t, os.WriteFile(cfg.Paths.Roster, []byte(roster), 0o600))
	writeAssets(t, cfg.Paths.Assets)
	writeIdentity(t, cfg.Signing.CertificatePath, cfg.Signing.WWDRPath)

	path := filepath.Join(root, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path, cfg
}

func writeAssets(t *testing.T, dir string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o750))

	for _, c := range asset.Capabilities() {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))))
		require.NoError(t, os.WriteFile(filepath.Join(dir, c.Name), buf.Bytes(), 0o600))
	}
}

// writeIdentity stores a WWDR intermediate as PEM and a signing identity
// issued by it as PKCS#12.
func writeIdentity(t *testing.T, p12Path, wwdrPath string) {
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

	p12, err := pkcs12.Modern2023.Encode(leafKey, leaf, []*x509.Certificate{wwdr}, certificatePassword)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(p12Path), 0o750))
	require.NoError(t, os.WriteFile(p12Path, p12, 0o600))
	require.NoError(t, os.WriteFile(wwdrPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}), 0o600))
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
