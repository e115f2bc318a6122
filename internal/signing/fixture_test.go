package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/oshokin/wallet-pass/internal/manifest"
	"github.com/oshokin/wallet-pass/internal/workspace"
)

const testPassword = "s3cret-p12-passw0rd"

// identity is a throwaway WWDR intermediate plus a pass signing identity issued by it.
type identity struct {
	p12Path  string
	wwdrPath string
	leaf     *x509.Certificate
	wwdr     *x509.Certificate
}

func newIdentity(t *testing.T) identity {
	t.Helper()

	dir := t.TempDir()
	now := time.Now()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test WWDR Intermediate"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	wwdr, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Pass Type ID: pass.com.scalewave.contacts.team"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, wwdr, &leafKey.PublicKey, caKey)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	p12, err := pkcs12.LegacyDES.Encode(leafKey, leaf, []*x509.Certificate{wwdr}, testPassword)
	require.NoError(t, err)

	id := identity{
		p12Path:  filepath.Join(dir, "pass.p12"),
		wwdrPath: filepath.Join(dir, "WWDR.pem"),
		leaf:     leaf,
		wwdr:     wwdr,
	}

	require.NoError(t, os.WriteFile(id.p12Path, p12, 0o600))
	require.NoError(t, os.WriteFile(id.wwdrPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}), 0o600))

	return id
}

func (id identity) credentials() Credentials {
	return Credentials{
		CertificatePath: id.p12Path,
		Password:        testPassword,
		WWDRPath:        id.wwdrPath,
	}
}

const testManifest = "{\n    \"pass.json\": \"0123456789abcdef0123456789abcdef01234567\"\n}\n"

// newManifestWorkspace returns a workspace holding a manifest.json.
func newManifestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = ws.Cleanup() })

	require.NoError(t, ws.WriteFile(manifest.Filename, []byte(testManifest)))

	return ws
}
