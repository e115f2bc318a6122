package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Pass.PassTypeIdentifier = "pass.com.scalewave.contacts.team"
	cfg.Pass.TeamIdentifier = "VVA864P233"
	cfg.Pass.BaseURL = "https://scalewave.github.io/digital-contact-cards/"

	return cfg
}

// TestValidate checks required fields, formats and placeholder rejection.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	// Missing identifiers.
	require.Error(t, Validate(Default()))

	cfg := validConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, "https://scalewave.github.io/digital-contact-cards", cfg.Pass.BaseURL)
	require.Equal(t, "Scalewave Contact Card", cfg.Pass.Description)
	require.Equal(t, BackendNative, cfg.Signing.Backend)
	require.Equal(t, AssetPolicyWarn, cfg.Generation.AssetPolicy)
	require.Equal(t, 1, cfg.Generation.Workers)
	require.Equal(t, DefaultStepTimeout, cfg.Signing.StepTimeout)
	require.Equal(t, "Scalewave", cfg.Defaults.CompanyName)

	// Placeholder pass type.
	cfg = validConfig()
	cfg.Pass.PassTypeIdentifier = "pass.com.yourteam.scalewave.contact"
	require.ErrorIs(t, Validate(cfg), errPlaceholder)

	// Bad color.
	cfg = validConfig()
	cfg.Pass.BackgroundColor = "#ffffff"
	require.Error(t, Validate(cfg))

	// Unknown backend.
	cfg = validConfig()
	cfg.Signing.Backend = "keychain"
	require.Error(t, Validate(cfg))

	// Web service must be https.
	cfg = validConfig()
	cfg.Pass.WebServiceURL = "http://passes.example.com"
	require.Error(t, Validate(cfg))

	cfg.Pass.WebServiceURL = "https://passes.example.com"
	require.NoError(t, Validate(cfg))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back without the password.
func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet-pass.yaml")

	cfg := validConfig()
	cfg.Signing.Password = "do-not-persist"
	cfg.Signing.StepTimeout = 5 * time.Second
	cfg.Generation.Workers = 4

	require.NoError(t, Save(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "do-not-persist")

	t.Setenv(PasswordEnv, "from-env")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Pass, loaded.Pass)
	require.Equal(t, 5*time.Second, loaded.Signing.StepTimeout)
	require.Equal(t, 4, loaded.Generation.Workers)
	require.Equal(t, "from-env", loaded.Signing.Password)
}

// TestLoadMissingFile reports a read error.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
