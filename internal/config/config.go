package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the immutable run configuration handed to the generators.
type Config struct {
	// Pass holds identifiers and styling shared by every generated pass.
	Pass Pass `yaml:"pass" validate:"required"`
	// Defaults substitutes blank optional member fields.
	Defaults MemberDefaults `yaml:"defaults"`
	// Paths locates inputs and outputs on disk.
	Paths Paths `yaml:"paths"`
	// Signing selects the signer backend and its certificate inputs.
	Signing Signing `yaml:"signing"`
	// Generation tunes batch behaviour.
	Generation Generation `yaml:"generation"`
}

// Pass describes the static part of every pass descriptor.
type Pass struct {
	// PassTypeIdentifier is the Pass Type ID registered in the Apple Developer account.
	PassTypeIdentifier string `yaml:"pass_type_identifier" validate:"required,startswith=pass."`
	// TeamIdentifier is the 10-character Apple team ID.
	TeamIdentifier string `yaml:"team_identifier" validate:"required,alphanum,len=10"`
	// OrganizationName is shown on the lock screen and in the wallet.
	OrganizationName string `yaml:"organization_name" validate:"required"`
	// Description is the accessibility description of the pass.
	Description string `yaml:"description"`
	// LogoText is rendered next to the logo; empty keeps the header clean.
	LogoText string `yaml:"logo_text"`
	// BaseURL is where the contact pages are published; QR codes point below it.
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// BackgroundColor, ForegroundColor and LabelColor use the rgb(r, g, b) notation.
	BackgroundColor string `yaml:"background_color" validate:"rgb"`
	ForegroundColor string `yaml:"foreground_color" validate:"rgb"`
	LabelColor      string `yaml:"label_color" validate:"rgb"`
	// BarcodeFormat is the PassKit symbology.
	BarcodeFormat string `yaml:"barcode_format" validate:"oneof=PKBarcodeFormatQR PKBarcodeFormatPDF417 PKBarcodeFormatAztec PKBarcodeFormatCode128"` //nolint:lll // Tag lists every symbology.
	// BarcodeAltText is rendered below the barcode.
	BarcodeAltText string `yaml:"barcode_alt_text"`
	// WebServiceURL enables pass updates; when set, each pass carries an authentication token.
	WebServiceURL string `yaml:"web_service_url" validate:"omitempty,url,startswith=https://"`
}

// MemberDefaults replaces blank optional roster fields.
type MemberDefaults struct {
	Title       string `yaml:"title"`
	Phone       string `yaml:"phone"`
	CompanyName string `yaml:"company_name"`
	LinkedInURL string `yaml:"linkedin_url"`
	Twitter     string `yaml:"twitter_handle"`
}

// Paths groups filesystem locations.
type Paths struct {
	// Roster is the CSV file with one member per row.
	Roster string `yaml:"roster"`
	// Assets is the directory holding icon/logo/thumbnail images.
	Assets string `yaml:"assets"`
	// Output receives <slug>.pkpass archives.
	Output string `yaml:"output"`
	// Contacts receives <slug>.vcf contact cards.
	Contacts string `yaml:"contacts"`
	// Scratch is the parent of per-member working directories; empty uses the OS temp dir.
	Scratch string `yaml:"scratch"`
	// Ledger is the SQLite database recording issued passes; empty disables the ledger.
	Ledger string `yaml:"ledger"`
}

// Signing configures the signer backend.
type Signing struct {
	// Backend is "native" (in-process CMS) or "openssl" (external binary).
	Backend string `yaml:"backend" validate:"oneof=native openssl"`
	// CertificatePath is the password-protected PKCS#12 signing identity.
	CertificatePath string `yaml:"certificate_path" validate:"required"`
	// WWDRPath is the Apple WWDR intermediate certificate (PEM or DER).
	WWDRPath string `yaml:"wwdr_path" validate:"required"`
	// OpenSSLBinary is the executable used by the openssl backend.
	OpenSSLBinary string `yaml:"openssl_binary"`
	// StepTimeout bounds each external signing step.
	StepTimeout time.Duration `yaml:"step_timeout" validate:"gte=0"`
	// Password unlocks the PKCS#12 bundle. It is never persisted.
	Password string `yaml:"-"`
}

// Generation tunes batch behaviour.
type Generation struct {
	// Workers is the number of member pipelines run in parallel.
	Workers int `yaml:"workers" validate:"gte=0,lte=64"`
	// AssetPolicy is "warn" (package whatever exists) or "reject" (missing required asset aborts the member).
	AssetPolicy string `yaml:"asset_policy" validate:"oneof=warn reject"`
	// CheckDimensions compares PNG headers against the asset capability table.
	CheckDimensions bool `yaml:"check_dimensions"`
}

const (
	// DefaultConfigFilename is the default filename for generator settings.
	DefaultConfigFilename = "wallet-pass.yaml"

	// PasswordEnv names the environment variable holding the PKCS#12 password.
	PasswordEnv = "WALLET_PASS_CERT_PASSWORD"

	// DefaultStepTimeout bounds each external signing step.
	DefaultStepTimeout = 30 * time.Second

	// DefaultFilePermissions is the file permission for config files.
	DefaultFilePermissions = 0o600

	// AssetPolicyWarn packages whatever assets exist.
	AssetPolicyWarn = "warn"
	// AssetPolicyReject aborts a member when a required asset is missing.
	AssetPolicyReject = "reject"

	// BackendNative signs in-process.
	BackendNative = "native"
	// BackendOpenSSL shells out to openssl.
	BackendOpenSSL = "openssl"

	placeholderPassType = "pass.com.yourteam"
	placeholderTeamID   = "YOUR_TEAM_ID"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errPlaceholder is returned when identifiers were left at their template values.
	errPlaceholder = errors.New("identifier still has its placeholder value")

	//nolint:gochecknoglobals // Validator caches struct metadata; one instance is enough.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Default returns the baseline configuration that YAML files are decoded over.
// Derived defaults are filled in by Validate once the file has been applied.
func Default() *Config {
	return &Config{
		Pass: Pass{
			OrganizationName: "Scalewave",
			BarcodeAltText:   "Scan for Contact",
		},
		Signing: Signing{
			CertificatePath: filepath.Join("certs", "pass.p12"),
			WWDRPath:        filepath.Join("certs", "WWDR.pem"),
		},
	}
}

// Load reads configuration from the provided path, overlays the environment
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	ApplyEnvironment(cfg)

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path. The password is never written.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnvironment fills secrets that only come from the environment.
func ApplyEnvironment(cfg *Config) {
	if password, ok := os.LookupEnv(PasswordEnv); ok && cfg.Signing.Password == "" {
		cfg.Signing.Password = password
	}
}

// Validate fills defaults and checks required fields and formats.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if strings.HasPrefix(cfg.Pass.PassTypeIdentifier, placeholderPassType) {
		return fmt.Errorf("pass_type_identifier %q: %w", cfg.Pass.PassTypeIdentifier, errPlaceholder)
	}

	if cfg.Pass.TeamIdentifier == placeholderTeamID {
		return fmt.Errorf("team_identifier: %w", errPlaceholder)
	}

	return nil
}

// applyDefaults sets every zero-valued optional field.
func applyDefaults(cfg *Config) {
	p := &cfg.Pass
	if p.Description == "" && p.OrganizationName != "" {
		p.Description = p.OrganizationName + " Contact Card"
	}

	if p.BackgroundColor == "" {
		p.BackgroundColor = "rgb(255, 255, 255)"
	}

	if p.ForegroundColor == "" {
		p.ForegroundColor = "rgb(31, 75, 140)"
	}

	if p.LabelColor == "" {
		p.LabelColor = p.ForegroundColor
	}

	if p.BarcodeFormat == "" {
		p.BarcodeFormat = "PKBarcodeFormatQR"
	}

	p.BaseURL = strings.TrimRight(p.BaseURL, "/")

	d := &cfg.Defaults
	if d.Title == "" {
		d.Title = "Team Member"
	}

	if d.Phone == "" {
		d.Phone = "N/A"
	}

	if d.CompanyName == "" {
		d.CompanyName = p.OrganizationName
	}

	if d.LinkedInURL == "" {
		d.LinkedInURL = "N/A"
	}

	paths := &cfg.Paths
	if paths.Roster == "" {
		paths.Roster = "team_data.csv"
	}

	if paths.Assets == "" {
		paths.Assets = filepath.Join("assets", "images")
	}

	if paths.Output == "" {
		paths.Output = "signed_passes"
	}

	if paths.Contacts == "" {
		paths.Contacts = filepath.Join("output", "vcf")
	}

	s := &cfg.Signing
	if s.Backend == "" {
		s.Backend = BackendNative
	}

	if s.OpenSSLBinary == "" {
		s.OpenSSLBinary = "openssl"
	}

	if s.StepTimeout <= 0 {
		s.StepTimeout = DefaultStepTimeout
	}

	g := &cfg.Generation
	if g.Workers <= 0 {
		g.Workers = 1
	}

	if g.AssetPolicy == "" {
		g.AssetPolicy = AssetPolicyWarn
	}
}
