package pass

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/member"
)

const (
	// Filename is the canonical name of the descriptor inside a bundle.
	Filename = "pass.json"

	// FormatVersion is the only PassKit format version in existence.
	FormatVersion = 1

	// MessageEncoding is the barcode payload encoding PassKit expects for URLs.
	MessageEncoding = "iso-8859-1"

	alignLeft  = "PKTextAlignmentLeft"
	alignRight = "PKTextAlignmentRight"
)

// Descriptor is the pass.json document.
type Descriptor struct {
	FormatVersion       int       `json:"formatVersion"`
	PassTypeIdentifier  string    `json:"passTypeIdentifier"`
	SerialNumber        string    `json:"serialNumber"`
	TeamIdentifier      string    `json:"teamIdentifier"`
	OrganizationName    string    `json:"organizationName"`
	Description         string    `json:"description"`
	LogoText            string    `json:"logoText"`
	ForegroundColor     string    `json:"foregroundColor"`
	BackgroundColor     string    `json:"backgroundColor"`
	LabelColor          string    `json:"labelColor"`
	WebServiceURL       string    `json:"webServiceURL,omitempty"`
	AuthenticationToken string    `json:"authenticationToken,omitempty"`
	Barcode             Barcode   `json:"barcode"`
	Barcodes            []Barcode `json:"barcodes"`
	Generic             Content   `json:"generic"`
}

// Barcode is rendered on the front of the pass.
type Barcode struct {
	Message         string `json:"message"`
	Format          string `json:"format"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

// Content holds the ordered field groups of a generic pass.
type Content struct {
	PrimaryFields   []Field `json:"primaryFields"`
	SecondaryFields []Field `json:"secondaryFields"`
	AuxiliaryFields []Field `json:"auxiliaryFields"`
	BackFields      []Field `json:"backFields"`
}

// Field is a single key/label/value entry.
type Field struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Value         string `json:"value"`
	TextAlignment string `json:"textAlignment,omitempty"`
}

// Option customises a single Build call.
type Option func(*Descriptor)

// WithAuthenticationToken sets the token the pass web service will expect.
// It has no effect unless a web service URL is configured.
func WithAuthenticationToken(token string) Option {
	return func(d *Descriptor) {
		if d.WebServiceURL != "" {
			d.AuthenticationToken = token
		}
	}
}

// WithSerialNumber overrides the random serial number.
func WithSerialNumber(serial string) Option {
	return func(d *Descriptor) {
		d.SerialNumber = serial
	}
}

// ContactPageURL is the page the barcode points at.
func ContactPageURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/html/" + slug + ".html"
}

// NewAuthenticationToken returns a random 32-character token.
func NewAuthenticationToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Build maps a validated member and the static configuration into a descriptor.
func Build(m *member.Record, cfg *config.Config, opts ...Option) *Descriptor {
	var (
		p        = cfg.Pass
		defaults = cfg.Defaults
		pageURL  = ContactPageURL(p.BaseURL, m.Slug())
		barcode  = Barcode{
			Message:         pageURL,
			Format:          p.BarcodeFormat,
			MessageEncoding: MessageEncoding,
			AltText:         p.BarcodeAltText,
		}
	)

	d := &Descriptor{
		FormatVersion:      FormatVersion,
		PassTypeIdentifier: p.PassTypeIdentifier,
		SerialNumber:       uuid.NewString(),
		TeamIdentifier:     p.TeamIdentifier,
		OrganizationName:   p.OrganizationName,
		Description:        p.Description,
		LogoText:           p.LogoText,
		ForegroundColor:    p.ForegroundColor,
		BackgroundColor:    p.BackgroundColor,
		LabelColor:         p.LabelColor,
		WebServiceURL:      p.WebServiceURL,
		Barcode:            barcode,
		Barcodes:           []Barcode{barcode},
		Generic: Content{
			PrimaryFields: []Field{
				{Key: "member", Label: "CONTACT CARD", Value: m.FullName(), TextAlignment: alignLeft},
			},
			SecondaryFields: []Field{
				{Key: "title", Label: "TITLE", Value: or(m.Title, defaults.Title), TextAlignment: alignLeft},
				{Key: "contact_info", Label: "CONTACT INFORMATION", Value: "Scan QR Code", TextAlignment: alignRight},
			},
			AuxiliaryFields: []Field{
				{Key: "company", Label: "COMPANY", Value: or(m.CompanyName, defaults.CompanyName)},
			},
			BackFields: backFields(m, &defaults, pageURL),
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Encode serialises the descriptor exactly as it will be hashed and packaged.
func Encode(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode %s: %w", Filename, err)
	}

	return buf.Bytes(), nil
}

func backFields(m *member.Record, defaults *config.MemberDefaults, pageURL string) []Field {
	fields := []Field{
		{Key: "website", Label: "Full Contact Info", Value: pageURL},
		{Key: "email", Label: "Email", Value: m.Email},
		{Key: "phone", Label: "Phone", Value: member.DisplayPhone(or(m.Phone, defaults.Phone))},
		{Key: "linkedin", Label: "LinkedIn", Value: or(m.LinkedInURL, defaults.LinkedInURL)},
	}

	twitter := m.TwitterURL()
	if twitter == "" && defaults.Twitter != "" {
		twitter = (&member.Record{TwitterHandle: defaults.Twitter}).TwitterURL()
	}

	if twitter != "" {
		fields = append(fields, Field{Key: "twitter", Label: "Twitter", Value: twitter})
	}

	return append(fields, Field{Key: "company_name", Label: "Company", Value: or(m.CompanyName, defaults.CompanyName)})
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}
