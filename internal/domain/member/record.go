package member

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
)

// Record is one roster row. It is created once per CSV row and never mutated
// after Normalize.
type Record struct {
	FirstName     string `validate:"required"`
	LastName      string `validate:"required"`
	Email         string `validate:"required,email"`
	Title         string
	Phone         string
	CompanyName   string
	LinkedInURL   string `validate:"omitempty,url"`
	TwitterHandle string
}

var (
	// errEmptySlug is returned when no letter or digit of the name survives slugging.
	errEmptySlug = errors.New("name has no characters usable in a file name")

	//nolint:gochecknoglobals // Validator caches struct metadata; one instance is enough.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Normalize returns a copy with surrounding whitespace trimmed from every field.
func (r Record) Normalize() Record {
	return Record{
		FirstName:     strings.TrimSpace(r.FirstName),
		LastName:      strings.TrimSpace(r.LastName),
		Email:         strings.TrimSpace(r.Email),
		Title:         strings.TrimSpace(r.Title),
		Phone:         strings.TrimSpace(r.Phone),
		CompanyName:   strings.TrimSpace(r.CompanyName),
		LinkedInURL:   strings.TrimSpace(r.LinkedInURL),
		TwitterHandle: strings.TrimSpace(r.TwitterHandle),
	}
}

// Validate checks mandatory fields and formats. Errors wrap failure.ErrValidation.
func (r *Record) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		if r.Slug() == "" {
			return fmt.Errorf("%w: %q: %w", failure.ErrValidation, r.FullName(), errEmptySlug)
		}

		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %w", failure.ErrValidation, err)
	}

	problems := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		problems = append(problems, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}

	return fmt.Errorf("%w: %s", failure.ErrValidation, strings.Join(problems, ", "))
}

// FullName joins the first and last name.
func (r *Record) FullName() string {
	return r.FirstName + " " + r.LastName
}

// Slug is the file and URL name of every artifact generated for the member.
// Multi-word first names are glued together so "Ana María Ruiz" and
// "AnaMaría Ruiz" share the slug "anamaria-ruiz", and "Mary Ann Smith"
// becomes "maryann-smith".
func (r *Record) Slug() string {
	return Slug(strings.Join(strings.Fields(r.FirstName), "") + " " + r.LastName)
}

// TwitterURL returns the profile URL for the handle, or "" when none is set.
func (r *Record) TwitterURL() string {
	handle := strings.TrimPrefix(r.TwitterHandle, "@")
	if handle == "" {
		return ""
	}

	return "https://twitter.com/" + handle
}
