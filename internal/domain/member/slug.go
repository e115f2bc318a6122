package member

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug lowercases s, strips diacritics, turns whitespace into hyphens, drops
// everything outside [a-z0-9-] and collapses repeated hyphens.
// Slug(Slug(s)) == Slug(s) for every s.
func Slug(s string) string {
	// transform.Chain keeps state and must not be shared between goroutines.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var (
		b           strings.Builder
		pendingDash bool
	)

	b.Grow(len(folded))

	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}

			pendingDash = false

			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		default:
		}
	}

	return b.String()
}
