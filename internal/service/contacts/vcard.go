package contacts

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/oshokin/wallet-pass/internal/domain/member"
)

const (
	// Extension is the file extension of a contact card.
	Extension = ".vcf"

	// lineLimit is the longest content line in octets before it is folded.
	lineLimit = 75
	crlf      = "\r\n"
)

//nolint:gochecknoglobals // Replacer is immutable and safe for concurrent use.
var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", `\,`,
	";", `\;`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// Filename returns the card filename for slug.
func Filename(slug string) string {
	return slug + Extension
}

// Encode renders the member as a vCard 3.0 card. Blank optional fields are
// left out, and company falls back to the given default.
func Encode(m *member.Record, defaultCompany string) []byte {
	var buf bytes.Buffer

	writeLine(&buf, "BEGIN:VCARD")
	writeLine(&buf, "VERSION:3.0")
	writeLine(&buf, "FN:"+escape(m.FullName()))
	writeLine(&buf, "N:"+escape(m.LastName)+";"+escape(m.FirstName)+";;;")

	if m.Title != "" {
		writeLine(&buf, "TITLE:"+escape(m.Title))
	}

	if company := or(m.CompanyName, defaultCompany); company != "" {
		writeLine(&buf, "ORG:"+escape(company))
	}

	if m.Phone != "" {
		writeLine(&buf, "TEL;TYPE=WORK,VOICE:"+member.DialString(m.Phone))
	}

	writeLine(&buf, "EMAIL;TYPE=WORK:"+m.Email)

	if m.LinkedInURL != "" {
		writeLine(&buf, "URL;TYPE=LinkedIn:"+m.LinkedInURL)
	}

	if twitter := m.TwitterURL(); twitter != "" {
		writeLine(&buf, "URL;TYPE=Twitter:"+twitter)
	}

	writeLine(&buf, "END:VCARD")

	return buf.Bytes()
}

func escape(s string) string {
	return textEscaper.Replace(s)
}

// writeLine folds line into chunks of at most lineLimit octets, continuing
// each chunk on a new line that starts with a space.
func writeLine(buf *bytes.Buffer, line string) {
	limit := lineLimit

	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}

		buf.WriteString(line[:cut])
		buf.WriteString(crlf)
		buf.WriteByte(' ')

		line = line[cut:]
		// The leading space counts against the limit of continuation lines.
		limit = lineLimit - 1
	}

	buf.WriteString(line)
	buf.WriteString(crlf)
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}

	return fallback
}
