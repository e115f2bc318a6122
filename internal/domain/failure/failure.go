// Package failure defines the error taxonomy of the pass pipeline.
//
// Every step wraps its errors with one of these sentinels so the batch driver
// can classify a member's failure with errors.Is without parsing messages.
package failure

import "errors"

var (
	// ErrValidation marks a roster row or descriptor that failed validation; the row is skipped.
	ErrValidation = errors.New("validation failed")
	// ErrIO marks a missing or unreadable template, asset or certificate file.
	ErrIO = errors.New("io failure")
	// ErrCertificateExtraction marks a failure to obtain the signing certificate from the PKCS#12 bundle.
	ErrCertificateExtraction = errors.New("certificate extraction failed")
	// ErrKeyExtraction marks a failure to obtain the signing key from the PKCS#12 bundle.
	ErrKeyExtraction = errors.New("key extraction failed")
	// ErrSignature marks a failure to produce the detached manifest signature.
	ErrSignature = errors.New("signature failed")
	// ErrPackaging marks a failure to write the final archive.
	ErrPackaging = errors.New("packaging failed")
)

// Kind returns a short stable name of the taxonomy class err belongs to,
// or "unknown" when it does not wrap any of the sentinels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrCertificateExtraction):
		return "certificate_extraction"
	case errors.Is(err, ErrKeyExtraction):
		return "key_extraction"
	case errors.Is(err, ErrSignature):
		return "signature"
	case errors.Is(err, ErrPackaging):
		return "packaging"
	default:
		return "unknown"
	}
}
