package pass

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
)

//go:embed pass.schema.json
var schemaDocument []byte

//nolint:gochecknoglobals // The compiled schema is immutable and shared.
var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaDocument))
})

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Message string
}

// SchemaError lists every violation found in a descriptor.
type SchemaError struct {
	Errors []FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}

	return "descriptor does not match the pass schema: " + strings.Join(parts, "; ")
}

// Unwrap lets callers classify schema errors as validation failures.
func (e *SchemaError) Unwrap() error {
	return failure.ErrValidation
}

// ValidateSchema checks the encoded descriptor against the embedded PassKit subset schema.
func ValidateSchema(document []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile pass schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", failure.ErrValidation, Filename, err)
	}

	if result.Valid() {
		return nil
	}

	schemaErr := &SchemaError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, re := range result.Errors() {
		schemaErr.Errors = append(schemaErr.Errors, FieldError{
			Field:   re.Field(),
			Message: re.Description(),
		})
	}

	return schemaErr
}
