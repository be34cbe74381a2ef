package extractor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	validate "github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchemaJSON is reflected from rawResponse rather than hand-
// written, so the structural contract a direct or balanced JSON parse
// must satisfy can never drift from the struct encoding/json actually
// decodes into. Wrong-typed fields (a confidence string, a non-array
// facts list) are rejected here rather than silently coerced by
// encoding/json's zero-value behavior, so a malformed-but-parseable
// response falls through to the repair ladder instead of reaching the
// conflict resolver.
func reflectResponseSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{AllowAdditionalProperties: true}
	schema := reflector.Reflect(&rawResponse{})
	return json.Marshal(schema)
}

var (
	schemaOnce    sync.Once
	schemaErr     error
	responseValid *validate.Schema
)

func compileResponseSchema() error {
	schemaOnce.Do(func() {
		raw, err := reflectResponseSchema()
		if err != nil {
			schemaErr = fmt.Errorf("extractor: reflect response schema: %w", err)
			return
		}
		responseValid, schemaErr = validate.CompileString("extractor_response", string(raw))
	})
	return schemaErr
}

// validateAgainstSchema reports whether text is both valid JSON and
// conforms to responseSchemaJSON. A schema-compilation failure is treated
// as a pass-through (never block extraction on an engine bug).
func validateAgainstSchema(text string) bool {
	if err := compileResponseSchema(); err != nil {
		return true
	}
	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return false
	}
	return responseValid.Validate(payload) == nil
}
