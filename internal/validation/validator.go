package validation

import "github.com/rendis/agentboard/pkg/schema"

// Validator turns an untrusted raw payload into a typed event or a
// non-empty list of field-level issues. Implementations are pure and safe
// for concurrent use.
type Validator interface {
	Validate(raw []byte) (schema.Event, *schema.ValidationResult)
}
