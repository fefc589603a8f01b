package ingress

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level, concurrency-safe validator instance,
// grounded on wisbric-nightowl's internal/httpserver.validate convention.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError is one field-level schema validation failure.
type ValidationError struct {
	Field   string
	Message string
}

// Validate runs struct-tag validation over an adapter's decoded payload and
// returns every field-level failure, used as Stage 1's schema-validation
// substep.
func Validate(v any) []ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, ValidationError{Field: fe.Namespace(), Message: fe.Tag()})
	}
	return out
}
